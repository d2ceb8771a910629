package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"washery_chat/internal/chat/domain"
	"washery_chat/internal/chat/store"
	"washery_chat/pkg"
	"washery_chat/pkg/config"
	errprocess "washery_chat/pkg/err"
	"washery_chat/pkg/logger"
	"washery_chat/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	recordTimeout    = 2 * time.Second
)

var allStates = []string{
	string(domain.StateDisconnected),
	string(domain.StateConnecting),
	string(domain.StateConnected),
	string(domain.StateReconnecting),
	string(domain.StateFailed),
}

// StatusRecorder persist connection status snapshots (optional)
type StatusRecorder interface {
	SaveStatus(ctx context.Context, st domain.ConnectionStatus) error
}

// Emitter outbound side of the connection, used by ChatActions
type Emitter interface {
	Emit(event domain.Event, payload interface{}) error
	UploadFile(ctx context.Context, f FileUpload) (*domain.FileUploadResult, error)
}

// FileUpload file to send over the socket
type FileUpload struct {
	FileName       string
	ContentType    string
	Reader         io.Reader
	ConversationID string
	GroupID        string
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

// ConnectionManager one websocket connection to the chat server.
// inbound frames go to the router; outbound events are fire-and-forget.
type ConnectionManager struct {
	router   *EventRouter
	status   *store.StatusStore
	recorder StatusRecorder
	cfg      config.ChatClient
	dialer   *websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	connCancel   context.CancelFunc
	connecting   *connectAttempt
	reconnecting bool
	reconnectSeq uint64
	closed       bool
	session      context.Context
	cancel       context.CancelFunc
	url          string
	token        string
	listeners    map[int]func(domain.ConnectionStatus)
	nextListener int

	// serializes status publication, taken before mu
	stateMu sync.Mutex
	writeMu sync.Mutex

	uploadMu     sync.Mutex
	pending      map[string]chan domain.FileUploadResult
	pendingOrder []string
}

// NewConnectionManager create ConnectionManager, recorder may be nil
func NewConnectionManager(router *EventRouter, status *store.StatusStore, cfg config.ChatClient, recorder StatusRecorder) *ConnectionManager {
	cfg.ApplyDefaults()
	m := &ConnectionManager{
		router:    router,
		status:    status,
		recorder:  recorder,
		cfg:       cfg,
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		listeners: make(map[int]func(domain.ConnectionStatus)),
		pending:   make(map[string]chan domain.FileUploadResult),
	}
	router.Handle(domain.ErrorEvent, m.onError)
	router.Handle(domain.FileUploadResponse, m.onUploadResponse)
	return m
}

// Connect open the socket, nil once the handshake is confirmed.
// concurrent calls share one dial; already connected returns nil.
func (m *ConnectionManager) Connect(ctx context.Context, serverURL, authToken string) error {
	m.mu.Lock()
	if m.conn != nil {
		m.mu.Unlock()
		return nil
	}
	if a := m.connecting; a != nil {
		m.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &connectAttempt{done: make(chan struct{})}
	m.connecting = a
	m.url, m.token = serverURL, authToken
	m.closed = false
	if m.session == nil || m.session.Err() != nil {
		m.session, m.cancel = context.WithCancel(context.Background())
	}
	session := m.session
	m.mu.Unlock()

	m.setState(domain.StateConnecting, 0)
	conn, err := m.dial(ctx)

	var live *websocket.Conn
	m.mu.Lock()
	m.connecting = nil
	closed := m.closed
	if err == nil {
		if closed {
			conn.Close()
			err = domain.ErrDisconnected
		} else {
			live = m.attachLocked(session, conn)
		}
	}
	m.mu.Unlock()

	a.err = err
	close(a.done)

	if err == nil {
		logger.Log.Info("chat socket connected", zap.String("url", serverURL))
		// a drop right after attach already published reconnecting
		m.publish(domain.StateConnected, 0, func() bool { return m.conn == live })
		return nil
	}
	if closed {
		return err
	}

	logger.Log.Error("chat socket connect failed", zap.String("url", serverURL), zap.Error(err))
	m.status.SetError(err.Error())
	if m.cfg.Reconnect.RetryInitial() {
		m.startReconnect(session)
	} else {
		m.setState(domain.StateDisconnected, 0)
	}
	return err
}

// Disconnect stop reconnects, close the socket, reject pending uploads and drop listeners. idempotent.
func (m *ConnectionManager) Disconnect() {
	m.mu.Lock()
	if m.closed && m.conn == nil && !m.reconnecting {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.reconnecting = false
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn = nil
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	m.mu.Unlock()

	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		conn.Close()
	}

	m.rejectPending()
	m.setState(domain.StateDisconnected, 0)

	m.mu.Lock()
	m.listeners = make(map[int]func(domain.ConnectionStatus))
	m.mu.Unlock()
	logger.Log.Info("chat socket disconnected")
}

// IsConnected report a live socket
func (m *ConnectionManager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Status current connection status
func (m *ConnectionManager) Status() domain.ConnectionStatus {
	return m.status.Status()
}

// OnStateChange subscribe to status changes, call the returned func to unsubscribe
func (m *ConnectionManager) OnStateChange(fn func(domain.ConnectionStatus)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *ConnectionManager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.mu.Lock()
	rawURL, tk := m.url, m.token
	m.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errprocess.Wrap("parse server url", err)
	}
	header := http.Header{}
	if tk != "" {
		q := u.Query()
		q.Set("token", tk)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+tk)
	}

	dctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	conn, resp, err := m.dialer.DialContext(dctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// attachLocked make conn the live connection and start its loops, return the live socket. caller holds m.mu.
// a second connection is closed, there is at most one live socket.
func (m *ConnectionManager) attachLocked(session context.Context, conn *websocket.Conn) *websocket.Conn {
	if m.conn != nil {
		conn.Close()
		return m.conn
	}
	connCtx, cancel := context.WithCancel(session)
	m.conn = conn
	m.connCancel = cancel

	go m.readLoop(connCtx, conn)
	go m.pingLoop(connCtx, conn)
	return conn
}

func (m *ConnectionManager) readDeadline() time.Time {
	return time.Now().Add(2 * m.cfg.PingInterval)
}

func (m *ConnectionManager) readLoop(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(m.readDeadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(m.readDeadline())
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(conn, err)
			return
		}
		_ = conn.SetReadDeadline(m.readDeadline())
		if mt != websocket.TextMessage {
			continue
		}
		m.router.DispatchRaw(ctx, data)
	}
}

func (m *ConnectionManager) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				logger.Log.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// handleDrop transport lost: keep the stores, start reconnecting
func (m *ConnectionManager) handleDrop(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// replaced or closed by Disconnect
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.connCancel != nil {
		m.connCancel()
		m.connCancel = nil
	}
	closed := m.closed
	session := m.session
	m.mu.Unlock()
	conn.Close()

	if closed {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Log.Info("chat socket closed by server", zap.Error(err))
	} else {
		logger.Log.Warn("chat socket dropped", zap.Error(err))
	}
	m.startReconnect(session)
}

// startReconnect run one reconnect loop at a time; a loop stops counting as running once it attached a socket
func (m *ConnectionManager) startReconnect(session context.Context) {
	m.mu.Lock()
	if m.closed || m.reconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	m.reconnectSeq++
	seq := m.reconnectSeq
	m.mu.Unlock()

	m.publish(domain.StateReconnecting, 0, func() bool { return !m.closed })
	go m.reconnectLoop(session, seq)
}

func (m *ConnectionManager) newBackOff(ctx context.Context) backoff.BackOff {
	rc := m.cfg.Reconnect
	var b backoff.BackOff
	if rc.Strategy == config.StrategyFixed {
		b = backoff.NewConstantBackOff(rc.Interval)
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = rc.Interval
		eb.MaxInterval = rc.MaxInterval
		eb.MaxElapsedTime = 0
		b = eb
	}
	// first try + (max-1) retries = max attempts
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(rc.MaxAttempts-1)), ctx)
}

func (m *ConnectionManager) reconnectLoop(ctx context.Context, seq uint64) {
	defer func() {
		m.mu.Lock()
		if m.reconnectSeq == seq {
			m.reconnecting = false
		}
		m.mu.Unlock()
	}()

	var (
		attempt  int
		attached *websocket.Conn
	)
	op := func() error {
		attempt++
		if !m.publish(domain.StateReconnecting, attempt, func() bool { return !m.closed && ctx.Err() == nil }) {
			return backoff.Permanent(domain.ErrDisconnected)
		}
		metrics.ReconnectAttempts.Inc()

		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			conn.Close()
			return backoff.Permanent(domain.ErrDisconnected)
		}
		attached = m.attachLocked(ctx, conn)
		// from here a drop starts a new loop
		if m.reconnectSeq == seq {
			m.reconnecting = false
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Log.Warn("reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
		m.status.SetError(err.Error())
	}

	err := backoff.RetryNotify(op, m.newBackOff(ctx), notify)
	if err == nil {
		if m.publish(domain.StateConnected, 0, func() bool { return m.conn == attached }) {
			logger.Log.Info("chat socket reconnected", zap.Int("attempt", attempt))
		}
		return
	}
	if ctx.Err() != nil || errors.Is(err, domain.ErrDisconnected) {
		return
	}

	logger.Log.Error("reconnect gave up", zap.Int("attempts", attempt), zap.Error(err))
	m.status.SetError(fmt.Sprintf("%v: %v", domain.ErrReconnectExhausted, err))
	m.publish(domain.StateFailed, attempt, func() bool { return !m.closed && m.conn == nil })
}

func (m *ConnectionManager) setState(state domain.ConnectionState, attempt int) {
	m.publish(state, attempt, nil)
}

// publish store the new state when current (checked under mu) is nil or true,
// then tell the recorder and listeners. report whether it was published.
func (m *ConnectionManager) publish(state domain.ConnectionState, attempt int, current func() bool) bool {
	m.stateMu.Lock()
	if current != nil {
		m.mu.Lock()
		ok := current()
		m.mu.Unlock()
		if !ok {
			m.stateMu.Unlock()
			return false
		}
	}
	st := m.status.SetState(state, attempt)
	metrics.SetState(string(state), allStates)
	m.stateMu.Unlock()

	if m.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := m.recorder.SaveStatus(ctx, st); err != nil {
			logger.Log.Warn("save connection status", zap.Error(err))
		}
		cancel()
	}

	m.mu.Lock()
	fns := make([]func(domain.ConnectionStatus), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
	return true
}

// Emit send one outbound event, ErrNotConnected while down (no queue)
func (m *ConnectionManager) Emit(event domain.Event, payload interface{}) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	m.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, b)
	m.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}

	metrics.EventsSent.WithLabelValues(string(event)).Inc()
	logger.Log.Debug("emit", zap.String("event", string(event)))
	return nil
}

// UploadFile read the file, emit file_upload and wait for the matching file_upload_response
func (m *ConnectionManager) UploadFile(ctx context.Context, f FileUpload) (*domain.FileUploadResult, error) {
	if f.ConversationID == "" && f.GroupID == "" {
		return nil, domain.ErrNoThread
	}
	if f.Reader == nil {
		return nil, errprocess.Set(fmt.Sprintf("upload %s: no reader", f.FileName))
	}
	data, err := io.ReadAll(f.Reader)
	if err != nil {
		return nil, errprocess.Wrap("read upload", err, zap.String("file", f.FileName))
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	uploadID := uuid.NewString()
	ch := m.addPending(uploadID)
	defer m.removePending(uploadID)

	err = m.Emit(domain.FileUpload, domain.FileUploadRequest{
		UploadID:       uploadID,
		FileName:       f.FileName,
		FileType:       contentType,
		FileSize:       int64(len(data)),
		Data:           base64.StdEncoding.EncodeToString(data),
		ConversationID: f.ConversationID,
		GroupID:        f.GroupID,
	})
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(m.cfg.UploadTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return nil, domain.ErrDisconnected
		}
		if !res.Success {
			return nil, fmt.Errorf("%w: %s", domain.ErrUploadRejected, res.Error)
		}
		if res.FileName == "" {
			res.FileName = f.FileName
		}
		if res.FileType == "" {
			res.FileType = contentType
		}
		if res.FileSize == 0 {
			res.FileSize = int64(len(data))
		}
		return &res, nil
	case <-timer.C:
		metrics.UploadTimeouts.Inc()
		logger.Log.Warn("upload timed out", zap.String("uploadId", uploadID), zap.String("file", f.FileName))
		return nil, domain.ErrUploadTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ConnectionManager) addPending(id string) chan domain.FileUploadResult {
	ch := make(chan domain.FileUploadResult, 1)
	m.uploadMu.Lock()
	m.pending[id] = ch
	m.pendingOrder = append(m.pendingOrder, id)
	m.uploadMu.Unlock()
	return ch
}

func (m *ConnectionManager) removePending(id string) {
	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()
	m.dropPendingLocked(id)
}

func (m *ConnectionManager) dropPendingLocked(id string) {
	delete(m.pending, id)
	m.pendingOrder = pkg.Without(m.pendingOrder, id)
}

// PendingUploads number of uploads waiting for a response
func (m *ConnectionManager) PendingUploads() int {
	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()
	return len(m.pending)
}

func (m *ConnectionManager) rejectPending() {
	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
	m.pendingOrder = nil
}

// onUploadResponse match by uploadId, or the oldest pending upload when the server sends none
func (m *ConnectionManager) onUploadResponse(_ context.Context, data json.RawMessage) error {
	res, err := decode[domain.FileUploadResult](data)
	if err != nil {
		return err
	}

	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()

	id := res.UploadID
	if id == "" && len(m.pendingOrder) > 0 {
		id = m.pendingOrder[0]
	}
	ch, ok := m.pending[id]
	if !ok {
		logger.Log.Warn("upload response without pending upload", zap.String("uploadId", res.UploadID))
		return nil
	}
	res.UploadID = id
	m.dropPendingLocked(id)
	select {
	case ch <- res:
	default:
	}
	return nil
}

// onError server reported an error, keep the connection and surface the message
func (m *ConnectionManager) onError(_ context.Context, data json.RawMessage) error {
	msg := "chat server error"
	if p, err := decode[domain.ErrorPayload](data); err == nil && p.Message != "" {
		msg = p.Message
	} else {
		var s string
		if json.Unmarshal(data, &s) == nil && s != "" {
			msg = s
		}
	}
	logger.Log.Error("chat server error", zap.String("message", msg))
	m.status.SetError(msg)
	return nil
}
