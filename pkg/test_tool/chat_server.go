package testtool

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FakeChatServer 測試用 websocket chat server (fiber + gofiber/websocket).
// records every frame the client sends, can push frames and drop connections.
type FakeChatServer struct {
	URL string

	app *fiber.App
	ln  net.Listener

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	tokens   []string
	received chan []byte

	attempts   int32
	handshakes int32
	reject     atomic.Bool

	// OnFrame 收到 client frame 時呼叫, 可用來自動回覆
	OnFrame func(s *FakeChatServer, frame []byte)

	onConnect func(s *FakeChatServer, handshake int)
}

// StartFakeChatServer listen on a random local port
func StartFakeChatServer() (*FakeChatServer, error) {
	s := &FakeChatServer{
		conns:    make(map[*websocket.Conn]struct{}),
		received: make(chan []byte, 256),
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", func(c *fiber.Ctx) error {
		atomic.AddInt32(&s.attempts, 1)
		if s.reject.Load() {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		tk := c.Query("token")
		if tk == "" {
			tk = c.Get(fiber.HeaderAuthorization)
		}
		c.Locals("token", tk)
		return c.Next()
	})
	app.Get("/ws", websocket.New(s.handle))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.app = app
	s.ln = ln
	s.URL = "ws://" + ln.Addr().String() + "/ws"

	go func() {
		_ = app.Listener(ln)
	}()
	return s, nil
}

func (s *FakeChatServer) handle(c *websocket.Conn) {
	n := int(atomic.AddInt32(&s.handshakes, 1))
	s.mu.Lock()
	s.conns[c] = struct{}{}
	if tk, ok := c.Locals("token").(string); ok {
		s.tokens = append(s.tokens, tk)
	}
	onConnect := s.onConnect
	s.mu.Unlock()

	if onConnect != nil {
		onConnect(s, n)
	}

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		select {
		case s.received <- msg:
		default:
		}
		if s.OnFrame != nil {
			s.OnFrame(s, msg)
		}
	}
}

// Send push v as JSON text frame to every connected client
func (s *FakeChatServer) Send(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SendRaw(b)
}

// SendRaw push raw bytes as a text frame
func (s *FakeChatServer) SendRaw(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
	return nil
}

// Next wait for the next client frame
func (s *FakeChatServer) Next(timeout time.Duration) ([]byte, bool) {
	select {
	case b := <-s.received:
		return b, true
	case <-time.After(timeout):
		return nil, false
	}
}

// DropAll close every live connection without a close frame.
// the hijacked conn only closes when handle returns, so the read is cut by an expired deadline.
func (s *FakeChatServer) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.SetReadDeadline(time.Now())
	}
}

// SetOnConnect fn runs after every accepted handshake with its 1-based number
func (s *FakeChatServer) SetOnConnect(fn func(s *FakeChatServer, handshake int)) {
	s.mu.Lock()
	s.onConnect = fn
	s.mu.Unlock()
}

// SetReject make the next handshakes fail with 401
func (s *FakeChatServer) SetReject(v bool) {
	s.reject.Store(v)
}

// Attempts number of upgrade requests, rejected ones included
func (s *FakeChatServer) Attempts() int {
	return int(atomic.LoadInt32(&s.attempts))
}

// Handshakes number of accepted websocket upgrades
func (s *FakeChatServer) Handshakes() int {
	return int(atomic.LoadInt32(&s.handshakes))
}

// Connected number of live connections
func (s *FakeChatServer) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Tokens auth tokens seen on handshakes
func (s *FakeChatServer) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// WaitConnected poll until n clients are connected
func (s *FakeChatServer) WaitConnected(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Connected() == n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return s.Connected() == n
}

// Close stop the server
func (s *FakeChatServer) Close() {
	s.DropAll()
	_ = s.app.Shutdown()
}
