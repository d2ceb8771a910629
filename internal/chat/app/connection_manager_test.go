package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"washery_chat/internal/chat/domain"
	"washery_chat/pkg/config"
	"washery_chat/pkg/logger"
	testtool "washery_chat/pkg/test_tool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

func testClientConfig() config.ChatClient {
	return config.ChatClient{
		PingInterval:  5 * time.Second,
		UploadTimeout: 2 * time.Second,
		Reconnect: config.ReconnectConfig{
			MaxAttempts: 3,
			Interval:    20 * time.Millisecond,
			Strategy:    config.StrategyFixed,
		},
	}
}

type managerFixture struct {
	manager *ConnectionManager
	stores  *Stores
	server  *testtool.FakeChatServer
}

func newManagerFixture(t *testing.T, cfg config.ChatClient, recorder StatusRecorder, onFrame func(*testtool.FakeChatServer, []byte)) *managerFixture {
	t.Helper()
	logger.SetNewNop()

	server, err := testtool.StartFakeChatServer()
	require.NoError(t, err)
	server.OnFrame = onFrame

	stores := NewStores(3 * time.Second)
	router := NewEventRouter()
	NewChatSyncHandler(stores, "me").Register(router)
	m := NewConnectionManager(router, stores.Status, cfg, recorder)

	t.Cleanup(func() {
		m.Disconnect()
		server.Close()
	})
	return &managerFixture{manager: m, stores: stores, server: server}
}

// stateLog collect every status the manager publishes
type stateLog struct {
	mu     sync.Mutex
	states []domain.ConnectionState
}

func (l *stateLog) add(st domain.ConnectionStatus) {
	l.mu.Lock()
	l.states = append(l.states, st.State)
	l.mu.Unlock()
}

func (l *stateLog) list() []domain.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ConnectionState(nil), l.states...)
}

func decodeFrame(t *testing.T, b []byte) domain.Envelope {
	t.Helper()
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(b, &env))
	return env
}

// 測試 連線帶 token, 收到的事件寫入 store
func TestConnectionManager_Connect(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)
	log := &stateLog{}
	f.manager.OnStateChange(log.add)

	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	assert.True(t, f.manager.IsConnected())
	assert.Equal(t, domain.StateConnected, f.manager.Status().State)
	assert.Equal(t, []domain.ConnectionState{domain.StateConnecting, domain.StateConnected}, log.list())

	require.True(t, f.server.WaitConnected(1, waitFor))
	assert.Equal(t, []string{"tk-1"}, f.server.Tokens())

	require.NoError(t, f.server.Send(domain.Envelope{
		Event: domain.MessageReceived,
		Data:  json.RawMessage(`{"id":"m1","conversationId":"c1","senderId":"u2","content":"truck at gate"}`),
	}))
	assert.Eventually(t, func() bool {
		_, ok := f.stores.Messages.Message("m1")
		return ok
	}, waitFor, 10*time.Millisecond)

	// already connected
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	assert.Equal(t, 1, f.server.Handshakes())
}

// 測試 同時呼叫 Connect 只建立一條連線
func TestConnectionManager_ConcurrentConnect(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.manager.Connect(context.Background(), f.server.URL, "tk-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	require.True(t, f.server.WaitConnected(1, waitFor))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.server.Handshakes())
}

// 測試 未連線時 Emit 回傳 ErrNotConnected, 連線後送出 frame
func TestConnectionManager_Emit(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)

	err := f.manager.Emit(domain.Typing, domain.TypingRequest{ConversationID: "c1", IsTyping: true})
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, ""))
	require.NoError(t, f.manager.Emit(domain.JoinConversation, domain.RoomRequest{ConversationID: "c1"}))

	b, ok := f.server.Next(waitFor)
	require.True(t, ok)
	env := decodeFrame(t, b)
	assert.Equal(t, domain.JoinConversation, env.Event)
	assert.JSONEq(t, `{"conversationId":"c1"}`, string(env.Data))
}

// 測試 連線中斷後自動重連, store 資料保留
func TestConnectionManager_ReconnectAfterDrop(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)
	log := &stateLog{}
	f.manager.OnStateChange(log.add)

	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	require.True(t, f.server.WaitConnected(1, waitFor))
	f.stores.Messages.AddMessage(domain.ChatMessage{ID: "keep", ConversationID: "c1"})

	f.server.DropAll()

	assert.Eventually(t, func() bool {
		return f.server.Handshakes() == 2 && f.manager.IsConnected()
	}, waitFor, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.manager.Status().State == domain.StateConnected
	}, waitFor, 10*time.Millisecond)

	assert.Contains(t, log.list(), domain.StateReconnecting)
	_, ok := f.stores.Messages.Message("keep")
	assert.True(t, ok)
	assert.Equal(t, []string{"tk-1", "tk-1"}, f.server.Tokens())
}

// slowRecorder hold up the connected save, like a slow redis
type slowRecorder struct {
	delay time.Duration
}

func (r slowRecorder) SaveStatus(ctx context.Context, st domain.ConnectionStatus) error {
	if st.State == domain.StateConnected {
		time.Sleep(r.delay)
	}
	return nil
}

// 測試 重連剛完成就再次斷線, 仍會重新連線
func TestConnectionManager_DropRightAfterReconnect(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), slowRecorder{delay: 300 * time.Millisecond}, nil)
	f.server.SetOnConnect(func(s *testtool.FakeChatServer, handshake int) {
		if handshake == 2 {
			time.AfterFunc(50*time.Millisecond, s.DropAll)
		}
	})

	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	require.True(t, f.server.WaitConnected(1, waitFor))

	f.server.DropAll()

	assert.Eventually(t, func() bool {
		return f.server.Handshakes() >= 3 && f.manager.IsConnected()
	}, waitFor, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.manager.Status().State == domain.StateConnected
	}, waitFor, 10*time.Millisecond)
}

// 測試 Disconnect 後不再發布 reconnecting
func TestConnectionManager_NoStateAfterDisconnect(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)
	f.server.SetReject(true)

	require.Error(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	f.manager.Disconnect()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, domain.StateDisconnected, f.manager.Status().State)
	assert.False(t, f.manager.IsConnected())
}

// 測試 重連次數用盡後狀態為 failed
func TestConnectionManager_ReconnectExhausted(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)
	f.server.SetReject(true)

	err := f.manager.Connect(context.Background(), f.server.URL, "tk-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	assert.Eventually(t, func() bool {
		return f.manager.Status().State == domain.StateFailed
	}, waitFor, 10*time.Millisecond)

	st := f.manager.Status()
	assert.Equal(t, 3, st.ReconnectAttempt)
	assert.Contains(t, st.Error, domain.ErrReconnectExhausted.Error())
	// first handshake + 3 reconnect attempts
	assert.Equal(t, 4, f.server.Attempts())
	assert.False(t, f.manager.IsConnected())
}

// 測試 關閉初次失敗重連時, Connect 失敗直接回到 disconnected
func TestConnectionManager_NoInitialRetry(t *testing.T) {
	cfg := testClientConfig()
	off := false
	cfg.Reconnect.OnInitialFailure = &off
	f := newManagerFixture(t, cfg, nil, nil)
	f.server.SetReject(true)

	require.Error(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	time.Sleep(100 * time.Millisecond)

	st := f.manager.Status()
	assert.Equal(t, domain.StateDisconnected, st.State)
	assert.NotEmpty(t, st.Error)
	assert.Equal(t, 1, f.server.Attempts())
}

// 測試 Disconnect 可重複呼叫, 之後可再連線
func TestConnectionManager_Disconnect(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)
	calls := 0
	var mu sync.Mutex
	f.manager.OnStateChange(func(domain.ConnectionStatus) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	require.True(t, f.server.WaitConnected(1, waitFor))

	f.manager.Disconnect()
	f.manager.Disconnect()

	assert.False(t, f.manager.IsConnected())
	assert.Equal(t, domain.StateDisconnected, f.manager.Status().State)
	assert.True(t, f.server.WaitConnected(0, waitFor))
	assert.ErrorIs(t, f.manager.Emit(domain.Typing, nil), domain.ErrNotConnected)

	mu.Lock()
	before := calls
	mu.Unlock()

	// no reconnect after a deliberate close, listeners are gone
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))
	assert.True(t, f.server.WaitConnected(1, waitFor))
	assert.Equal(t, 2, f.server.Handshakes())
	mu.Lock()
	assert.Equal(t, before, calls)
	mu.Unlock()
}

// uploadReply answer every file_upload with fn(request)
func uploadReply(fn func(req domain.FileUploadRequest) *domain.FileUploadResult) func(*testtool.FakeChatServer, []byte) {
	return func(s *testtool.FakeChatServer, b []byte) {
		var env domain.Envelope
		if json.Unmarshal(b, &env) != nil || env.Event != domain.FileUpload {
			return
		}
		var req domain.FileUploadRequest
		if json.Unmarshal(env.Data, &req) != nil {
			return
		}
		res := fn(req)
		if res == nil {
			return
		}
		out, _ := domain.NewEnvelope(domain.FileUploadResponse, res)
		_ = s.Send(out)
	}
}

// 測試 上傳成功, 依 uploadId 對應回覆
func TestConnectionManager_UploadFile(t *testing.T) {
	var got domain.FileUploadRequest
	var mu sync.Mutex
	f := newManagerFixture(t, testClientConfig(), nil, uploadReply(func(req domain.FileUploadRequest) *domain.FileUploadResult {
		mu.Lock()
		got = req
		mu.Unlock()
		return &domain.FileUploadResult{UploadID: req.UploadID, Success: true, FileURL: "https://files/" + req.FileName}
	}))
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, "tk-1"))

	res, err := f.manager.UploadFile(context.Background(), FileUpload{
		FileName:       "ticket.txt",
		ContentType:    "text/plain",
		Reader:         bytes.NewBufferString("weighbridge ticket 301"),
		ConversationID: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://files/ticket.txt", res.FileURL)
	assert.Equal(t, "ticket.txt", res.FileName)
	assert.Equal(t, "text/plain", res.FileType)
	assert.Equal(t, int64(22), res.FileSize)
	assert.Equal(t, 0, f.manager.PendingUploads())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, res.UploadID, got.UploadID)
	assert.Equal(t, "c1", got.ConversationID)
	assert.Equal(t, "d2VpZ2hicmlkZ2UgdGlja2V0IDMwMQ==", got.Data)
}

// 測試 回覆沒有 uploadId 時對應最舊的上傳
func TestConnectionManager_UploadOldestPending(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, uploadReply(func(req domain.FileUploadRequest) *domain.FileUploadResult {
		return &domain.FileUploadResult{Success: true, FileURL: "https://files/x"}
	}))
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, ""))

	res, err := f.manager.UploadFile(context.Background(), FileUpload{
		FileName: "photo.png",
		Reader:   bytes.NewReader([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}),
		GroupID:  "g1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.UploadID)
	assert.Equal(t, "image/png", res.FileType)
}

// 測試 server 拒絕上傳
func TestConnectionManager_UploadRejected(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, uploadReply(func(req domain.FileUploadRequest) *domain.FileUploadResult {
		return &domain.FileUploadResult{UploadID: req.UploadID, Success: false, Error: "file too large"}
	}))
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, ""))

	_, err := f.manager.UploadFile(context.Background(), FileUpload{
		FileName:       "big.pdf",
		Reader:         bytes.NewBufferString("%PDF-1.4"),
		ConversationID: "c1",
	})
	assert.ErrorIs(t, err, domain.ErrUploadRejected)
	assert.Contains(t, err.Error(), "file too large")
}

// 測試 上傳逾時
func TestConnectionManager_UploadTimeout(t *testing.T) {
	cfg := testClientConfig()
	cfg.UploadTimeout = 100 * time.Millisecond
	f := newManagerFixture(t, cfg, nil, nil)
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, ""))

	_, err := f.manager.UploadFile(context.Background(), FileUpload{
		FileName:       "a.txt",
		Reader:         bytes.NewBufferString("a"),
		ConversationID: "c1",
	})
	assert.ErrorIs(t, err, domain.ErrUploadTimeout)
	assert.Equal(t, 0, f.manager.PendingUploads())
}

// 測試 上傳等待中 Disconnect
func TestConnectionManager_UploadAbortedByDisconnect(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, ""))

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.UploadFile(context.Background(), FileUpload{
			FileName:       "a.txt",
			Reader:         bytes.NewBufferString("a"),
			ConversationID: "c1",
		})
		done <- err
	}()

	require.Eventually(t, func() bool { return f.manager.PendingUploads() == 1 }, waitFor, 5*time.Millisecond)
	f.manager.Disconnect()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrDisconnected)
	case <-time.After(waitFor):
		t.Fatal("upload not released by Disconnect")
	}
}

// 測試 上傳參數檢查
func TestConnectionManager_UploadValidation(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)

	_, err := f.manager.UploadFile(context.Background(), FileUpload{FileName: "a", Reader: bytes.NewBufferString("a")})
	assert.ErrorIs(t, err, domain.ErrNoThread)

	_, err = f.manager.UploadFile(context.Background(), FileUpload{
		FileName:       "a",
		Reader:         bytes.NewBufferString("a"),
		ConversationID: "c1",
	})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Equal(t, 0, f.manager.PendingUploads())
}

// 測試 error 事件只記錄錯誤, 連線保持
func TestConnectionManager_ErrorEvent(t *testing.T) {
	f := newManagerFixture(t, testClientConfig(), nil, nil)
	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, ""))

	require.NoError(t, f.server.Send(domain.Envelope{Event: domain.ErrorEvent, Data: json.RawMessage(`{"message":"rate limited"}`)}))
	assert.Eventually(t, func() bool {
		return f.manager.Status().Error == "rate limited"
	}, waitFor, 10*time.Millisecond)
	assert.True(t, f.manager.IsConnected())
	assert.Equal(t, domain.StateConnected, f.manager.Status().State)
}

// 測試 狀態變化寫入 recorder, recorder 失敗不影響連線
func TestConnectionManager_Recorder(t *testing.T) {
	rec := new(MockStatusRecorder)
	rec.On("SaveStatus", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	f := newManagerFixture(t, testClientConfig(), rec, nil)

	require.NoError(t, f.manager.Connect(context.Background(), f.server.URL, ""))

	rec.AssertCalled(t, "SaveStatus", mock.Anything, mock.MatchedBy(func(st domain.ConnectionStatus) bool {
		return st.State == domain.StateConnecting
	}))
	rec.AssertCalled(t, "SaveStatus", mock.Anything, mock.MatchedBy(func(st domain.ConnectionStatus) bool {
		return st.State == domain.StateConnected
	}))
	assert.True(t, f.manager.IsConnected())
}
