package app

import (
	"context"
	"sync"

	"washery_chat/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockLinkRepository Mock LinkRepository
type MockLinkRepository struct {
	mock.Mock
}

// ConversationLinks moke get conversation links
func (m *MockLinkRepository) ConversationLinks(ctx context.Context, conversationID string) ([]domain.ContextualLink, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ContextualLink), args.Error(1)
	}
	return nil, args.Error(1)
}

// GroupLinks moke get group links
func (m *MockLinkRepository) GroupLinks(ctx context.Context, groupID string) ([]domain.ContextualLink, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ContextualLink), args.Error(1)
	}
	return nil, args.Error(1)
}

// CreateLink moke create link
func (m *MockLinkRepository) CreateLink(ctx context.Context, req domain.CreateLinkRequest) (*domain.ContextualLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.ContextualLink), args.Error(1)
	}
	return nil, args.Error(1)
}

// DeleteLink moke delete link
func (m *MockLinkRepository) DeleteLink(ctx context.Context, linkID string) error {
	args := m.Called(ctx, linkID)
	return args.Error(0)
}

// MockStatusRecorder Mock StatusRecorder
type MockStatusRecorder struct {
	mock.Mock
}

// SaveStatus moke save connection status
func (m *MockStatusRecorder) SaveStatus(ctx context.Context, st domain.ConnectionStatus) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}

// MockEmitter Mock Emitter, Emit calls are also recorded in order
type MockEmitter struct {
	mock.Mock

	mu   sync.Mutex
	sent []domain.Event
}

// Emit moke emit event
func (m *MockEmitter) Emit(event domain.Event, payload interface{}) error {
	m.mu.Lock()
	m.sent = append(m.sent, event)
	m.mu.Unlock()
	args := m.Called(event, payload)
	return args.Error(0)
}

// UploadFile moke upload file
func (m *MockEmitter) UploadFile(ctx context.Context, f FileUpload) (*domain.FileUploadResult, error) {
	args := m.Called(ctx, f)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.FileUploadResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// Sent events emitted so far
func (m *MockEmitter) Sent() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.sent...)
}
