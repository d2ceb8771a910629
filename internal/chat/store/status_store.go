package store

import (
	"sync"
	"time"

	"washery_chat/internal/chat/domain"
)

// StatusStore connection flag and user-visible error, owned by the connection manager
type StatusStore struct {
	mu     sync.RWMutex
	status domain.ConnectionStatus
}

// NewStatusStore create StatusStore in disconnected state
func NewStatusStore() *StatusStore {
	return &StatusStore{status: domain.ConnectionStatus{State: domain.StateDisconnected, UpdatedAt: time.Now()}}
}

// SetState change state, return the new snapshot.
// connected clears the error and the attempt counter.
func (s *StatusStore) SetState(state domain.ConnectionState, attempt int) domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = state
	s.status.ReconnectAttempt = attempt
	if state == domain.StateConnected {
		s.status.Error = ""
		s.status.ReconnectAttempt = 0
	}
	s.status.UpdatedAt = time.Now()
	return s.status
}

// SetError store msg as the user-visible error
func (s *StatusStore) SetError(msg string) domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Error = msg
	s.status.UpdatedAt = time.Now()
	return s.status
}

// ClearError drop the error
func (s *StatusStore) ClearError() {
	s.mu.Lock()
	s.status.Error = ""
	s.mu.Unlock()
}

// Status snapshot
func (s *StatusStore) Status() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsConnected report state == connected
func (s *StatusStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.State == domain.StateConnected
}
