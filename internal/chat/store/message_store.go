package store

import (
	"sync"

	"washery_chat/internal/chat/domain"
)

// MessageStore flat message collection + unread counters + pagination cursors.
// at most one entry per message id.
type MessageStore struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	ids      map[string]struct{}
	unread   map[string]int
	cursors  map[string]domain.PageCursor
}

// NewMessageStore create MessageStore
func NewMessageStore() *MessageStore {
	return &MessageStore{
		ids:     make(map[string]struct{}),
		unread:  make(map[string]int),
		cursors: make(map[string]domain.PageCursor),
	}
}

// AddMessage insert msg if its id is new, return false for duplicates
func (s *MessageStore) AddMessage(msg domain.ChatMessage) bool {
	if msg.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[msg.ID]; ok {
		return false
	}
	s.ids[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg.Clone())
	return true
}

// UpdateMessage merge patch into message id, no-op when absent
func (s *MessageStore) UpdateMessage(id string, patch domain.MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	return s.messages[i].Apply(patch)
}

// DeleteMessage remove message id, no-op when absent
func (s *MessageStore) DeleteMessage(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	delete(s.ids, id)
	return true
}

// PrependMessages put older history before the current head, keep given order.
// return number inserted.
func (s *MessageStore) PrependMessages(msgs []domain.ChatMessage) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.filterNew(msgs)
	if len(fresh) == 0 {
		return 0
	}
	s.messages = append(fresh, s.messages...)
	return len(fresh)
}

// AppendMessages put newer history after the tail, keep given order.
// return number inserted.
func (s *MessageStore) AppendMessages(msgs []domain.ChatMessage) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.filterNew(msgs)
	s.messages = append(s.messages, fresh...)
	return len(fresh)
}

// filterNew drop ids already stored or repeated inside msgs, registers the rest. caller holds the lock.
func (s *MessageStore) filterNew(msgs []domain.ChatMessage) []domain.ChatMessage {
	fresh := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, ok := s.ids[m.ID]; ok {
			continue
		}
		s.ids[m.ID] = struct{}{}
		fresh = append(fresh, m.Clone())
	}
	return fresh
}

func (s *MessageStore) indexOf(id string) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Message get a copy of message id
func (s *MessageStore) Message(id string) (domain.ChatMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return domain.ChatMessage{}, false
	}
	return s.messages[i].Clone(), true
}

// Messages copy of the whole collection in store order
func (s *MessageStore) Messages() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatMessage, len(s.messages))
	for i := range s.messages {
		out[i] = s.messages[i].Clone()
	}
	return out
}

// ThreadMessages messages of one conversation or group in store order
func (s *MessageStore) ThreadMessages(threadID string) []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ChatMessage
	for i := range s.messages {
		if s.messages[i].ThreadID() == threadID {
			out = append(out, s.messages[i].Clone())
		}
	}
	return out
}

// Len number of stored messages
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// IncrementUnread +1 unread for threadID
func (s *MessageStore) IncrementUnread(threadID string) {
	if threadID == "" {
		return
	}
	s.mu.Lock()
	s.unread[threadID]++
	s.mu.Unlock()
}

// SetUnread set unread for threadID, negative counts are clamped to 0
func (s *MessageStore) SetUnread(threadID string, n int) {
	if threadID == "" {
		return
	}
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.unread[threadID] = n
	s.mu.Unlock()
}

// ClearUnread reset unread of threadID
func (s *MessageStore) ClearUnread(threadID string) {
	s.mu.Lock()
	delete(s.unread, threadID)
	s.mu.Unlock()
}

// Unread unread count of threadID
func (s *MessageStore) Unread(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[threadID]
}

// SetCursor save pagination state of threadID
func (s *MessageStore) SetCursor(threadID string, c domain.PageCursor) {
	s.mu.Lock()
	s.cursors[threadID] = c
	s.mu.Unlock()
}

// Cursor pagination state of threadID
func (s *MessageStore) Cursor(threadID string) (domain.PageCursor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[threadID]
	return c, ok
}

// Reset drop everything, used when switching user
func (s *MessageStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.unread = make(map[string]int)
	s.cursors = make(map[string]domain.PageCursor)
}
