package store

import (
	"sort"
	"sync"

	"washery_chat/internal/chat/domain"
	"washery_chat/pkg"
)

// ConversationStore 1對1 conversation list, the active one and unread counters.
// selection is kept by id so patches are visible through Selected without re-selecting.
type ConversationStore struct {
	mu       sync.RWMutex
	items    map[string]*domain.Conversation
	order    []string
	activeID string
}

// NewConversationStore create ConversationStore
func NewConversationStore() *ConversationStore {
	return &ConversationStore{items: make(map[string]*domain.Conversation)}
}

// SetConversations replace the whole list (initial REST load), selection is kept if still present
func (s *ConversationStore) SetConversations(list []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*domain.Conversation, len(list))
	s.order = s.order[:0]
	for _, c := range list {
		if c.ID == "" {
			continue
		}
		if _, dup := s.items[c.ID]; dup {
			continue
		}
		cp := normalizeConversation(c)
		s.items[c.ID] = &cp
		s.order = append(s.order, c.ID)
	}
	if _, ok := s.items[s.activeID]; !ok {
		s.activeID = ""
	}
}

// UpsertConversation insert or replace c
func (s *ConversationStore) UpsertConversation(c domain.Conversation) {
	if c.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := normalizeConversation(c)
	if _, ok := s.items[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.items[c.ID] = &cp
}

func normalizeConversation(c domain.Conversation) domain.Conversation {
	cp := c.Clone()
	cp.LastMessage = tail(cp.Messages)
	if cp.LastMessage == nil && c.LastMessage != nil {
		// list not loaded yet, keep the server summary
		lm := c.LastMessage.Clone()
		cp.LastMessage = &lm
	}
	if cp.UnreadCount < 0 {
		cp.UnreadCount = 0
	}
	return cp
}

// UpdateConversation merge patch into conversation id, no-op when absent
func (s *ConversationStore) UpdateConversation(id string, patch domain.ConversationPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false
	}
	if patch.Participants != nil {
		c.Participants = append([]domain.UserSummary(nil), patch.Participants...)
	}
	if patch.UnreadCount != nil {
		n := *patch.UnreadCount
		if n < 0 {
			n = 0
		}
		c.UnreadCount = n
	}
	if patch.UpdatedAt != nil {
		c.UpdatedAt = *patch.UpdatedAt
	}
	return true
}

// RemoveConversation drop conversation id
func (s *ConversationStore) RemoveConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	s.order = pkg.Without(s.order, id)
	if s.activeID == id {
		s.activeID = ""
	}
	return true
}

// SelectConversation make id active and reset its unread count, unknown id is ignored
func (s *ConversationStore) SelectConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false
	}
	s.activeID = id
	c.UnreadCount = 0
	return true
}

// ClearSelection no active conversation
func (s *ConversationStore) ClearSelection() {
	s.mu.Lock()
	s.activeID = ""
	s.mu.Unlock()
}

// ActiveID id of the active conversation, "" if none
func (s *ConversationStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// IsActive report whether id is the active conversation
func (s *ConversationStore) IsActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id != "" && s.activeID == id
}

// Selected copy of the active conversation
func (s *ConversationStore) Selected() (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[s.activeID]
	if !ok {
		return domain.Conversation{}, false
	}
	return c.Clone(), true
}

// Conversation copy of conversation id
func (s *ConversationStore) Conversation(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.items[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return c.Clone(), true
}

// Has report whether id is known
func (s *ConversationStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Conversations copies, most recent activity first
func (s *ConversationStore) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i].LastMessage, out[i].UpdatedAt).After(activity(out[j].LastMessage, out[j].UpdatedAt))
	})
	return out
}

// Len number of conversations
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// IncrementUnreadCount +1 unread, no-op for unknown id (never creates a placeholder)
func (s *ConversationStore) IncrementUnreadCount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false
	}
	c.UnreadCount++
	return true
}

// ResetUnreadCount unread = 0
func (s *ConversationStore) ResetUnreadCount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false
	}
	c.UnreadCount = 0
	return true
}

// TotalUnread sum of unread counts
func (s *ConversationStore) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, c := range s.items {
		total += c.UnreadCount
	}
	return total
}

// AppendMessage add msg to the embedded list and move lastMessage, no-op for unknown id or duplicate
func (s *ConversationStore) AppendMessage(id string, msg domain.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false
	}
	var added bool
	c.Messages, c.LastMessage, added = appendThreadMessage(c.Messages, msg)
	if added && msg.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = msg.CreatedAt
	}
	return added
}

// PatchMessage apply patch to the embedded copy of a message
// PrependMessages put an older history page before the embedded list, return number inserted
func (s *ConversationStore) PrependMessages(id string, msgs []domain.ChatMessage) int {
	return s.mergeMessages(id, msgs, true)
}

// AppendMessages put a newer history page after the embedded list, return number inserted
func (s *ConversationStore) AppendMessages(id string, msgs []domain.ChatMessage) int {
	return s.mergeMessages(id, msgs, false)
}

func (s *ConversationStore) mergeMessages(id string, msgs []domain.ChatMessage, older bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return 0
	}
	var n int
	c.Messages, c.LastMessage, n = mergeThreadMessages(c.Messages, msgs, older)
	c.UpdatedAt = activity(c.LastMessage, c.UpdatedAt)
	return n
}

func (s *ConversationStore) PatchMessage(id, messageID string, patch domain.MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false
	}
	var changed bool
	c.LastMessage, changed = patchThreadMessage(c.Messages, c.LastMessage, messageID, patch)
	return changed
}

// RemoveMessage drop a message from the embedded list, lastMessage follows the new tail
func (s *ConversationStore) RemoveMessage(id, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.items[id]
	if !ok {
		return false
	}
	var removed bool
	c.Messages, c.LastMessage, removed = removeThreadMessage(c.Messages, c.LastMessage, messageID)
	return removed
}
