package store

import (
	"sort"
	"sync"

	"washery_chat/internal/chat/domain"
	"washery_chat/pkg"
)

// GroupStore group list, selected group and its roster.
// rosters of inactive groups are not kept live, they are refreshed on selection.
type GroupStore struct {
	mu       sync.RWMutex
	items    map[string]*domain.GroupChat
	order    []string
	activeID string
}

// NewGroupStore create GroupStore
func NewGroupStore() *GroupStore {
	return &GroupStore{items: make(map[string]*domain.GroupChat)}
}

// SetGroups replace the whole list, selection is kept if still present
func (s *GroupStore) SetGroups(list []domain.GroupChat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*domain.GroupChat, len(list))
	s.order = s.order[:0]
	for _, g := range list {
		if g.ID == "" {
			continue
		}
		if _, dup := s.items[g.ID]; dup {
			continue
		}
		cp := normalizeGroup(g)
		s.items[g.ID] = &cp
		s.order = append(s.order, g.ID)
	}
	if _, ok := s.items[s.activeID]; !ok {
		s.activeID = ""
	}
}

// UpsertGroup insert or replace g
func (s *GroupStore) UpsertGroup(g domain.GroupChat) {
	if g.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := normalizeGroup(g)
	if _, ok := s.items[g.ID]; !ok {
		s.order = append(s.order, g.ID)
	}
	s.items[g.ID] = &cp
}

func normalizeGroup(g domain.GroupChat) domain.GroupChat {
	cp := g.Clone()
	cp.Members = uniqueMembers(cp.Members)
	cp.LastMessage = tail(cp.Messages)
	if cp.LastMessage == nil && g.LastMessage != nil {
		lm := g.LastMessage.Clone()
		cp.LastMessage = &lm
	}
	if cp.UnreadCount < 0 {
		cp.UnreadCount = 0
	}
	return cp
}

func uniqueMembers(in []domain.UserSummary) []domain.UserSummary {
	out := in[:0]
	seen := make(map[string]struct{}, len(in))
	for _, m := range in {
		if m.ID == "" {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// UpdateGroup merge patch into group id, no-op when absent
func (s *GroupStore) UpdateGroup(id string, patch domain.GroupPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return false
	}
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.Description != nil {
		g.Description = *patch.Description
	}
	if patch.Avatar != nil {
		g.Avatar = *patch.Avatar
	}
	if patch.AdminID != nil {
		g.AdminID = *patch.AdminID
	}
	if patch.Permissions != nil {
		g.Permissions = *patch.Permissions
	}
	if patch.UnreadCount != nil {
		n := *patch.UnreadCount
		if n < 0 {
			n = 0
		}
		g.UnreadCount = n
	}
	return true
}

// RemoveGroup drop group id (left or removed from it)
func (s *GroupStore) RemoveGroup(id string) bool {
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

// SelectGroup make id active and reset its unread count, unknown id is ignored
func (s *GroupStore) SelectGroup(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return false
	}
	s.activeID = id
	g.UnreadCount = 0
	return true
}

// ClearSelection no active group
func (s *GroupStore) ClearSelection() {
	s.mu.Lock()
	s.activeID = ""
	s.mu.Unlock()
}

// ActiveID id of the selected group
func (s *GroupStore) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// IsActive report whether id is the selected group
func (s *GroupStore) IsActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id != "" && s.activeID == id
}

// Selected copy of the selected group
func (s *GroupStore) Selected() (domain.GroupChat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.items[s.activeID]
	if !ok {
		return domain.GroupChat{}, false
	}
	return g.Clone(), true
}

// Group copy of group id
func (s *GroupStore) Group(id string) (domain.GroupChat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.items[id]
	if !ok {
		return domain.GroupChat{}, false
	}
	return g.Clone(), true
}

// Has report whether id is known
func (s *GroupStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Groups copies, most recent activity first
func (s *GroupStore) Groups() []domain.GroupChat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.GroupChat, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i].LastMessage, out[i].UpdatedAt).After(activity(out[j].LastMessage, out[j].UpdatedAt))
	})
	return out
}

// Len number of groups
func (s *GroupStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetMembers replace the roster of groupID (loaded on selection)
func (s *GroupStore) SetMembers(groupID string, members []domain.UserSummary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[groupID]
	if !ok {
		return false
	}
	g.Members = uniqueMembers(append([]domain.UserSummary(nil), members...))
	return true
}

// AddMember add member to the selected group roster.
// dropped when no group is selected or groupID is not the selected one.
func (s *GroupStore) AddMember(groupID string, member domain.UserSummary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.selectedLocked(groupID)
	if g == nil || member.ID == "" {
		return false
	}
	for _, m := range g.Members {
		if m.ID == member.ID {
			return false
		}
	}
	g.Members = append(g.Members, member)
	return true
}

// RemoveMember remove userID from the selected group roster, same rules as AddMember
func (s *GroupStore) RemoveMember(groupID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := s.selectedLocked(groupID)
	if g == nil {
		return false
	}
	for i, m := range g.Members {
		if m.ID == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return true
		}
	}
	return false
}

func (s *GroupStore) selectedLocked(groupID string) *domain.GroupChat {
	if s.activeID == "" || s.activeID != groupID {
		return nil
	}
	return s.items[groupID]
}

// Members roster of the selected group
func (s *GroupStore) Members() []domain.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.items[s.activeID]
	if !ok {
		return nil
	}
	return append([]domain.UserSummary(nil), g.Members...)
}

// CanPerform evaluate the permission matrix of the selected group for userID
func (s *GroupStore) CanPerform(action domain.GroupAction, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.items[s.activeID]
	if !ok {
		return false
	}
	role, ok := g.RoleOf(userID)
	if !ok {
		return false
	}
	return g.Permissions.Allows(action, role)
}

// IncrementUnreadCount +1 unread, no-op for unknown id
func (s *GroupStore) IncrementUnreadCount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return false
	}
	g.UnreadCount++
	return true
}

// ResetUnreadCount unread = 0
func (s *GroupStore) ResetUnreadCount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return false
	}
	g.UnreadCount = 0
	return true
}

// TotalUnread sum of unread counts
func (s *GroupStore) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, g := range s.items {
		total += g.UnreadCount
	}
	return total
}

// AppendMessage add msg to the embedded list and move lastMessage
func (s *GroupStore) AppendMessage(id string, msg domain.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return false
	}
	var added bool
	g.Messages, g.LastMessage, added = appendThreadMessage(g.Messages, msg)
	if added && msg.CreatedAt.After(g.UpdatedAt) {
		g.UpdatedAt = msg.CreatedAt
	}
	return added
}

// PatchMessage apply patch to the embedded copy of a message
// PrependMessages put an older history page before the embedded list, return number inserted
func (s *GroupStore) PrependMessages(id string, msgs []domain.ChatMessage) int {
	return s.mergeMessages(id, msgs, true)
}

// AppendMessages put a newer history page after the embedded list, return number inserted
func (s *GroupStore) AppendMessages(id string, msgs []domain.ChatMessage) int {
	return s.mergeMessages(id, msgs, false)
}

func (s *GroupStore) mergeMessages(id string, msgs []domain.ChatMessage, older bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return 0
	}
	var n int
	g.Messages, g.LastMessage, n = mergeThreadMessages(g.Messages, msgs, older)
	g.UpdatedAt = activity(g.LastMessage, g.UpdatedAt)
	return n
}

func (s *GroupStore) PatchMessage(id, messageID string, patch domain.MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return false
	}
	var changed bool
	g.LastMessage, changed = patchThreadMessage(g.Messages, g.LastMessage, messageID, patch)
	return changed
}

// RemoveMessage drop a message from the embedded list
func (s *GroupStore) RemoveMessage(id, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.items[id]
	if !ok {
		return false
	}
	var removed bool
	g.Messages, g.LastMessage, removed = removeThreadMessage(g.Messages, g.LastMessage, messageID)
	return removed
}
