package store

import (
	"sync"

	"washery_chat/internal/chat/domain"
)

// LinkStore contextual links per conversation/group, plus the last REST error
type LinkStore struct {
	mu      sync.RWMutex
	links   map[string][]domain.ContextualLink
	loading bool
	err     string
}

// NewLinkStore create LinkStore
func NewLinkStore() *LinkStore {
	return &LinkStore{links: make(map[string][]domain.ContextualLink)}
}

// SetLinks replace links of threadID
func (s *LinkStore) SetLinks(threadID string, links []domain.ContextualLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[threadID] = append([]domain.ContextualLink(nil), links...)
}

// AddLink append l to its thread, same id is not added twice
func (s *LinkStore) AddLink(l domain.ContextualLink) bool {
	threadID := l.ThreadID()
	if threadID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cur := range s.links[threadID] {
		if l.ID != "" && cur.ID == l.ID {
			return false
		}
	}
	s.links[threadID] = append(s.links[threadID], l)
	return true
}

// RemoveLink remove link id from whatever thread holds it
func (s *LinkStore) RemoveLink(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for threadID, list := range s.links {
		for i, l := range list {
			if l.ID == id {
				s.links[threadID] = append(list[:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Links copy of links of threadID
func (s *LinkStore) Links(threadID string) []domain.ContextualLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ContextualLink(nil), s.links[threadID]...)
}

// SetLoading loading flag for the UI spinner
func (s *LinkStore) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Loading loading flag
func (s *LinkStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetError store the user-visible error, "" clears it
func (s *LinkStore) SetError(msg string) {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
}

// Error last error
func (s *LinkStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
