package store

import (
	"sort"
	"sync"
	"time"

	"washery_chat/internal/chat/domain"
)

// DefaultTypingTTL typing indicator expires after this much inactivity
const DefaultTypingTTL = 3 * time.Second

type typingKey struct {
	threadID string
	userID   string
}

// PresenceStore online status per user and typing indicators per thread.
// no timers inside, SweepTyping is called by the host on an interval.
type PresenceStore struct {
	mu     sync.RWMutex
	ttl    time.Duration
	typing map[typingKey]domain.TypingIndicator
	online map[string]domain.OnlineStatus
}

// NewPresenceStore create PresenceStore, ttl <= 0 uses DefaultTypingTTL
func NewPresenceStore(ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &PresenceStore{
		ttl:    ttl,
		typing: make(map[typingKey]domain.TypingIndicator),
		online: make(map[string]domain.OnlineStatus),
	}
}

// TypingTTL configured expiry
func (s *PresenceStore) TypingTTL() time.Duration {
	return s.ttl
}

// SetTypingIndicator insert if (thread,user) is absent.
// a repeated event only refreshes LastActivity, it never adds a second entry.
func (s *PresenceStore) SetTypingIndicator(ind domain.TypingIndicator) bool {
	if ind.ThreadID == "" || ind.UserID == "" {
		return false
	}
	if ind.StartedAt.IsZero() {
		ind.StartedAt = time.Now()
	}
	if ind.LastActivity.IsZero() {
		ind.LastActivity = ind.StartedAt
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := typingKey{ind.ThreadID, ind.UserID}
	if cur, ok := s.typing[key]; ok {
		if ind.LastActivity.After(cur.LastActivity) {
			cur.LastActivity = ind.LastActivity
			s.typing[key] = cur
		}
		return false
	}
	s.typing[key] = ind
	return true
}

// RemoveTypingIndicator exact (thread,user) removal, no-op when absent
func (s *PresenceStore) RemoveTypingIndicator(threadID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := typingKey{threadID, userID}
	if _, ok := s.typing[key]; !ok {
		return false
	}
	delete(s.typing, key)
	return true
}

// RemoveUserTyping drop every indicator of userID (user went offline)
func (s *PresenceStore) RemoveUserTyping(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.typing {
		if k.userID == userID {
			delete(s.typing, k)
			n++
		}
	}
	return n
}

// TypingIndicators indicators of threadID, oldest first
func (s *PresenceStore) TypingIndicators(threadID string) []domain.TypingIndicator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TypingIndicator
	for k, v := range s.typing {
		if k.threadID == threadID {
			out = append(out, v)
		}
	}
	sortTyping(out)
	return out
}

// AllTypingIndicators every indicator, oldest first
func (s *PresenceStore) AllTypingIndicators() []domain.TypingIndicator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TypingIndicator, 0, len(s.typing))
	for _, v := range s.typing {
		out = append(out, v)
	}
	sortTyping(out)
	return out
}

func sortTyping(list []domain.TypingIndicator) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].UserID < list[j].UserID
		}
		return list[i].StartedAt.Before(list[j].StartedAt)
	})
}

// SweepTyping remove indicators idle for longer than the ttl, return removed count
func (s *PresenceStore) SweepTyping(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, v := range s.typing {
		if now.Sub(v.LastActivity) > s.ttl {
			delete(s.typing, k)
			n++
		}
	}
	return n
}

// SetOnlineStatus upsert, last write wins
func (s *PresenceStore) SetOnlineStatus(st domain.OnlineStatus) {
	if st.UserID == "" {
		return
	}
	s.mu.Lock()
	s.online[st.UserID] = st
	s.mu.Unlock()
}

// SetMultipleOnlineStatus full replace with the snapshot sent on connect
func (s *PresenceStore) SetMultipleOnlineStatus(list []domain.OnlineStatus) {
	next := make(map[string]domain.OnlineStatus, len(list))
	for _, st := range list {
		if st.UserID == "" {
			continue
		}
		next[st.UserID] = st
	}
	s.mu.Lock()
	s.online = next
	s.mu.Unlock()
}

// OnlineStatus status of userID
func (s *PresenceStore) OnlineStatus(userID string) (domain.OnlineStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.online[userID]
	return st, ok
}

// IsOnline report userID is online
func (s *PresenceStore) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[userID].IsOnline
}

// OnlineUsers ids currently online, sorted
func (s *PresenceStore) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, st := range s.online {
		if st.IsOnline {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Statuses every known status sorted by user id
func (s *PresenceStore) Statuses() []domain.OnlineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OnlineStatus, 0, len(s.online))
	for _, st := range s.online {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
