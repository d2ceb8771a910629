package store

import (
	"sync"

	"washery_chat/internal/chat/domain"
)

// NotificationStore transient alert inbox, newest first.
// not deduplicated: every inbound message yields exactly one alert.
type NotificationStore struct {
	mu    sync.RWMutex
	items []domain.ChatNotification
}

// NewNotificationStore create NotificationStore
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// AddNotification insert n at the head
func (s *NotificationStore) AddNotification(n domain.ChatNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, domain.ChatNotification{})
	copy(s.items[1:], s.items)
	s.items[0] = n
}

// MarkNotificationRead mark id as read, no-op when absent
func (s *NotificationStore) MarkNotificationRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = true
			return true
		}
	}
	return false
}

// MarkAllRead mark every notification as read
func (s *NotificationStore) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		s.items[i].IsRead = true
	}
}

// MarkThreadRead mark notifications of one conversation/group read
func (s *NotificationStore) MarkThreadRead(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.items {
		it := &s.items[i]
		if it.IsRead {
			continue
		}
		if it.ConversationID == threadID || it.GroupID == threadID {
			it.IsRead = true
			n++
		}
	}
	return n
}

// RemoveNotification remove id, no-op when absent
func (s *NotificationStore) RemoveNotification(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drop every notification
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// Notifications copy, newest first
func (s *NotificationStore) Notifications() []domain.ChatNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChatNotification(nil), s.items...)
}

// HasMessage report whether an alert for messageID is already queued
func (s *NotificationStore) HasMessage(messageID string) bool {
	if messageID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, it := range s.items {
		if it.MessageID == messageID {
			return true
		}
	}
	return false
}

// UnreadCount number of unread notifications
func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, it := range s.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}
