package store

import (
	"time"

	"washery_chat/internal/chat/domain"
)

// embedded message list helpers shared by conversations and groups.
// lastMessage always equals the tail of the list; when the list is not loaded yet
// the server provided lastMessage summary is kept.

func appendThreadMessage(list []domain.ChatMessage, msg domain.ChatMessage) ([]domain.ChatMessage, *domain.ChatMessage, bool) {
	for i := range list {
		if list[i].ID == msg.ID {
			return list, tail(list), false
		}
	}
	list = append(list, msg.Clone())
	return list, tail(list), true
}

// mergeThreadMessages put a history page before (older) or after the list, skipping known ids
func mergeThreadMessages(list []domain.ChatMessage, msgs []domain.ChatMessage, older bool) ([]domain.ChatMessage, *domain.ChatMessage, int) {
	seen := make(map[string]struct{}, len(list)+len(msgs))
	for i := range list {
		seen[list[i].ID] = struct{}{}
	}
	fresh := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m.Clone())
	}
	if len(fresh) == 0 {
		return list, tail(list), 0
	}
	if older {
		list = append(fresh, list...)
	} else {
		list = append(list, fresh...)
	}
	return list, tail(list), len(fresh)
}

func patchThreadMessage(list []domain.ChatMessage, last *domain.ChatMessage, id string, patch domain.MessagePatch) (*domain.ChatMessage, bool) {
	if len(list) == 0 {
		if last != nil && last.ID == id {
			return last, last.Apply(patch)
		}
		return last, false
	}
	changed := false
	for i := range list {
		if list[i].ID == id {
			changed = list[i].Apply(patch)
			break
		}
	}
	return tail(list), changed
}

func removeThreadMessage(list []domain.ChatMessage, last *domain.ChatMessage, id string) ([]domain.ChatMessage, *domain.ChatMessage, bool) {
	for i := range list {
		if list[i].ID == id {
			list = append(list[:i], list[i+1:]...)
			return list, tail(list), true
		}
	}
	if len(list) == 0 && last != nil && last.ID == id {
		return list, nil, true
	}
	return list, last, false
}

func tail(list []domain.ChatMessage) *domain.ChatMessage {
	if len(list) == 0 {
		return nil
	}
	m := list[len(list)-1].Clone()
	return &m
}

func activity(last *domain.ChatMessage, updatedAt time.Time) time.Time {
	if last != nil && last.CreatedAt.After(updatedAt) {
		return last.CreatedAt
	}
	return updatedAt
}
