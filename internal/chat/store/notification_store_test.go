package store

import (
	"testing"

	"washery_chat/internal/chat/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationStore_HeadInsert(t *testing.T) {
	s := NewNotificationStore()
	s.AddNotification(domain.ChatNotification{ID: "n1", ConversationID: "c1"})
	s.AddNotification(domain.ChatNotification{ID: "n2", ConversationID: "c2"})
	s.AddNotification(domain.ChatNotification{ID: "n2", ConversationID: "c2"})

	list := s.Notifications()
	require.Len(t, list, 3, "no dedup")
	assert.Equal(t, "n2", list[0].ID)
	assert.Equal(t, "n1", list[2].ID)
	assert.Equal(t, 3, s.UnreadCount())
}

func TestNotificationStore_ReadAndRemove(t *testing.T) {
	s := NewNotificationStore()
	s.AddNotification(domain.ChatNotification{ID: "n1", ConversationID: "c1"})
	s.AddNotification(domain.ChatNotification{ID: "n2", GroupID: "g1"})

	assert.False(t, s.MarkNotificationRead("ghost"))
	assert.True(t, s.MarkNotificationRead("n1"))
	assert.Equal(t, 1, s.UnreadCount())

	assert.Equal(t, 1, s.MarkThreadRead("g1"))
	assert.Equal(t, 0, s.UnreadCount())

	assert.False(t, s.RemoveNotification("ghost"))
	assert.True(t, s.RemoveNotification("n1"))
	assert.Len(t, s.Notifications(), 1)

	s.Clear()
	assert.Empty(t, s.Notifications())
}

func TestLinkStore(t *testing.T) {
	s := NewLinkStore()
	l := domain.ContextualLink{ID: "l1", ConversationID: "c1", EntityType: domain.EntityVehicle, EntityID: "TN-38-1234"}

	assert.True(t, s.AddLink(l))
	assert.False(t, s.AddLink(l))
	assert.False(t, s.AddLink(domain.ContextualLink{ID: "l2"}), "no thread")
	assert.Len(t, s.Links("c1"), 1)

	assert.True(t, s.RemoveLink("l1"))
	assert.False(t, s.RemoveLink("l1"))
	assert.Empty(t, s.Links("c1"))

	s.SetError("boom")
	assert.Equal(t, "boom", s.Error())
}

func TestStatusStoreBasic(t *testing.T) {
	s := NewStatusStore()
	assert.Equal(t, domain.StateDisconnected, s.Status().State)

	s.SetState(domain.StateReconnecting, 2)
	s.SetError("dial failed")
	st := s.Status()
	assert.Equal(t, 2, st.ReconnectAttempt)
	assert.Equal(t, "dial failed", st.Error)

	st = s.SetState(domain.StateConnected, 0)
	assert.Empty(t, st.Error)
	assert.True(t, s.IsConnected())
}
