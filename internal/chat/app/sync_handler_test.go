package app

import (
	"context"
	"testing"
	"time"

	"washery_chat/internal/chat/domain"
	"washery_chat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

type syncFixture struct {
	t       *testing.T
	stores  *Stores
	handler *ChatSyncHandler
	router  *EventRouter
}

// newSyncFixture current user "me", conversations c1 (with u2) and c2 (with u3), group g1
func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	logger.SetNewNop()

	stores := NewStores(3 * time.Second)
	stores.Conversations.SetConversations([]domain.Conversation{
		{ID: "c1", ParticipantIDs: []string{"me", "u2"}, UpdatedAt: fixedNow.Add(-time.Hour)},
		{ID: "c2", ParticipantIDs: []string{"me", "u3"}, UpdatedAt: fixedNow.Add(-2 * time.Hour)},
	})
	stores.Groups.SetGroups([]domain.GroupChat{{
		ID:      "g1",
		Name:    "Shift A",
		AdminID: "me",
		Members: []domain.UserSummary{
			{ID: "me", Name: "Me", Role: domain.RoleAdmin},
			{ID: "u2", Name: "Operator", Role: domain.RoleMember},
		},
		Permissions: domain.DefaultGroupPermissions(),
	}})

	h := NewChatSyncHandler(stores, "me")
	h.now = func() time.Time { return fixedNow }
	r := NewEventRouter()
	h.Register(r)
	return &syncFixture{t: t, stores: stores, handler: h, router: r}
}

func (f *syncFixture) send(event domain.Event, payload interface{}) bool {
	f.t.Helper()
	return f.router.DispatchRaw(context.Background(), frame(f.t, event, payload))
}

func (f *syncFixture) receive(id, conv, group, sender string) {
	f.t.Helper()
	f.send(domain.MessageReceived, map[string]interface{}{
		"id":             id,
		"conversationId": conv,
		"groupId":        group,
		"senderId":       sender,
		"content":        "msg " + id,
	})
}

// 測試 註冊的 inbound 事件
func TestChatSyncHandler_Register(t *testing.T) {
	f := newSyncFixture(t)
	for _, e := range []domain.Event{
		domain.MessageReceived, domain.MessageStatusUpdated, domain.MessageDeleted, domain.MessageRead,
		domain.UserTyping, domain.UserStoppedTyping, domain.UserOnline, domain.UserOffline,
		domain.OnlineUsersList, domain.GroupMemberAdded, domain.GroupMemberRemoved, domain.GroupUpdated,
		domain.NotificationReceived,
	} {
		assert.True(t, f.router.Has(e), e)
	}
}

// 測試 active thread 收到訊息不增加 unread
func TestChatSyncHandler_MessageToActiveThread(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Conversations.SelectConversation("c1")

	f.receive("m1", "c1", "", "u2")

	s := f.stores
	assert.Equal(t, 1, s.Messages.Len())
	assert.Equal(t, 0, s.Messages.Unread("c1"))
	assert.Empty(t, s.Notifications.Notifications())

	c, ok := s.Conversations.Conversation("c1")
	require.True(t, ok)
	require.Len(t, c.Messages, 1)
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "m1", c.LastMessage.ID)
	assert.Equal(t, 0, c.UnreadCount)
}

// 測試 非 active thread 收到訊息: unread +1 並產生通知
func TestChatSyncHandler_MessageToInactiveThread(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Conversations.SelectConversation("c1")

	f.receive("m2", "c2", "", "u3")

	s := f.stores
	assert.Equal(t, 1, s.Messages.Unread("c2"))
	c2, _ := s.Conversations.Conversation("c2")
	assert.Equal(t, 1, c2.UnreadCount)

	list := s.Notifications.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, "msg-m2", list[0].ID)
	assert.Equal(t, "m2", list[0].MessageID)
	assert.Equal(t, "c2", list[0].ConversationID)
	assert.False(t, list[0].IsRead)

	// newest conversation first
	assert.Equal(t, "c2", s.Conversations.Conversations()[0].ID)
}

// 測試 自己送出的訊息不算 unread
func TestChatSyncHandler_OwnMessage(t *testing.T) {
	f := newSyncFixture(t)
	f.receive("m3", "c2", "", "me")

	assert.Equal(t, 0, f.stores.Messages.Unread("c2"))
	assert.Empty(t, f.stores.Notifications.Notifications())
	c2, _ := f.stores.Conversations.Conversation("c2")
	assert.Len(t, c2.Messages, 1)
}

// 測試 重複訊息只處理一次
func TestChatSyncHandler_DuplicateMessage(t *testing.T) {
	f := newSyncFixture(t)
	f.receive("m1", "", "g1", "u2")
	f.receive("m1", "", "g1", "u2")

	s := f.stores
	assert.Equal(t, 1, s.Messages.Len())
	assert.Equal(t, 1, s.Messages.Unread("g1"))
	g, _ := s.Groups.Group("g1")
	assert.Len(t, g.Messages, 1)
	assert.Equal(t, 1, g.UnreadCount)
	assert.Len(t, s.Notifications.Notifications(), 1)
}

// 測試 缺少欄位時使用預設值, 沒有 id 的訊息丟棄
func TestChatSyncHandler_MessageDefaults(t *testing.T) {
	f := newSyncFixture(t)
	f.send(domain.MessageReceived, map[string]interface{}{"id": "m9", "conversationId": "c1", "senderId": "u2"})
	f.send(domain.MessageReceived, map[string]interface{}{"conversationId": "c1", "senderId": "u2"})
	f.send(domain.MessageReceived, map[string]interface{}{"id": "m10", "senderId": "u2"})

	s := f.stores
	require.Equal(t, 1, s.Messages.Len())
	m, ok := s.Messages.Message("m9")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSent, m.Status)
	assert.Equal(t, domain.MessageTypeText, m.Type)
	assert.NotNil(t, m.ReadBy)
	assert.Empty(t, m.ReadBy)
	assert.True(t, fixedNow.Equal(m.CreatedAt))
}

// 測試 狀態更新同步到 store 與 thread 內嵌訊息, 狀態不倒退
func TestChatSyncHandler_StatusUpdated(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Conversations.SelectConversation("c1")
	f.receive("m1", "c1", "", "me")

	f.send(domain.MessageStatusUpdated, map[string]string{"messageId": "m1", "status": "read", "userId": "u2"})
	f.send(domain.MessageStatusUpdated, map[string]string{"messageId": "m1", "status": "delivered"})
	f.send(domain.MessageStatusUpdated, map[string]string{"messageId": "missing", "status": "read"})

	m, _ := f.stores.Messages.Message("m1")
	assert.Equal(t, domain.StatusRead, m.Status)
	assert.Equal(t, []string{"u2"}, m.ReadBy)

	c, _ := f.stores.Conversations.Conversation("c1")
	require.Len(t, c.Messages, 1)
	assert.Equal(t, domain.StatusRead, c.Messages[0].Status)
	assert.Equal(t, domain.StatusRead, c.LastMessage.Status)
	assert.Equal(t, 1, f.stores.Messages.Len())
}

// 測試 同一個已讀事件重送, readBy 不重複
func TestChatSyncHandler_ReadEventReplayed(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Conversations.SelectConversation("c1")
	f.receive("m1", "c1", "", "me")

	read := map[string]string{"messageId": "m1", "status": "read", "userId": "u2"}
	f.send(domain.MessageStatusUpdated, read)
	f.send(domain.MessageStatusUpdated, read)

	m, _ := f.stores.Messages.Message("m1")
	assert.Len(t, m.ReadBy, 1)

	c, _ := f.stores.Conversations.Conversation("c1")
	require.Len(t, c.Messages, 1)
	assert.Len(t, c.Messages[0].ReadBy, 1)
	assert.Len(t, c.LastMessage.ReadBy, 1)
}

func historyMsg(id, conv, group string, at time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:             id,
		ConversationID: conv,
		GroupID:        group,
		SenderID:       "u2",
		Content:        "msg " + id,
		Type:           domain.MessageTypeText,
		Status:         domain.StatusSent,
		ReadBy:         []string{},
		CreatedAt:      at,
	}
}

func threadIDs(list []domain.ChatMessage) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}

// 測試 載入歷史時 flat store 與 conversation 內嵌訊息一致, 不產生未讀
func TestChatSyncHandler_ApplyHistory(t *testing.T) {
	f := newSyncFixture(t)
	f.receive("m3", "c1", "", "u2")
	unread := f.stores.Messages.Unread("c1")

	older := []domain.ChatMessage{
		historyMsg("m1", "c1", "", fixedNow.Add(-3*time.Minute)),
		historyMsg("m2", "c1", "", fixedNow.Add(-2*time.Minute)),
		historyMsg("m3", "c1", "", fixedNow),
		historyMsg("x1", "c2", "", fixedNow),
	}
	assert.Equal(t, 2, f.handler.ApplyHistory("c1", older, true))

	newer := []domain.ChatMessage{historyMsg("m4", "c1", "", fixedNow.Add(time.Minute))}
	assert.Equal(t, 1, f.handler.ApplyHistory("c1", newer, false))
	assert.Equal(t, 0, f.handler.ApplyHistory("c1", newer, false))

	flat := threadIDs(f.stores.Messages.ThreadMessages("c1"))
	c, _ := f.stores.Conversations.Conversation("c1")
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, flat)
	assert.Equal(t, flat, threadIDs(c.Messages))
	assert.Equal(t, "m4", c.LastMessage.ID)

	_, ok := f.stores.Messages.Message("x1")
	assert.False(t, ok)
	assert.Equal(t, unread, f.stores.Messages.Unread("c1"))
	assert.Equal(t, 1, f.stores.Notifications.UnreadCount())
}

func TestChatSyncHandler_ApplyHistoryGroup(t *testing.T) {
	f := newSyncFixture(t)

	page := []domain.ChatMessage{
		historyMsg("g-1", "", "g1", fixedNow.Add(-time.Minute)),
		historyMsg("g-2", "", "g1", fixedNow),
	}
	assert.Equal(t, 2, f.handler.ApplyHistory("g1", page, true))

	g, _ := f.stores.Groups.Group("g1")
	assert.Equal(t, []string{"g-1", "g-2"}, threadIDs(g.Messages))
	assert.Equal(t, threadIDs(f.stores.Messages.ThreadMessages("g1")), threadIDs(g.Messages))
	assert.Equal(t, "g-2", g.LastMessage.ID)
	assert.Equal(t, 0, f.stores.Groups.TotalUnread())
}

// 測試 刪除訊息, lastMessage 退回上一則
func TestChatSyncHandler_MessageDeleted(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Groups.SelectGroup("g1")
	f.receive("m1", "", "g1", "u2")
	f.receive("m2", "", "g1", "u2")

	f.send(domain.MessageDeleted, map[string]string{"messageId": "m2"})
	f.send(domain.MessageDeleted, map[string]string{"messageId": "nope", "groupId": "g1"})

	_, ok := f.stores.Messages.Message("m2")
	assert.False(t, ok)
	g, _ := f.stores.Groups.Group("g1")
	require.Len(t, g.Messages, 1)
	require.NotNil(t, g.LastMessage)
	assert.Equal(t, "m1", g.LastMessage.ID)
}

// 測試 對方已讀整個 thread
func TestChatSyncHandler_MessageReadByPeer(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Conversations.SelectConversation("c1")
	f.receive("m1", "c1", "", "me")
	f.receive("m2", "c1", "", "u2")
	f.receive("m3", "c1", "", "me")

	f.send(domain.MessageRead, map[string]interface{}{"conversationId": "c1", "userId": "u2"})

	for _, id := range []string{"m1", "m3"} {
		m, _ := f.stores.Messages.Message(id)
		assert.Equal(t, domain.StatusRead, m.Status, id)
		assert.Contains(t, m.ReadBy, "u2")
	}
	m2, _ := f.stores.Messages.Message("m2")
	assert.Equal(t, domain.StatusSent, m2.Status)
}

// 測試 自己在其他裝置已讀, 清除 unread 與通知
func TestChatSyncHandler_MessageReadBySelf(t *testing.T) {
	f := newSyncFixture(t)
	f.receive("m1", "c2", "", "u3")
	f.receive("m2", "c2", "", "u3")
	require.Equal(t, 2, f.stores.Messages.Unread("c2"))

	f.send(domain.MessageRead, map[string]interface{}{"conversationId": "c2", "userId": "me", "messageIds": []string{"m1"}})

	s := f.stores
	assert.Equal(t, 0, s.Messages.Unread("c2"))
	c2, _ := s.Conversations.Conversation("c2")
	assert.Equal(t, 0, c2.UnreadCount)
	assert.Equal(t, 0, s.Notifications.UnreadCount())

	m1, _ := s.Messages.Message("m1")
	assert.Equal(t, domain.StatusRead, m1.Status)
	m2, _ := s.Messages.Message("m2")
	assert.Equal(t, domain.StatusSent, m2.Status)
}

// 測試 typing 開始 / 結束, 自己的 typing 忽略
func TestChatSyncHandler_Typing(t *testing.T) {
	f := newSyncFixture(t)
	p := f.stores.Presence

	f.send(domain.UserTyping, map[string]string{"conversationId": "c1", "userId": "u2", "userName": "Operator"})
	f.send(domain.UserTyping, map[string]string{"conversationId": "c1", "userId": "u2"})
	f.send(domain.UserTyping, map[string]string{"conversationId": "c1", "userId": "me"})
	f.send(domain.UserTyping, map[string]string{"groupId": "g1", "userId": "u2"})

	list := p.TypingIndicators("c1")
	require.Len(t, list, 1)
	assert.Equal(t, "u2", list[0].UserID)
	assert.Equal(t, "Operator", list[0].UserName)

	f.send(domain.UserStoppedTyping, map[string]string{"conversationId": "c1", "userId": "u9"})
	assert.Len(t, p.TypingIndicators("c1"), 1)

	f.send(domain.UserStoppedTyping, map[string]string{"conversationId": "c1", "userId": "u2"})
	assert.Empty(t, p.TypingIndicators("c1"))
	assert.Len(t, p.TypingIndicators("g1"), 1)
}

// 測試 上線 / 離線, 離線清除 typing
func TestChatSyncHandler_Presence(t *testing.T) {
	f := newSyncFixture(t)
	p := f.stores.Presence

	f.send(domain.UserOnline, map[string]string{"userId": "u2"})
	f.send(domain.UserTyping, map[string]string{"groupId": "g1", "userId": "u2"})
	assert.True(t, p.IsOnline("u2"))

	seen := fixedNow.Add(-time.Minute)
	f.send(domain.UserOffline, map[string]interface{}{"userId": "u2", "lastSeen": seen})
	assert.False(t, p.IsOnline("u2"))
	st, ok := p.OnlineStatus("u2")
	require.True(t, ok)
	assert.True(t, seen.Equal(st.LastSeen))
	assert.Empty(t, p.TypingIndicators("g1"))

	// snapshot replaces everything
	f.send(domain.OnlineUsersList, map[string]interface{}{"userIds": []string{"u3", "u4"}})
	assert.ElementsMatch(t, []string{"u3", "u4"}, p.OnlineUsers())
	_, ok = p.OnlineStatus("u2")
	assert.False(t, ok)
}

// 測試 成員事件只作用在選取中的群組
func TestChatSyncHandler_GroupMembers(t *testing.T) {
	f := newSyncFixture(t)
	g := f.stores.Groups

	f.send(domain.GroupMemberAdded, map[string]interface{}{"groupId": "g1", "member": map[string]string{"id": "u5", "name": "Weighbridge"}})
	grp, _ := g.Group("g1")
	assert.Len(t, grp.Members, 2)

	g.SelectGroup("g1")
	f.send(domain.GroupMemberAdded, map[string]interface{}{"groupId": "g1", "member": map[string]string{"id": "u5", "name": "Weighbridge"}})
	f.send(domain.GroupMemberAdded, map[string]interface{}{"groupId": "g1", "member": map[string]string{"id": "u5", "name": "Weighbridge"}})
	assert.Len(t, g.Members(), 3)

	f.send(domain.GroupMemberRemoved, map[string]string{"groupId": "g1", "userId": "u2"})
	assert.Len(t, g.Members(), 2)
}

// 測試 自己被移出群組時移除該群組
func TestChatSyncHandler_RemovedFromGroup(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Groups.SelectGroup("g1")

	f.send(domain.GroupMemberRemoved, map[string]string{"groupId": "g1", "userId": "me"})

	assert.False(t, f.stores.Groups.Has("g1"))
	assert.Equal(t, "", f.stores.Groups.ActiveID())
}

// 測試 群組資訊更新
func TestChatSyncHandler_GroupUpdated(t *testing.T) {
	f := newSyncFixture(t)
	f.stores.Groups.SelectGroup("g1")

	f.send(domain.GroupUpdated, map[string]string{"groupId": "g1", "name": "Shift B"})
	f.send(domain.GroupUpdated, map[string]string{"groupId": "zz", "name": "ghost"})

	sel, ok := f.stores.Groups.Selected()
	require.True(t, ok)
	assert.Equal(t, "Shift B", sel.Name)
	assert.Equal(t, 1, f.stores.Groups.Len())
}

// 測試 server 通知: 已有同訊息通知時略過, 缺 id 自動產生
func TestChatSyncHandler_NotificationReceived(t *testing.T) {
	f := newSyncFixture(t)
	f.receive("m1", "c2", "", "u3")

	f.send(domain.NotificationReceived, map[string]string{"messageId": "m1", "content": "dup"})
	f.send(domain.NotificationReceived, map[string]string{"content": "Truck TRK-22 waiting at gate"})

	list := f.stores.Notifications.Notifications()
	require.Len(t, list, 2)
	assert.Equal(t, "Truck TRK-22 waiting at gate", list[0].Content)
	assert.NotEmpty(t, list[0].ID)
	assert.True(t, fixedNow.Equal(list[0].CreatedAt))
	assert.Equal(t, "msg-m1", list[1].ID)
}

// 測試 payload 為空時 handler 回報失敗
func TestChatSyncHandler_EmptyPayload(t *testing.T) {
	f := newSyncFixture(t)
	assert.False(t, f.router.Dispatch(context.Background(), domain.Envelope{Event: domain.UserOnline}))
	assert.False(t, f.router.DispatchRaw(context.Background(), []byte(`{"event":"user_online","data":"oops"}`)))
}
