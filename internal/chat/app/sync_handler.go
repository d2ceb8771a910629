package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"washery_chat/internal/chat/domain"
	"washery_chat/internal/chat/store"
	"washery_chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stores every client-side state container, constructed once and injected
type Stores struct {
	Messages      *store.MessageStore
	Conversations *store.ConversationStore
	Groups        *store.GroupStore
	Presence      *store.PresenceStore
	Notifications *store.NotificationStore
	Links         *store.LinkStore
	Status        *store.StatusStore
}

// NewStores create empty stores
func NewStores(typingTTL time.Duration) *Stores {
	return &Stores{
		Messages:      store.NewMessageStore(),
		Conversations: store.NewConversationStore(),
		Groups:        store.NewGroupStore(),
		Presence:      store.NewPresenceStore(typingTTL),
		Notifications: store.NewNotificationStore(),
		Links:         store.NewLinkStore(),
		Status:        store.NewStatusStore(),
	}
}

// ChatSyncHandler inbound event handlers, the only place where one event touches several stores
type ChatSyncHandler struct {
	stores *Stores
	now    func() time.Time

	mu            sync.RWMutex
	currentUserID string
}

// NewChatSyncHandler create ChatSyncHandler
func NewChatSyncHandler(stores *Stores, currentUserID string) *ChatSyncHandler {
	return &ChatSyncHandler{
		stores:        stores,
		now:           time.Now,
		currentUserID: currentUserID,
	}
}

// SetCurrentUser change the logged-in user
func (h *ChatSyncHandler) SetCurrentUser(id string) {
	h.mu.Lock()
	h.currentUserID = id
	h.mu.Unlock()
}

// CurrentUser logged-in user id
func (h *ChatSyncHandler) CurrentUser() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentUserID
}

// Register bind every inbound chat event to r
func (h *ChatSyncHandler) Register(r *EventRouter) {
	r.Handle(domain.MessageReceived, h.onMessageReceived)
	r.Handle(domain.MessageStatusUpdated, h.onMessageStatusUpdated)
	r.Handle(domain.MessageDeleted, h.onMessageDeleted)
	r.Handle(domain.MessageRead, h.onMessageRead)
	r.Handle(domain.UserTyping, h.onUserTyping)
	r.Handle(domain.UserStoppedTyping, h.onUserStoppedTyping)
	r.Handle(domain.UserOnline, h.onUserOnline)
	r.Handle(domain.UserOffline, h.onUserOffline)
	r.Handle(domain.OnlineUsersList, h.onOnlineUsersList)
	r.Handle(domain.GroupMemberAdded, h.onGroupMemberAdded)
	r.Handle(domain.GroupMemberRemoved, h.onGroupMemberRemoved)
	r.Handle(domain.GroupUpdated, h.onGroupUpdated)
	r.Handle(domain.NotificationReceived, h.onNotificationReceived)
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

func (h *ChatSyncHandler) onMessageReceived(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.MessagePayload](data)
	if err != nil {
		return err
	}
	msg := p.ToMessage(h.now())
	if msg.ID == "" || msg.ThreadID() == "" {
		logger.Log.Warn("drop message without id or thread", zap.String("id", msg.ID))
		return nil
	}
	h.ApplyMessage(msg)
	return nil
}

// ApplyMessage insert msg everywhere it belongs.
// unread and a local alert only when the thread is not active and the sender is someone else.
func (h *ChatSyncHandler) ApplyMessage(msg domain.ChatMessage) bool {
	s := h.stores
	if !s.Messages.AddMessage(msg) {
		logger.Log.Debug("duplicate message", zap.String("id", msg.ID))
		return false
	}

	thread := msg.ThreadID()
	var active bool
	if msg.IsGroup() {
		s.Groups.AppendMessage(thread, msg)
		active = s.Groups.IsActive(thread)
	} else {
		s.Conversations.AppendMessage(thread, msg)
		active = s.Conversations.IsActive(thread)
	}

	if active || msg.SenderID == h.CurrentUser() {
		return true
	}

	s.Messages.IncrementUnread(thread)
	if msg.IsGroup() {
		s.Groups.IncrementUnreadCount(thread)
	} else {
		s.Conversations.IncrementUnreadCount(thread)
	}
	s.Notifications.AddNotification(domain.ChatNotification{
		ID:             "msg-" + msg.ID,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		GroupID:        msg.GroupID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	})
	return true
}

// ApplyHistory load a page of thread history into the flat store and the embedded list.
// older pages go before the loaded messages, newer ones after. unread and notifications are untouched.
// return number of messages new to the flat store.
func (h *ChatSyncHandler) ApplyHistory(threadID string, msgs []domain.ChatMessage, older bool) int {
	page := make([]domain.ChatMessage, 0, len(msgs))
	group := false
	for _, m := range msgs {
		if m.ID == "" || m.ThreadID() != threadID {
			continue
		}
		group = m.IsGroup()
		page = append(page, m)
	}
	if len(page) == 0 {
		return 0
	}

	s := h.stores
	var n int
	if older {
		n = s.Messages.PrependMessages(page)
	} else {
		n = s.Messages.AppendMessages(page)
	}

	switch {
	case group && older:
		s.Groups.PrependMessages(threadID, page)
	case group:
		s.Groups.AppendMessages(threadID, page)
	case older:
		s.Conversations.PrependMessages(threadID, page)
	default:
		s.Conversations.AppendMessages(threadID, page)
	}
	logger.Log.Debug("history applied", zap.String("thread", threadID), zap.Int("added", n), zap.Bool("older", older))
	return n
}

// patchEverywhere apply patch to the flat store and to the embedded copy
func (h *ChatSyncHandler) patchEverywhere(messageID, conversationID, groupID string, patch domain.MessagePatch) bool {
	s := h.stores
	changed := s.Messages.UpdateMessage(messageID, patch)

	if conversationID == "" && groupID == "" {
		if m, ok := s.Messages.Message(messageID); ok {
			conversationID, groupID = m.ConversationID, m.GroupID
		}
	}
	switch {
	case conversationID != "":
		if s.Conversations.PatchMessage(conversationID, messageID, patch) {
			changed = true
		}
	case groupID != "":
		if s.Groups.PatchMessage(groupID, messageID, patch) {
			changed = true
		}
	}
	return changed
}

func (h *ChatSyncHandler) onMessageStatusUpdated(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.MessageStatusPayload](data)
	if err != nil {
		return err
	}
	if p.MessageID == "" || !p.Status.Valid() {
		logger.Log.Warn("drop status update", zap.String("id", p.MessageID), zap.String("status", string(p.Status)))
		return nil
	}

	status := p.Status
	patch := domain.MessagePatch{Status: &status}
	if status == domain.StatusRead && p.UserID != "" {
		patch.ReadBy = []string{p.UserID}
	}
	h.patchEverywhere(p.MessageID, p.ConversationID, p.GroupID, patch)
	return nil
}

func (h *ChatSyncHandler) onMessageDeleted(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.MessageDeletedPayload](data)
	if err != nil {
		return err
	}
	if p.MessageID == "" {
		return nil
	}

	s := h.stores
	convID, groupID := p.ConversationID, p.GroupID
	if convID == "" && groupID == "" {
		if m, ok := s.Messages.Message(p.MessageID); ok {
			convID, groupID = m.ConversationID, m.GroupID
		}
	}

	s.Messages.DeleteMessage(p.MessageID)
	if convID != "" {
		s.Conversations.RemoveMessage(convID, p.MessageID)
	} else if groupID != "" {
		s.Groups.RemoveMessage(groupID, p.MessageID)
	}
	return nil
}

func (h *ChatSyncHandler) onMessageRead(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.MessageReadPayload](data)
	if err != nil {
		return err
	}
	thread := p.ThreadID()
	if thread == "" || p.UserID == "" {
		return nil
	}

	s := h.stores
	ids := p.MessageIDs
	if len(ids) == 0 {
		// whole thread: everything not sent by the reader
		for _, m := range s.Messages.ThreadMessages(thread) {
			if m.SenderID != p.UserID {
				ids = append(ids, m.ID)
			}
		}
	}

	read := domain.StatusRead
	for _, id := range ids {
		h.patchEverywhere(id, p.ConversationID, p.GroupID, domain.MessagePatch{
			Status: &read,
			ReadBy: []string{p.UserID},
		})
	}

	if p.UserID == h.CurrentUser() {
		// read on another device
		s.Messages.ClearUnread(thread)
		if p.ConversationID != "" {
			s.Conversations.ResetUnreadCount(thread)
		} else {
			s.Groups.ResetUnreadCount(thread)
		}
		s.Notifications.MarkThreadRead(thread)
	}
	return nil
}

func (h *ChatSyncHandler) onUserTyping(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.TypingPayload](data)
	if err != nil {
		return err
	}
	if p.ThreadID() == "" || p.UserID == "" || p.UserID == h.CurrentUser() {
		return nil
	}
	now := h.now()
	h.stores.Presence.SetTypingIndicator(domain.TypingIndicator{
		ThreadID:     p.ThreadID(),
		UserID:       p.UserID,
		UserName:     p.UserName,
		StartedAt:    now,
		LastActivity: now,
	})
	return nil
}

func (h *ChatSyncHandler) onUserStoppedTyping(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.TypingPayload](data)
	if err != nil {
		return err
	}
	h.stores.Presence.RemoveTypingIndicator(p.ThreadID(), p.UserID)
	return nil
}

func (h *ChatSyncHandler) presence(p domain.PresencePayload, online bool) domain.OnlineStatus {
	st := domain.OnlineStatus{UserID: p.UserID, IsOnline: online, LastSeen: h.now()}
	if p.IsOnline != nil {
		st.IsOnline = *p.IsOnline
	}
	if p.LastSeen != nil && !p.LastSeen.IsZero() {
		st.LastSeen = *p.LastSeen
	}
	return st
}

func (h *ChatSyncHandler) onUserOnline(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.PresencePayload](data)
	if err != nil {
		return err
	}
	h.stores.Presence.SetOnlineStatus(h.presence(p, true))
	return nil
}

func (h *ChatSyncHandler) onUserOffline(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.PresencePayload](data)
	if err != nil {
		return err
	}
	h.stores.Presence.SetOnlineStatus(h.presence(p, false))
	// an offline user cannot keep typing
	h.stores.Presence.RemoveUserTyping(p.UserID)
	return nil
}

func (h *ChatSyncHandler) onOnlineUsersList(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.OnlineUsersPayload](data)
	if err != nil {
		return err
	}
	list := make([]domain.OnlineStatus, 0, len(p.Users)+len(p.UserIDs))
	for _, u := range p.Users {
		list = append(list, h.presence(u, true))
	}
	for _, id := range p.UserIDs {
		list = append(list, h.presence(domain.PresencePayload{UserID: id}, true))
	}
	h.stores.Presence.SetMultipleOnlineStatus(list)
	return nil
}

func (h *ChatSyncHandler) onGroupMemberAdded(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.GroupMemberPayload](data)
	if err != nil {
		return err
	}
	member := p.Member
	if member.ID == "" {
		member.ID = p.MemberID()
	}
	if !h.stores.Groups.AddMember(p.GroupID, member) {
		logger.Log.Debug("member add ignored", zap.String("group", p.GroupID), zap.String("user", member.ID))
	}
	return nil
}

func (h *ChatSyncHandler) onGroupMemberRemoved(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.GroupMemberPayload](data)
	if err != nil {
		return err
	}
	userID := p.MemberID()
	h.stores.Groups.RemoveMember(p.GroupID, userID)
	if userID != "" && userID == h.CurrentUser() {
		// 自己被移出群組
		h.stores.Groups.RemoveGroup(p.GroupID)
	}
	return nil
}

func (h *ChatSyncHandler) onGroupUpdated(_ context.Context, data json.RawMessage) error {
	p, err := decode[domain.GroupUpdatedPayload](data)
	if err != nil {
		return err
	}
	h.stores.Groups.UpdateGroup(p.GroupID, p.ToPatch())
	return nil
}

// onNotificationReceived server pushed alert; skipped when the message already produced one
func (h *ChatSyncHandler) onNotificationReceived(_ context.Context, data json.RawMessage) error {
	n, err := decode[domain.ChatNotification](data)
	if err != nil {
		return err
	}
	s := h.stores
	if s.Notifications.HasMessage(n.MessageID) {
		return nil
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = h.now()
	}
	s.Notifications.AddNotification(n)
	return nil
}
