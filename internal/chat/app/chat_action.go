package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"washery_chat/internal/chat/domain"
	errprocess "washery_chat/pkg/err"
	"washery_chat/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChatActions outbound user actions.
// local state is updated optimistically, the server confirms through inbound events.
type ChatActions struct {
	emitter Emitter
	stores  *Stores
	user    func() string

	typingEvery time.Duration
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
}

// NewChatActions create ChatActions, typingEvery throttles typing-start emits per thread
func NewChatActions(emitter Emitter, stores *Stores, syncHandler *ChatSyncHandler, typingEvery time.Duration) *ChatActions {
	if typingEvery <= 0 {
		typingEvery = 2 * time.Second
	}
	return &ChatActions{
		emitter:     emitter,
		stores:      stores,
		user:        syncHandler.CurrentUser,
		typingEvery: typingEvery,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// leaveActive emit leave for whatever thread is open and clear both selections
func (a *ChatActions) leaveActive() error {
	s := a.stores
	var err error
	if id := s.Conversations.ActiveID(); id != "" {
		err = a.emitter.Emit(domain.LeaveConversation, domain.RoomRequest{ConversationID: id})
	}
	if id := s.Groups.ActiveID(); id != "" {
		err = a.emitter.Emit(domain.LeaveGroup, domain.RoomRequest{GroupID: id})
	}
	s.Conversations.ClearSelection()
	s.Groups.ClearSelection()
	return err
}

// SelectConversation open conversation id: leave the previous thread, reset unread, join and mark read
func (a *ChatActions) SelectConversation(id string) error {
	s := a.stores
	if !s.Conversations.Has(id) {
		return fmt.Errorf("select conversation %s: %w", id, domain.ErrUnknownThread)
	}
	if s.Conversations.IsActive(id) {
		return nil
	}
	if err := a.leaveActive(); err != nil {
		logger.Log.Debug("leave previous thread", zap.Error(err))
	}

	s.Conversations.SelectConversation(id)
	s.Messages.ClearUnread(id)
	s.Notifications.MarkThreadRead(id)

	if err := a.emitter.Emit(domain.JoinConversation, domain.RoomRequest{ConversationID: id}); err != nil {
		return err
	}
	return a.emitter.Emit(domain.MarkAsRead, domain.MarkAsReadRequest{ConversationID: id})
}

// SelectGroup open group id, roster refresh is done by the caller through REST
func (a *ChatActions) SelectGroup(id string) error {
	s := a.stores
	if !s.Groups.Has(id) {
		return fmt.Errorf("select group %s: %w", id, domain.ErrUnknownThread)
	}
	if s.Groups.IsActive(id) {
		return nil
	}
	if err := a.leaveActive(); err != nil {
		logger.Log.Debug("leave previous thread", zap.Error(err))
	}

	s.Groups.SelectGroup(id)
	s.Messages.ClearUnread(id)
	s.Notifications.MarkThreadRead(id)

	if err := a.emitter.Emit(domain.JoinGroup, domain.RoomRequest{GroupID: id}); err != nil {
		return err
	}
	return a.emitter.Emit(domain.MarkAsRead, domain.MarkAsReadRequest{GroupID: id})
}

// ClearSelection close the open thread
func (a *ChatActions) ClearSelection() error {
	return a.leaveActive()
}

// Rejoin join the open thread again, used after a reconnect
func (a *ChatActions) Rejoin() error {
	s := a.stores
	if id := s.Conversations.ActiveID(); id != "" {
		return a.emitter.Emit(domain.JoinConversation, domain.RoomRequest{ConversationID: id})
	}
	if id := s.Groups.ActiveID(); id != "" {
		return a.emitter.Emit(domain.JoinGroup, domain.RoomRequest{GroupID: id})
	}
	return nil
}

// SendMessage emit send_message; the message enters the stores on the inbound event
func (a *ChatActions) SendMessage(conversationID, groupID, content string, attachments []domain.Attachment) error {
	if conversationID == "" && groupID == "" {
		return domain.ErrNoThread
	}
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return errprocess.Set("send message: empty content")
	}

	req := domain.SendMessageRequest{
		ConversationID: conversationID,
		GroupID:        groupID,
		Content:        content,
		Type:           messageType(attachments),
		Attachments:    attachments,
	}
	if conversationID != "" {
		if c, ok := a.stores.Conversations.Conversation(conversationID); ok {
			req.ReceiverID = c.OtherParticipant(a.user())
		}
	}

	if err := a.emitter.Emit(domain.SendMessage, req); err != nil {
		return err
	}
	// sending ends typing
	if a.stopTyping(threadOf(conversationID, groupID)) {
		return a.emitter.Emit(domain.Typing, domain.TypingRequest{ConversationID: conversationID, GroupID: groupID, IsTyping: false})
	}
	return nil
}

func messageType(attachments []domain.Attachment) domain.MessageType {
	if len(attachments) == 0 {
		return domain.MessageTypeText
	}
	for _, att := range attachments {
		if !strings.HasPrefix(att.FileType, "image/") {
			return domain.MessageTypeDocument
		}
	}
	return domain.MessageTypeImage
}

func threadOf(conversationID, groupID string) string {
	if conversationID != "" {
		return conversationID
	}
	return groupID
}

// SendFile upload f, then send a message carrying the attachment
func (a *ChatActions) SendFile(ctx context.Context, f FileUpload, caption string) (*domain.FileUploadResult, error) {
	res, err := a.emitter.UploadFile(ctx, f)
	if err != nil {
		logger.Log.Warn("upload failed", zap.String("file", f.FileName), zap.Error(err))
		return nil, err
	}
	if err := a.SendMessage(f.ConversationID, f.GroupID, caption, []domain.Attachment{res.Attachment()}); err != nil {
		return res, err
	}
	return res, nil
}

// MarkAsRead reset local unread of the thread and tell the server
func (a *ChatActions) MarkAsRead(conversationID, groupID string, messageIDs []string) error {
	thread := threadOf(conversationID, groupID)
	if thread == "" {
		return domain.ErrNoThread
	}
	s := a.stores
	s.Messages.ClearUnread(thread)
	if conversationID != "" {
		s.Conversations.ResetUnreadCount(thread)
	} else {
		s.Groups.ResetUnreadCount(thread)
	}
	s.Notifications.MarkThreadRead(thread)

	return a.emitter.Emit(domain.MarkAsRead, domain.MarkAsReadRequest{
		ConversationID: conversationID,
		GroupID:        groupID,
		MessageIDs:     messageIDs,
	})
}

// UpdateMessageStatus report delivered/read for one message
func (a *ChatActions) UpdateMessageStatus(messageID string, status domain.MessageStatus) error {
	if !status.Valid() {
		return errprocess.Set(fmt.Sprintf("update status: invalid status %q", status))
	}
	m, ok := a.stores.Messages.Message(messageID)
	if !ok {
		return fmt.Errorf("update status %s: %w", messageID, domain.ErrUnknownMessage)
	}
	return a.emitter.Emit(domain.UpdateMessageStatus, domain.UpdateStatusRequest{
		MessageID:      messageID,
		Status:         status,
		ConversationID: m.ConversationID,
		GroupID:        m.GroupID,
	})
}

// SetTyping start events are throttled per thread, stop is always sent
func (a *ChatActions) SetTyping(conversationID, groupID string, typing bool) error {
	thread := threadOf(conversationID, groupID)
	if thread == "" {
		return domain.ErrNoThread
	}
	req := domain.TypingRequest{ConversationID: conversationID, GroupID: groupID, IsTyping: typing}

	if !typing {
		a.stopTyping(thread)
		return a.emitter.Emit(domain.Typing, req)
	}
	if !a.limiter(thread).Allow() {
		return nil
	}
	return a.emitter.Emit(domain.Typing, req)
}

func (a *ChatActions) limiter(thread string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[thread]
	if !ok {
		l = rate.NewLimiter(rate.Every(a.typingEvery), 1)
		a.limiters[thread] = l
	}
	return l
}

// stopTyping forget the throttle state, report whether a start was sent before
func (a *ChatActions) stopTyping(thread string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.limiters[thread]
	delete(a.limiters, thread)
	return ok
}

// DeleteMessage ask the server to delete messageID.
// someone else's group message needs the delete_messages permission.
func (a *ChatActions) DeleteMessage(messageID string) error {
	m, ok := a.stores.Messages.Message(messageID)
	if !ok {
		return fmt.Errorf("delete %s: %w", messageID, domain.ErrUnknownMessage)
	}
	if m.IsGroup() && m.SenderID != a.user() && !a.allowed(m.GroupID, domain.ActionDeleteMessages) {
		return fmt.Errorf("delete %s: %w", messageID, domain.ErrPermissionDenied)
	}
	return a.emitter.Emit(domain.DeleteMessage, domain.DeleteMessageRequest{
		MessageID:      messageID,
		ConversationID: m.ConversationID,
		GroupID:        m.GroupID,
	})
}

// allowed evaluate the local permission matrix, unknown groups are left to the server
func (a *ChatActions) allowed(groupID string, action domain.GroupAction) bool {
	g, ok := a.stores.Groups.Group(groupID)
	if !ok {
		return true
	}
	role, ok := g.RoleOf(a.user())
	if !ok {
		return false
	}
	return g.Permissions.Allows(action, role)
}

// CreateGroup emit create_group, the new group arrives through REST reload or group events
func (a *ChatActions) CreateGroup(name, description string, memberIDs []string) error {
	if strings.TrimSpace(name) == "" {
		return errprocess.Set("create group: empty name")
	}
	return a.emitter.Emit(domain.CreateGroup, domain.CreateGroupRequest{
		Name:        name,
		Description: description,
		MemberIDs:   memberIDs,
	})
}

// AddGroupMember emit add_group_member when allowed
func (a *ChatActions) AddGroupMember(groupID, userID string) error {
	if !a.allowed(groupID, domain.ActionAddMembers) {
		return fmt.Errorf("add member to %s: %w", groupID, domain.ErrPermissionDenied)
	}
	return a.emitter.Emit(domain.AddGroupMember, domain.GroupMemberRequest{GroupID: groupID, UserID: userID})
}

// RemoveGroupMember emit remove_group_member when allowed
func (a *ChatActions) RemoveGroupMember(groupID, userID string) error {
	if !a.allowed(groupID, domain.ActionRemoveMembers) {
		return fmt.Errorf("remove member from %s: %w", groupID, domain.ErrPermissionDenied)
	}
	return a.emitter.Emit(domain.RemoveGroupMember, domain.GroupMemberRequest{GroupID: groupID, UserID: userID})
}

// UpdateGroupInfo patch locally then emit update_group_info
func (a *ChatActions) UpdateGroupInfo(groupID string, name, description, avatar *string) error {
	if !a.allowed(groupID, domain.ActionEditGroup) {
		return fmt.Errorf("edit group %s: %w", groupID, domain.ErrPermissionDenied)
	}
	a.stores.Groups.UpdateGroup(groupID, domain.GroupPatch{Name: name, Description: description, Avatar: avatar})
	return a.emitter.Emit(domain.UpdateGroupInfo, domain.UpdateGroupInfoRequest{
		GroupID:     groupID,
		Name:        name,
		Description: description,
		Avatar:      avatar,
	})
}

// LeaveGroup quit group membership and drop it locally
func (a *ChatActions) LeaveGroup(groupID string) error {
	s := a.stores
	if s.Groups.IsActive(groupID) {
		if err := a.leaveActive(); err != nil {
			logger.Log.Debug("leave group room", zap.Error(err))
		}
	}
	if err := a.emitter.Emit(domain.RemoveGroupMember, domain.GroupMemberRequest{GroupID: groupID, UserID: a.user()}); err != nil {
		return err
	}
	s.Groups.RemoveGroup(groupID)
	return nil
}
