package domain

import (
	"encoding/json"
	"time"
)

// Event websocket event name
type Event string

// inbound, server -> client
const (
	// MessageReceived new message in a conversation or group
	MessageReceived Event = "message_received"
	// MessageStatusUpdated delivery status / read receipt changed
	MessageStatusUpdated Event = "message_status_updated"
	// MessageDeleted message removed
	MessageDeleted Event = "message_deleted"
	// UserTyping user started typing
	UserTyping Event = "user_typing"
	// UserStoppedTyping user stopped typing
	UserStoppedTyping Event = "user_stopped_typing"
	// UserOnline user came online
	UserOnline Event = "user_online"
	// UserOffline user went offline
	UserOffline Event = "user_offline"
	// OnlineUsersList presence snapshot, sent after connect
	OnlineUsersList Event = "online_users_list"
	// MessageRead a user read a thread (or some messages of it)
	MessageRead Event = "message_read"
	// GroupMemberAdded roster grew
	GroupMemberAdded Event = "group_member_added"
	// GroupMemberRemoved roster shrank
	GroupMemberRemoved Event = "group_member_removed"
	// GroupUpdated group info changed
	GroupUpdated Event = "group_updated"
	// NotificationReceived server pushed alert
	NotificationReceived Event = "notification_received"
	// ErrorEvent application level error, connection stays up
	ErrorEvent Event = "error"
	// FileUploadResponse answer of file_upload
	FileUploadResponse Event = "file_upload_response"
)

// outbound, client -> server
const (
	// SendMessage send a message
	SendMessage Event = "send_message"
	// UpdateMessageStatus report delivered / read
	UpdateMessageStatus Event = "update_message_status"
	// MarkAsRead mark a thread as read
	MarkAsRead Event = "mark_as_read"
	// Typing typing start / stop
	Typing Event = "typing"
	// DeleteMessage delete a message
	DeleteMessage Event = "delete_message"
	// FileUpload upload a file, answered by file_upload_response
	FileUpload Event = "file_upload"
	// JoinConversation subscribe to a conversation room
	JoinConversation Event = "join_conversation"
	// LeaveConversation unsubscribe from a conversation room
	LeaveConversation Event = "leave_conversation"
	// JoinGroup subscribe to a group room
	JoinGroup Event = "join_group"
	// LeaveGroup unsubscribe from a group room
	LeaveGroup Event = "leave_group"
	// CreateGroup create a group
	CreateGroup Event = "create_group"
	// AddGroupMember add member to a group
	AddGroupMember Event = "add_group_member"
	// RemoveGroupMember remove member from a group
	RemoveGroupMember Event = "remove_group_member"
	// UpdateGroupInfo rename / change description or avatar
	UpdateGroupInfo Event = "update_group_info"
)

// Envelope wire format of every frame
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshal payload into an envelope
func NewEnvelope(event Event, payload interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return env, err
	}
	env.Data = b
	return env, nil
}

// ---------------------------------------------------------------------------
// inbound payloads
// ---------------------------------------------------------------------------

// MessagePayload message_received data. optional fields are pointers or may be empty.
type MessagePayload struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	GroupID        string        `json:"groupId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Status         MessageStatus `json:"status"`
	Attachments    []Attachment  `json:"attachments"`
	ReadBy         []string      `json:"readBy"`
	CreatedAt      *time.Time    `json:"createdAt"`
}

// ToMessage fill defaults for missing optional fields
func (p MessagePayload) ToMessage(now time.Time) ChatMessage {
	msg := ChatMessage{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		GroupID:        p.GroupID,
		SenderID:       p.SenderID,
		SenderName:     p.SenderName,
		Content:        p.Content,
		Type:           p.Type,
		Status:         p.Status,
		Attachments:    p.Attachments,
		ReadBy:         []string{},
		CreatedAt:      now,
	}
	if msg.ConversationID != "" {
		// conversationId wins when the server sends both
		msg.GroupID = ""
	}
	if msg.Type == "" {
		msg.Type = MessageTypeText
	}
	if !msg.Status.Valid() {
		msg.Status = StatusSent
	}
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		msg.CreatedAt = *p.CreatedAt
	}
	for _, id := range p.ReadBy {
		if id != "" {
			msg.ReadBy = append(msg.ReadBy, id)
		}
	}
	return msg
}

// MessageStatusPayload message_status_updated data
type MessageStatusPayload struct {
	MessageID      string        `json:"messageId"`
	Status         MessageStatus `json:"status"`
	UserID         string        `json:"userId"`
	ConversationID string        `json:"conversationId"`
	GroupID        string        `json:"groupId"`
}

// MessageDeletedPayload message_deleted data
type MessageDeletedPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	GroupID        string `json:"groupId"`
}

// MessageReadPayload message_read data, empty MessageIDs means the whole thread
type MessageReadPayload struct {
	ConversationID string   `json:"conversationId"`
	GroupID        string   `json:"groupId"`
	UserID         string   `json:"userId"`
	MessageIDs     []string `json:"messageIds"`
}

// ThreadID conversation or group id
func (p MessageReadPayload) ThreadID() string {
	if p.ConversationID != "" {
		return p.ConversationID
	}
	return p.GroupID
}

// TypingPayload user_typing / user_stopped_typing data
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	GroupID        string `json:"groupId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
}

// ThreadID conversation or group id
func (p TypingPayload) ThreadID() string {
	if p.ConversationID != "" {
		return p.ConversationID
	}
	return p.GroupID
}

// PresencePayload user_online / user_offline data
type PresencePayload struct {
	UserID   string     `json:"userId"`
	IsOnline *bool      `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// OnlineUsersPayload online_users_list data, either full statuses or bare ids
type OnlineUsersPayload struct {
	Users   []PresencePayload `json:"users"`
	UserIDs []string          `json:"userIds"`
}

// GroupMemberPayload group_member_added / group_member_removed data
type GroupMemberPayload struct {
	GroupID string      `json:"groupId"`
	Member  UserSummary `json:"member"`
	UserID  string      `json:"userId"`
}

// MemberID id of the affected member
func (p GroupMemberPayload) MemberID() string {
	if p.UserID != "" {
		return p.UserID
	}
	return p.Member.ID
}

// GroupUpdatedPayload group_updated data
type GroupUpdatedPayload struct {
	GroupID     string            `json:"groupId"`
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Avatar      *string           `json:"avatar"`
	AdminID     *string           `json:"adminId"`
	Permissions *GroupPermissions `json:"permissions"`
}

// ToPatch convert to a GroupPatch
func (p GroupUpdatedPayload) ToPatch() GroupPatch {
	return GroupPatch{
		Name:        p.Name,
		Description: p.Description,
		Avatar:      p.Avatar,
		AdminID:     p.AdminID,
		Permissions: p.Permissions,
	}
}

// ErrorPayload error data
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FileUploadResult file_upload_response data
type FileUploadResult struct {
	UploadID string `json:"uploadId"`
	Success  bool   `json:"success"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	Error    string `json:"error,omitempty"`
}

// Attachment convert the upload result into message attachment metadata
func (r FileUploadResult) Attachment() Attachment {
	return Attachment{
		ID:       r.UploadID,
		FileName: r.FileName,
		FileURL:  r.FileURL,
		FileType: r.FileType,
		FileSize: r.FileSize,
	}
}

// ---------------------------------------------------------------------------
// outbound payloads
// ---------------------------------------------------------------------------

// SendMessageRequest send_message data
type SendMessageRequest struct {
	ConversationID string       `json:"conversationId,omitempty"`
	GroupID        string       `json:"groupId,omitempty"`
	ReceiverID     string       `json:"receiverId,omitempty"`
	Content        string       `json:"content"`
	Type           MessageType  `json:"type"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// UpdateStatusRequest update_message_status data
type UpdateStatusRequest struct {
	MessageID      string        `json:"messageId"`
	Status         MessageStatus `json:"status"`
	ConversationID string        `json:"conversationId,omitempty"`
	GroupID        string        `json:"groupId,omitempty"`
}

// MarkAsReadRequest mark_as_read data
type MarkAsReadRequest struct {
	ConversationID string   `json:"conversationId,omitempty"`
	GroupID        string   `json:"groupId,omitempty"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

// TypingRequest typing data
type TypingRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// DeleteMessageRequest delete_message data
type DeleteMessageRequest struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// FileUploadRequest file_upload data, Data is base64
type FileUploadRequest struct {
	UploadID       string `json:"uploadId"`
	FileName       string `json:"fileName"`
	FileType       string `json:"fileType"`
	FileSize       int64  `json:"fileSize"`
	Data           string `json:"data"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// RoomRequest join_/leave_ conversation or group data
type RoomRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

// CreateGroupRequest create_group data
type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MemberIDs   []string `json:"memberIds"`
}

// GroupMemberRequest add_group_member / remove_group_member data
type GroupMemberRequest struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

// UpdateGroupInfoRequest update_group_info data
type UpdateGroupInfoRequest struct {
	GroupID     string  `json:"groupId"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}
