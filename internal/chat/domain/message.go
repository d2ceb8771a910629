package domain

import (
	"time"

	"washery_chat/pkg"
)

// MessageType definition message content type
type MessageType string

const (
	// MessageTypeText plain text
	MessageTypeText MessageType = "text"
	// MessageTypeImage image attachment
	MessageTypeImage MessageType = "image"
	// MessageTypeDocument document attachment
	MessageTypeDocument MessageType = "document"
	// MessageTypeSystem generated by server (member joined, group renamed ...)
	MessageTypeSystem MessageType = "system"
)

// MessageStatus definition delivery status of a message
type MessageStatus string

const (
	// StatusSent server accepted the message
	StatusSent MessageStatus = "sent"
	// StatusDelivered message reached the recipient device
	StatusDelivered MessageStatus = "delivered"
	// StatusRead recipient viewed the message
	StatusRead MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// Valid report whether s is a known status
func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

// Before report whether s comes earlier than o in sent -> delivered -> read
func (s MessageStatus) Before(o MessageStatus) bool {
	return s.rank() < o.rank()
}

// Attachment file metadata attached to a message
type Attachment struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// ChatMessage 表示一則聊天訊息 (conversation 或 group 其中之一)
type ChatMessage struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId,omitempty"`
	GroupID        string        `json:"groupId,omitempty"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName,omitempty"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Status         MessageStatus `json:"status"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	ReadBy         []string      `json:"readBy"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ThreadID return the parent container id (conversation or group)
func (m ChatMessage) ThreadID() string {
	if m.ConversationID != "" {
		return m.ConversationID
	}
	return m.GroupID
}

// IsGroup report whether the message belongs to a group chat
func (m ChatMessage) IsGroup() bool {
	return m.ConversationID == "" && m.GroupID != ""
}

// Clone deep copy, callers outside a store never share slices with it
func (m ChatMessage) Clone() ChatMessage {
	c := m
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	c.ReadBy = append([]string{}, m.ReadBy...)
	return c
}

// MessagePatch partial update of a message, nil field means unchanged
type MessagePatch struct {
	Content     *string
	Status      *MessageStatus
	Attachments []Attachment
	// ReadBy entries are merged into the existing set
	ReadBy []string
}

// Apply merge p into m, return true when something changed.
// status never moves backwards and readBy never shrinks.
func (m *ChatMessage) Apply(p MessagePatch) bool {
	changed := false
	if p.Content != nil && *p.Content != m.Content {
		m.Content = *p.Content
		changed = true
	}
	if p.Status != nil && p.Status.Valid() && m.Status.Before(*p.Status) {
		m.Status = *p.Status
		changed = true
	}
	if p.Attachments != nil {
		m.Attachments = append([]Attachment(nil), p.Attachments...)
		changed = true
	}
	for _, userID := range p.ReadBy {
		if userID == "" || pkg.Contains(m.ReadBy, userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		changed = true
	}
	return changed
}

// PageCursor pagination state of a thread history
type PageCursor struct {
	// OldestID id of the oldest loaded message, history before it is not loaded yet
	OldestID string    `json:"oldestId"`
	Before   time.Time `json:"before"`
	HasMore  bool      `json:"hasMore"`
	Page     int       `json:"page"`
}
