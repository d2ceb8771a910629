package domain

import "time"

// TypingIndicator user is composing a message in a thread
type TypingIndicator struct {
	ThreadID     string    `json:"threadId"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// OnlineStatus presence of a user, last write wins
type OnlineStatus struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// ChatNotification alert for an incoming message.
// IsRead is not tied to the message status.
type ChatNotification struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"messageId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	GroupID        string    `json:"groupId,omitempty"`
	SenderID       string    `json:"senderId,omitempty"`
	SenderName     string    `json:"senderName,omitempty"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EntityType business record a thread can be linked to
type EntityType string

const (
	// EntityVehicle vehicle record
	EntityVehicle EntityType = "vehicle"
	// EntityInward inward log record
	EntityInward EntityType = "inward"
	// EntityOutward outward log record
	EntityOutward EntityType = "outward"
	// EntityIssue reported issue
	EntityIssue EntityType = "issue"
)

// ContextualLink associate a conversation or group with a business record
type ContextualLink struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId,omitempty"`
	GroupID        string     `json:"groupId,omitempty"`
	EntityType     EntityType `json:"entityType"`
	EntityID       string     `json:"entityId"`
	EntityLabel    string     `json:"entityLabel,omitempty"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ThreadID return the linked conversation or group id
func (l ContextualLink) ThreadID() string {
	if l.ConversationID != "" {
		return l.ConversationID
	}
	return l.GroupID
}

// ConnectionState state of the chat socket
type ConnectionState string

const (
	// StateDisconnected not connected, nothing in progress
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting first handshake in progress
	StateConnecting ConnectionState = "connecting"
	// StateConnected handshake confirmed
	StateConnected ConnectionState = "connected"
	// StateReconnecting transport dropped, retrying
	StateReconnecting ConnectionState = "reconnecting"
	// StateFailed reconnect attempts exhausted
	StateFailed ConnectionState = "failed"
)

// ConnectionStatus connection flag shown to the user
type ConnectionStatus struct {
	State            ConnectionState `json:"state"`
	Error            string          `json:"error,omitempty"`
	ReconnectAttempt int             `json:"reconnectAttempt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// CreateLinkRequest POST /chat-links body
type CreateLinkRequest struct {
	ConversationID string     `json:"conversationId,omitempty"`
	GroupID        string     `json:"groupId,omitempty"`
	EntityType     EntityType `json:"entityType"`
	EntityID       string     `json:"entityId"`
	EntityLabel    string     `json:"entityLabel,omitempty"`
}
