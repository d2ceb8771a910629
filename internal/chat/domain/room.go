package domain

import "time"

// GroupRole definition member role in a group
type GroupRole string

const (
	// RoleAdmin group owner
	RoleAdmin GroupRole = "admin"
	// RoleModerator helper of the admin
	RoleModerator GroupRole = "moderator"
	// RoleMember normal member
	RoleMember GroupRole = "member"
)

// GroupAction action guarded by the permission matrix
type GroupAction string

const (
	// ActionAddMembers add members to the group
	ActionAddMembers GroupAction = "add_members"
	// ActionRemoveMembers remove members from the group
	ActionRemoveMembers GroupAction = "remove_members"
	// ActionDeleteMessages delete other people's messages
	ActionDeleteMessages GroupAction = "delete_messages"
	// ActionEditGroup rename / change avatar
	ActionEditGroup GroupAction = "edit_group"
	// ActionViewAuditLog read the audit log
	ActionViewAuditLog GroupAction = "view_audit_log"
)

// UserSummary minimal user info shown in lists and rosters
type UserSummary struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar,omitempty"`
	Role   GroupRole `json:"role,omitempty"`
}

// GroupPermissions which roles may perform each action
type GroupPermissions struct {
	AddMembers     []GroupRole `json:"addMembers"`
	RemoveMembers  []GroupRole `json:"removeMembers"`
	DeleteMessages []GroupRole `json:"deleteMessages"`
	EditGroup      []GroupRole `json:"editGroup"`
	ViewAuditLog   []GroupRole `json:"viewAuditLog"`
}

// DefaultGroupPermissions admin can do everything, moderators manage members and messages
func DefaultGroupPermissions() GroupPermissions {
	return GroupPermissions{
		AddMembers:     []GroupRole{RoleAdmin, RoleModerator},
		RemoveMembers:  []GroupRole{RoleAdmin, RoleModerator},
		DeleteMessages: []GroupRole{RoleAdmin, RoleModerator},
		EditGroup:      []GroupRole{RoleAdmin},
		ViewAuditLog:   []GroupRole{RoleAdmin},
	}
}

// Allows check role can perform action
func (p GroupPermissions) Allows(action GroupAction, role GroupRole) bool {
	var roles []GroupRole
	switch action {
	case ActionAddMembers:
		roles = p.AddMembers
	case ActionRemoveMembers:
		roles = p.RemoveMembers
	case ActionDeleteMessages:
		roles = p.DeleteMessages
	case ActionEditGroup:
		roles = p.EditGroup
	case ActionViewAuditLog:
		roles = p.ViewAuditLog
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Conversation 1對1 對話
type Conversation struct {
	ID             string        `json:"id"`
	ParticipantIDs []string      `json:"participantIds"`
	Participants   []UserSummary `json:"participants,omitempty"`
	Messages       []ChatMessage `json:"messages"`
	LastMessage    *ChatMessage  `json:"lastMessage,omitempty"`
	UnreadCount    int           `json:"unreadCount"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Clone deep copy
func (c Conversation) Clone() Conversation {
	out := c
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	out.Participants = append([]UserSummary(nil), c.Participants...)
	out.Messages = cloneMessages(c.Messages)
	out.LastMessage = cloneMessagePtr(c.LastMessage)
	return out
}

// OtherParticipant return the participant that is not userID
func (c Conversation) OtherParticipant(userID string) string {
	for _, id := range c.ParticipantIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// ConversationPatch partial update of a conversation
type ConversationPatch struct {
	Participants []UserSummary
	UnreadCount  *int
	UpdatedAt    *time.Time
}

// GroupChat 群組
type GroupChat struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Avatar      string           `json:"avatar,omitempty"`
	AdminID     string           `json:"adminId"`
	Members     []UserSummary    `json:"members"`
	Permissions GroupPermissions `json:"permissions"`
	Messages    []ChatMessage    `json:"messages"`
	LastMessage *ChatMessage     `json:"lastMessage,omitempty"`
	UnreadCount int              `json:"unreadCount"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Clone deep copy
func (g GroupChat) Clone() GroupChat {
	out := g
	out.Members = append([]UserSummary(nil), g.Members...)
	out.Messages = cloneMessages(g.Messages)
	out.LastMessage = cloneMessagePtr(g.LastMessage)
	return out
}

// RoleOf return the role of userID inside the group, admin id always wins
func (g GroupChat) RoleOf(userID string) (GroupRole, bool) {
	if userID != "" && userID == g.AdminID {
		return RoleAdmin, true
	}
	for _, m := range g.Members {
		if m.ID == userID {
			if m.Role == "" {
				return RoleMember, true
			}
			return m.Role, true
		}
	}
	return "", false
}

// GroupPatch partial update of a group
type GroupPatch struct {
	Name        *string
	Description *string
	Avatar      *string
	AdminID     *string
	Permissions *GroupPermissions
	UnreadCount *int
}

func cloneMessages(in []ChatMessage) []ChatMessage {
	if in == nil {
		return nil
	}
	out := make([]ChatMessage, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneMessagePtr(m *ChatMessage) *ChatMessage {
	if m == nil {
		return nil
	}
	c := m.Clone()
	return &c
}
