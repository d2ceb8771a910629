package handlers

import (
	"washery_chat/internal/chat/app"
	"washery_chat/internal/chat/domain"

	"github.com/gofiber/fiber/v2"
)

// StateHandler view of the client stores for debugging
type StateHandler struct {
	stores *app.Stores
	links  *app.LinkUseCase
}

// NewStateHandler create StateHandler, links may be nil
func NewStateHandler(stores *app.Stores, links *app.LinkUseCase) *StateHandler {
	return &StateHandler{stores: stores, links: links}
}

// ConnectCheck report the process is up and the current connection state.
// 503 only once reconnecting gave up.
// @Summary Check chat client status
// @Tags Shared
// @Produce plain
// @Success 200 {string} string "chat client start! state: connected"
// @Failure 503 {string} string "chat client start! state: failed"
// @Router / [get]
func (h *StateHandler) ConnectCheck(c *fiber.Ctx) error {
	st := h.stores.Status.Status()
	if st.State == domain.StateFailed {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.SendString("chat client start! state: " + string(st.State))
}

// Status connection status
// @Summary Connection status
// @Tags State
// @Produce json
// @Success 200 {object} domain.ConnectionStatus
// @Router /state/status [get]
func (h *StateHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.stores.Status.Status())
}

// Conversations conversation list, most recent first
// @Summary Conversation list
// @Tags State
// @Produce json
// @Router /state/conversations [get]
func (h *StateHandler) Conversations(c *fiber.Ctx) error {
	s := h.stores.Conversations
	return c.JSON(fiber.Map{
		"activeId":      s.ActiveID(),
		"totalUnread":   s.TotalUnread(),
		"conversations": s.Conversations(),
	})
}

// Groups group list with the selected roster
// @Summary Group list
// @Tags State
// @Produce json
// @Router /state/groups [get]
func (h *StateHandler) Groups(c *fiber.Ctx) error {
	s := h.stores.Groups
	return c.JSON(fiber.Map{
		"activeId":    s.ActiveID(),
		"totalUnread": s.TotalUnread(),
		"members":     s.Members(),
		"groups":      s.Groups(),
	})
}

// Notifications notification queue, newest first
// @Summary Notification queue
// @Tags State
// @Produce json
// @Router /state/notifications [get]
func (h *StateHandler) Notifications(c *fiber.Ctx) error {
	s := h.stores.Notifications
	return c.JSON(fiber.Map{
		"unread":        s.UnreadCount(),
		"notifications": s.Notifications(),
	})
}

// Presence online statuses
// @Summary Online statuses
// @Tags State
// @Produce json
// @Router /state/presence [get]
func (h *StateHandler) Presence(c *fiber.Ctx) error {
	s := h.stores.Presence
	return c.JSON(fiber.Map{
		"online":   s.OnlineUsers(),
		"statuses": s.Statuses(),
	})
}

// Typing typing indicators of one thread
// @Summary Typing indicators
// @Tags State
// @Produce json
// @Param threadID path string true "conversation or group id"
// @Router /state/typing/{threadID} [get]
func (h *StateHandler) Typing(c *fiber.Ctx) error {
	threadID := c.Params("threadID")
	if threadID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "threadID required"})
	}
	return c.JSON(fiber.Map{
		"threadId": threadID,
		"typing":   h.stores.Presence.TypingIndicators(threadID),
	})
}

// Links contextual links of one thread
// @Summary Contextual links
// @Tags State
// @Produce json
// @Param threadID path string true "conversation or group id"
// @Router /state/links/{threadID} [get]
func (h *StateHandler) Links(c *fiber.Ctx) error {
	s := h.stores.Links
	return c.JSON(fiber.Map{
		"threadId": c.Params("threadID"),
		"loading":  s.Loading(),
		"error":    s.Error(),
		"links":    s.Links(c.Params("threadID")),
	})
}

// RefreshLinks reload the links of a thread from the REST API
// @Summary Reload contextual links
// @Tags State
// @Produce json
// @Param threadID path string true "conversation or group id"
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /state/links/{threadID}/refresh [post]
func (h *StateHandler) RefreshLinks(c *fiber.Ctx) error {
	if h.links == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "links api not configured"})
	}
	threadID := c.Params("threadID")

	var ok bool
	switch {
	case h.stores.Conversations.Has(threadID):
		ok = h.links.LoadConversationLinks(c.UserContext(), threadID)
	case h.stores.Groups.Has(threadID):
		ok = h.links.LoadGroupLinks(c.UserContext(), threadID)
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown thread"})
	}
	if !ok {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": h.stores.Links.Error()})
	}
	return c.JSON(fiber.Map{
		"threadId": threadID,
		"links":    h.stores.Links.Links(threadID),
	})
}

// MarkNotificationsRead mark every notification read
// @Summary Mark all notifications read
// @Tags State
// @Router /state/notifications/read [post]
func (h *StateHandler) MarkNotificationsRead(c *fiber.Ctx) error {
	h.stores.Notifications.MarkAllRead()
	return c.JSON(fiber.Map{"unread": h.stores.Notifications.UnreadCount()})
}
