package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"washery_chat/internal/chat/domain"

	"github.com/gofiber/fiber/v2"
)

// LinkRepository definition contextual link REST api
type LinkRepository interface {
	ConversationLinks(ctx context.Context, conversationID string) ([]domain.ContextualLink, error)
	GroupLinks(ctx context.Context, groupID string) ([]domain.ContextualLink, error)
	CreateLink(ctx context.Context, req domain.CreateLinkRequest) (*domain.ContextualLink, error)
	DeleteLink(ctx context.Context, linkID string) error
}

// APIError api answered with an error status or success=false
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api status %d: %s", e.Status, e.Message)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type linkRepository struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewLinkRepository create REST link repository, baseURL like http://host/api
func NewLinkRepository(baseURL, token string, timeout time.Duration) LinkRepository {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &linkRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimPrefix(token, "Bearer "),
		timeout: timeout,
	}
}

// ConversationLinks GET /chat-links/conversation/{id}
func (r *linkRepository) ConversationLinks(ctx context.Context, conversationID string) ([]domain.ContextualLink, error) {
	var links []domain.ContextualLink
	if err := r.do(ctx, fiber.MethodGet, "/chat-links/conversation/"+url.PathEscape(conversationID), nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// GroupLinks GET /chat-links/group/{id}
func (r *linkRepository) GroupLinks(ctx context.Context, groupID string) ([]domain.ContextualLink, error) {
	var links []domain.ContextualLink
	if err := r.do(ctx, fiber.MethodGet, "/chat-links/group/"+url.PathEscape(groupID), nil, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// CreateLink POST /chat-links
func (r *linkRepository) CreateLink(ctx context.Context, req domain.CreateLinkRequest) (*domain.ContextualLink, error) {
	if req.ConversationID == "" && req.GroupID == "" {
		return nil, domain.ErrNoThread
	}
	var link domain.ContextualLink
	if err := r.do(ctx, fiber.MethodPost, "/chat-links", req, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// DeleteLink DELETE /chat-links/{id}
func (r *linkRepository) DeleteLink(ctx context.Context, linkID string) error {
	return r.do(ctx, fiber.MethodDelete, "/chat-links/"+url.PathEscape(linkID), nil, nil)
}

func (r *linkRepository) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var a *fiber.Agent
	switch method {
	case fiber.MethodPost:
		a = fiber.Post(r.baseURL + path)
	case fiber.MethodDelete:
		a = fiber.Delete(r.baseURL + path)
	default:
		a = fiber.Get(r.baseURL + path)
	}
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if r.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+r.token)
	}
	if body != nil {
		a.JSON(body)
	}
	a.Timeout(r.timeoutFor(ctx))

	if err := a.Parse(); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	code, respBody, errs := a.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%s %s: %w", method, path, errors.Join(errs...))
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		if code >= fiber.StatusBadRequest {
			return &APIError{Status: code, Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if code >= fiber.StatusBadRequest || !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{Status: code, Message: msg}
	}

	if out != nil && len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

// timeoutFor shortest of the client timeout and the ctx deadline
func (r *linkRepository) timeoutFor(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < r.timeout {
			if left <= 0 {
				return time.Millisecond
			}
			return left
		}
	}
	return r.timeout
}
