package app

import (
	"context"

	"washery_chat/internal/chat/domain"
	"washery_chat/internal/chat/repository"
	"washery_chat/internal/chat/store"
	"washery_chat/pkg/logger"

	"go.uber.org/zap"
)

// LinkUseCase - contextual links 的 REST 操作, 結果寫入 LinkStore
type LinkUseCase struct {
	repo  repository.LinkRepository
	links *store.LinkStore
}

// NewLinkUseCase init link use case
func NewLinkUseCase(repo repository.LinkRepository, links *store.LinkStore) *LinkUseCase {
	return &LinkUseCase{repo: repo, links: links}
}

// LoadConversationLinks replace the links of a conversation
func (uc *LinkUseCase) LoadConversationLinks(ctx context.Context, conversationID string) bool {
	uc.begin()
	defer uc.links.SetLoading(false)

	list, err := uc.repo.ConversationLinks(ctx, conversationID)
	if err != nil {
		return uc.fail("load conversation links", err, zap.String("conversation_id", conversationID))
	}
	uc.links.SetLinks(conversationID, list)
	return true
}

// LoadGroupLinks replace the links of a group
func (uc *LinkUseCase) LoadGroupLinks(ctx context.Context, groupID string) bool {
	uc.begin()
	defer uc.links.SetLoading(false)

	list, err := uc.repo.GroupLinks(ctx, groupID)
	if err != nil {
		return uc.fail("load group links", err, zap.String("group_id", groupID))
	}
	uc.links.SetLinks(groupID, list)
	return true
}

// AddLink create a link and add the server copy
func (uc *LinkUseCase) AddLink(ctx context.Context, req domain.CreateLinkRequest) bool {
	uc.begin()
	defer uc.links.SetLoading(false)

	link, err := uc.repo.CreateLink(ctx, req)
	if err != nil {
		return uc.fail("add link", err, zap.String("entity_id", req.EntityID))
	}
	uc.links.AddLink(*link)
	return true
}

// RemoveLink delete a link, the local copy goes only after the server agreed
func (uc *LinkUseCase) RemoveLink(ctx context.Context, linkID string) bool {
	uc.begin()
	defer uc.links.SetLoading(false)

	if err := uc.repo.DeleteLink(ctx, linkID); err != nil {
		return uc.fail("remove link", err, zap.String("link_id", linkID))
	}
	uc.links.RemoveLink(linkID)
	return true
}

func (uc *LinkUseCase) begin() {
	uc.links.SetLoading(true)
	uc.links.SetError("")
}

func (uc *LinkUseCase) fail(msg string, err error, fields ...zap.Field) bool {
	logger.Log.Error(msg, append(fields, zap.Error(err))...)
	uc.links.SetError(err.Error())
	return false
}
