package repository

import (
	"context"
	"errors"
	"time"

	"washery_chat/internal/chat/domain"
	"washery_chat/pkg/database"
)

const statusKeyPrefix = "chat_client:status:"

// StatusRepository persist the connection flag so other tools can read it
type StatusRepository interface {
	SaveStatus(ctx context.Context, status domain.ConnectionStatus) error
	LoadStatus(ctx context.Context) (*domain.ConnectionStatus, error)
	ClearStatus(ctx context.Context) error
}

type statusRepository struct {
	repo database.RedisRepository[domain.ConnectionStatus]
	key  string
	ttl  time.Duration
}

// NewStatusRepository redis backed status, one key per user
func NewStatusRepository(repo database.RedisRepository[domain.ConnectionStatus], userID string, ttl time.Duration) StatusRepository {
	if userID == "" {
		userID = "anonymous"
	}
	return &statusRepository{
		repo: repo,
		key:  statusKeyPrefix + userID,
		ttl:  ttl,
	}
}

// SaveStatus overwrite the stored status
func (r *statusRepository) SaveStatus(ctx context.Context, status domain.ConnectionStatus) error {
	return r.repo.Set(ctx, r.key, status, r.ttl)
}

// LoadStatus stored status, nil when absent
func (r *statusRepository) LoadStatus(ctx context.Context) (*domain.ConnectionStatus, error) {
	st, err := r.repo.Get(ctx, r.key)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ClearStatus remove the stored status
func (r *statusRepository) ClearStatus(ctx context.Context) error {
	return r.repo.Del(ctx, r.key)
}
