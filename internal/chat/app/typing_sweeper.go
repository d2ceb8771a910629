package app

import (
	"context"
	"time"

	"washery_chat/internal/chat/store"
	"washery_chat/pkg/logger"

	"go.uber.org/zap"
)

// RunTypingSweeper expire stale typing indicators every interval until ctx is done
func RunTypingSweeper(ctx context.Context, presence *store.PresenceStore, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := presence.SweepTyping(now); n > 0 {
				logger.Log.Debug("typing indicators expired", zap.Int("count", n))
			}
		}
	}
}
