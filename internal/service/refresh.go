package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/cache"
)

// RedisRefreshQueue hands refresh requests to RunRefreshWorker through a Redis list.
type RedisRefreshQueue struct {
	r *cache.Redis
}

// NewRedisRefreshQueue returns a queue on r.
func NewRedisRefreshQueue(r *cache.Redis) *RedisRefreshQueue {
	return &RedisRefreshQueue{r: r}
}

// Enqueue schedules a refresh of playlistID.
func (q *RedisRefreshQueue) Enqueue(ctx context.Context, playlistID, reason string) error {
	return cache.Enqueue(ctx, q.r, cache.RefreshQueue, cache.RefreshJob{PlaylistID: playlistID, Reason: reason})
}

// RunRefreshWorker consumes refresh jobs until ctx is cancelled. Failed jobs are
// logged and dropped; unsupported playlists are not retried.
func RunRefreshWorker(ctx context.Context, r *cache.Redis, in *Ingester, logger *zap.Logger) {
	logger.Info("refresh worker started")
	defer logger.Info("refresh worker stopped")
	for ctx.Err() == nil {
		job, err := cache.Dequeue(ctx, r, cache.RefreshQueue, 5*time.Second)
		if err != nil {
			logger.Warn("refresh dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		p, err := in.Refresh(ctx, job.PlaylistID)
		switch {
		case errors.Is(err, ErrRefreshUnsupported), errors.Is(err, ErrIngestInProgress):
			logger.Info("refresh skipped", zap.String("playlist_id", job.PlaylistID), zap.Error(err))
		case err != nil:
			logger.Error("refresh failed", zap.String("playlist_id", job.PlaylistID), zap.Error(err))
		default:
			logger.Info("playlist refreshed",
				zap.String("playlist_id", p.ID),
				zap.String("reason", job.Reason),
				zap.Int("channels", len(p.Channels)))
		}
	}
}
