package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/cache"
	"github.com/voyagen/streamshelf/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlPlaylists  = 2 * time.Minute
	ttlPlaylist   = 5 * time.Minute
	ttlCategories = 5 * time.Minute
	ttlCounts     = 1 * time.Minute
)

const keyPlaylists = "playlists:all"

// CachedStore wraps a Store with a Redis caching layer.
// Playlist and category reads are served from cache when possible;
// write operations invalidate the relevant cache keys.
type CachedStore struct {
	Store
	cache  *cache.Redis
	logger *zap.Logger
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{Store: inner, cache: c, logger: logger}
}

// --- cached read operations ---

func (c *CachedStore) Playlists(ctx context.Context) ([]models.Playlist, error) {
	return cached(ctx, c, keyPlaylists, ttlPlaylists, c.Store.Playlists)
}

func (c *CachedStore) PlaylistByID(ctx context.Context, id string) (*models.Playlist, error) {
	return cached(ctx, c, playlistKey(id), ttlPlaylist, func(ctx context.Context) (*models.Playlist, error) {
		return c.Store.PlaylistByID(ctx, id)
	})
}

func (c *CachedStore) Categories(ctx context.Context, playlistID string) ([]models.Category, error) {
	return cached(ctx, c, categoriesKey(playlistID), ttlCategories, func(ctx context.Context) ([]models.Category, error) {
		return c.Store.Categories(ctx, playlistID)
	})
}

func (c *CachedStore) CategoryChannelCounts(ctx context.Context, playlistID string) ([]models.CategoryCount, error) {
	return cached(ctx, c, countsKey(playlistID), ttlCounts, func(ctx context.Context) ([]models.CategoryCount, error) {
		return c.Store.CategoryChannelCounts(ctx, playlistID)
	})
}

// --- write operations with cache invalidation ---

func (c *CachedStore) InsertPlaylist(ctx context.Context, p *models.Playlist) error {
	if err := c.Store.InsertPlaylist(ctx, p); err != nil {
		return err
	}
	c.invalidatePlaylist(ctx, p.ID)
	// Category ids are global, so another playlist's categories may have moved.
	c.invalidatePattern(ctx, "categories:*", "category_counts:*")
	return nil
}

func (c *CachedStore) RenamePlaylist(ctx context.Context, id, name string) error {
	if err := c.Store.RenamePlaylist(ctx, id, name); err != nil {
		return err
	}
	c.invalidate(ctx, playlistKey(id), keyPlaylists)
	return nil
}

func (c *CachedStore) DeletePlaylist(ctx context.Context, id string) error {
	if err := c.Store.DeletePlaylist(ctx, id); err != nil {
		return err
	}
	c.invalidatePlaylist(ctx, id)
	return nil
}

// --- helpers ---

func cached[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, err := cache.Get[T](ctx, c.cache, key); err == nil {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func (c *CachedStore) invalidatePlaylist(ctx context.Context, id string) {
	c.invalidate(ctx, playlistKey(id), keyPlaylists, categoriesKey(id), countsKey(id), countsKey(""))
}

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && err != redis.Nil {
		c.logger.Warn("cache del failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.logger.Warn("cache del pattern failed", zap.String("pattern", p), zap.Error(err))
		}
	}
}

func playlistKey(id string) string   { return fmt.Sprintf("playlist:%s", id) }
func categoriesKey(id string) string { return fmt.Sprintf("categories:%s", id) }
func countsKey(id string) string     { return fmt.Sprintf("category_counts:%s", id) }
