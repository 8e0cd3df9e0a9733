package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/voyagen/streamshelf/internal/cache"
)

// RedisStore keeps preferences as plain Redis strings under "prefs:<key>".
type RedisStore struct {
	r *cache.Redis
}

func NewRedisStore(r *cache.Redis) *RedisStore {
	return &RedisStore{r: r}
}

func (s *RedisStore) Version(ctx context.Context) (int, bool, error) {
	raw, err := s.r.GetString(ctx, "prefs:"+VersionKey)
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read %s: %w", VersionKey, err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", VersionKey, err)
	}
	return v, true, nil
}

func (s *RedisStore) SetVersion(ctx context.Context, v int) error {
	if err := s.r.SetString(ctx, "prefs:"+VersionKey, strconv.Itoa(v)); err != nil {
		return fmt.Errorf("write %s: %w", VersionKey, err)
	}
	return nil
}
