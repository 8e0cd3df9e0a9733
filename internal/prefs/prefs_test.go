package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/streamshelf/internal/cache"
)

func TestFileStore_Version(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	s := NewFileStore(path)

	_, ok, err := s.Version(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetVersion(ctx, 2))
	require.NoError(t, s.SetInt("other", 7))

	v, ok, err := NewFileStore(path).Version(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "db_version: 2")
}

func TestFileStore_NotAnInteger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_version: two\n"), 0o644))
	_, _, err := NewFileStore(path).Version(context.Background())
	assert.Error(t, err)
}

func TestRedisStore_Version(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t:"))

	_, ok, err := s.Version(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetVersion(ctx, 2))
	v, ok, err := s.Version(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	got, err := mr.Get("t:prefs:db_version")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}
