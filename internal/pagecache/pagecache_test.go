package pagecache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "pages.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreGetPutExpiry(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, time.Hour)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, ok, err := s.Get(ctx, "https://a.test")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "https://a.test", "first"))
	require.NoError(t, s.Put(ctx, "https://a.test", "second"))
	got, ok, err := s.Get(ctx, "https://a.test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got)

	now = now.Add(2 * time.Hour)
	_, ok, err = s.Get(ctx, "https://a.test")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "text of " + url, nil
}

func TestCachedFetcher(t *testing.T) {
	ctx := context.Background()
	next := &countingFetcher{}
	f := NewCachedFetcher(next, openTestStore(t, time.Hour), zap.NewNop())

	for i := 0; i < 3; i++ {
		got, err := f.Fetch(ctx, "https://a.test")
		require.NoError(t, err)
		assert.Equal(t, "text of https://a.test", got)
	}
	assert.Equal(t, 1, next.calls)
}

func TestCachedFetcherStoresPageAfterCallerCancels(t *testing.T) {
	store := openTestStore(t, time.Hour)
	next := &countingFetcher{}
	f := NewCachedFetcher(next, store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := f.Fetch(ctx, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, "text of https://a.test", got)

	cached, ok, err := store.Get(context.Background(), "https://a.test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "text of https://a.test", cached)
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	next := &countingFetcher{err: errors.New("404")}
	f := NewCachedFetcher(next, openTestStore(t, time.Hour), nil)

	_, err := f.Fetch(ctx, "https://a.test")
	require.Error(t, err)
	_, err = f.Fetch(ctx, "https://a.test")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}
