package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/FridgeSeal/swarm/internal/store"
	"github.com/FridgeSeal/swarm/internal/store/storetest"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStoreConformance(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) store.Store {
		_, client := newClient(t)
		s, err := New(context.Background(), client, "")
		require.NoError(t, err)
		return s
	})
}

func TestStoreUsesPrefixAndDetectsExistingData(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, client := newClient(t)
	require.NoError(t, mr.Set("other:key", "ignored"))

	s, err := New(ctx, client, "test:")
	require.NoError(t, err)
	require.False(t, s.WasRecovered())

	_, _, err = s.Insert(ctx, []byte("42"), []byte("hello"))
	require.NoError(t, err)
	got, err := mr.Get("test:42")
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	reopened, err := New(ctx, client, "test:")
	require.NoError(t, err)
	require.True(t, reopened.WasRecovered())
	require.NoError(t, reopened.Close())

	// Close on a borrowed client leaves it usable.
	require.NoError(t, client.Ping(ctx).Err())
}

func TestOpen(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	require.ErrorIs(t, err, ErrEmptyAddress)

	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), Config{Address: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	mr.Close()
	_, err = Open(context.Background(), Config{Address: mr.Addr()})
	require.Error(t, err)
}
