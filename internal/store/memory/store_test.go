package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FridgeSeal/swarm/internal/store"
	"github.com/FridgeSeal/swarm/internal/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

func TestStoreCopiesValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	value := []byte("content")
	_, _, err := s.Insert(ctx, []byte("k"), value)
	require.NoError(t, err)
	value[0] = 'C'

	got, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "content", string(got))

	got[0] = 'X'
	again, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "content", string(again))
	require.False(t, s.WasRecovered())
}
