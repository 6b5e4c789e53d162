// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FridgeSeal/swarm/internal/store"
)

// Run exercises a fresh, empty store produced by open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		st := open(t)
		_, err := st.Get(context.Background(), []byte("absent"))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("insert returns previous", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		prev, existed, err := st.Insert(ctx, []byte("42"), []byte("hello"))
		require.NoError(t, err)
		require.False(t, existed)
		require.Nil(t, prev)

		prev, existed, err = st.Insert(ctx, []byte("42"), []byte("world"))
		require.NoError(t, err)
		require.True(t, existed)
		require.Equal(t, []byte("hello"), prev)

		got, err := st.Get(ctx, []byte("42"))
		require.NoError(t, err)
		require.Equal(t, []byte("world"), got)
	})

	t.Run("empty value is distinct from missing", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		_, _, err := st.Insert(ctx, []byte("k"), []byte{})
		require.NoError(t, err)
		got, err := st.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Empty(t, got)

		prev, existed, err := st.Insert(ctx, []byte("k"), []byte("v"))
		require.NoError(t, err)
		require.True(t, existed)
		require.Empty(t, prev)
	})

	t.Run("batch is idempotent", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		before, err := st.Len(ctx)
		require.NoError(t, err)

		b := store.NewBatch(2)
		b.Put([]byte("12345678"), []byte("first"))
		b.Put([]byte("87654321"), []byte("second"))
		require.NoError(t, st.ApplyBatch(ctx, b))

		n, err := st.Len(ctx)
		require.NoError(t, err)
		require.Equal(t, before+2, n)

		require.NoError(t, st.ApplyBatch(ctx, b))
		n, err = st.Len(ctx)
		require.NoError(t, err)
		require.Equal(t, before+2, n)

		got, err := st.Get(ctx, []byte("87654321"))
		require.NoError(t, err)
		require.Equal(t, []byte("second"), got)

		require.NoError(t, st.ApplyBatch(ctx, store.NewBatch(0)))
	})

	t.Run("checksum ignores insertion order", func(t *testing.T) {
		ctx := context.Background()
		a, b := open(t), open(t)

		empty, err := a.Checksum(ctx)
		require.NoError(t, err)

		for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
			_, _, err := a.Insert(ctx, []byte(kv[0]), []byte(kv[1]))
			require.NoError(t, err)
		}
		for _, kv := range [][2]string{{"c", "3"}, {"a", "1"}, {"b", "2"}} {
			_, _, err := b.Insert(ctx, []byte(kv[0]), []byte(kv[1]))
			require.NoError(t, err)
		}

		sumA, err := a.Checksum(ctx)
		require.NoError(t, err)
		sumB, err := b.Checksum(ctx)
		require.NoError(t, err)
		require.Equal(t, sumA, sumB)
		require.NotEqual(t, empty, sumA)

		want := store.NewChecksum()
		want.Add([]byte("a"), []byte("1"))
		want.Add([]byte("b"), []byte("2"))
		want.Add([]byte("c"), []byte("3"))
		require.Equal(t, want.Sum64(), sumA)
	})
}
