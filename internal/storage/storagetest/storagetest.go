// Package storagetest is the behaviour every storage driver must share.
package storagetest

import (
	"context"
	"sync"
	"testing"

	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/stretchr/testify/require"
)

// Run exercises a driver. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("one")))
		require.NoError(t, s.Set(ctx, "k", []byte("two")))

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("two"), got)
	})

	t.Run("binary values", func(t *testing.T) {
		s := newStore(t)
		val := []byte{0x00, 0xff, 0x10, 0x80}
		require.NoError(t, s.Set(ctx, "bin", val))

		got, err := s.Get(ctx, "bin")
		require.NoError(t, err)
		require.Equal(t, val, got)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("v")))
		require.NoError(t, s.Delete(ctx, "k"))
		require.NoError(t, s.Delete(ctx, "k"))

		_, err := s.Get(ctx, "k")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		s := newStore(t)
		val := []byte("abc")
		require.NoError(t, s.Set(ctx, "k", val))
		val[0] = 'z'

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, "abc", string(got))
	})

	t.Run("token cache", func(t *testing.T) {
		cache := storage.NewTokenCache(newStore(t))

		tok, err := cache.Read(ctx)
		require.NoError(t, err)
		require.Empty(t, tok)

		require.NoError(t, cache.Write(ctx, "abc.def.ghi"))
		tok, err = cache.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, "abc.def.ghi", tok)

		require.NoError(t, cache.Write(ctx, ""))
		tok, err = cache.Read(ctx)
		require.NoError(t, err)
		require.Empty(t, tok)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.Set(ctx, "k", []byte{byte(i)})
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(ctx))
	})
}
