package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/file"
	"github.com/aussiebroadwan/todo/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := file.NewStore(filepath.Join(t.TempDir(), "storage.json"))
		require.NoError(t, err)
		return s
	})
}

func TestFileStorePersistsWithTightMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cfg", "storage.json")

	s, err := file.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, storage.TokenCacheKey, []byte("tok")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := file.NewStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, storage.TokenCacheKey)
	require.NoError(t, err)
	require.Equal(t, "tok", string(got))
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := file.NewStore(path)
	require.ErrorContains(t, err, "decode")
}
