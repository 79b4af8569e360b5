package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/sqlite"
	"github.com/aussiebroadwan/todo/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "todo.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newStore(t)
	})
}

func TestApplyMigrationsTwice(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.ApplyMigrations(), "second run is ErrNoChange and swallowed")
}

func TestValuesSurviveReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "todo.db")

	s, err := sqlite.NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Set(ctx, "keycloak-session", []byte("sealed")))
	require.NoError(t, s.Close())

	s, err = sqlite.NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.ApplyMigrations())

	got, err := s.Get(ctx, "keycloak-session")
	require.NoError(t, err)
	require.Equal(t, "sealed", string(got))
}
