package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "urdu_theme", "light"))
	v, ok, err := s.Get(ctx, "urdu_theme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "light", v)

	require.NoError(t, s.Set(ctx, "urdu_theme", "dark"))
	v, _, err = s.Get(ctx, "urdu_theme")
	require.NoError(t, err)
	require.Equal(t, "dark", v)

	require.NoError(t, s.Delete(ctx, "urdu_theme"))
	_, ok, err = s.Get(ctx, "urdu_theme")
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, s.Set(ctx, " ", "x"))
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "kahani.db")
	dsn, err := SQLiteDSNForFile(dbPath)
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)

	_, err = os.Stat(dbPath)
	require.NoError(t, err)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "kahani.db"))
	require.NoError(t, err)
	ctx := context.Background()

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "urdu_chats_v1", "[]"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	v, ok, err := s.Get(ctx, "urdu_chats_v1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "[]", v)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("KAHANI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KAHANI_TEST_REDIS_ADDR not set")
	}
	s, err := NewRedisStore(context.Background(), addr, "kahani-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Settings{Backend: "memory"})
	require.NoError(t, err)
	require.IsType(t, &InMemoryStore{}, s)

	s, err = Open(ctx, Settings{Path: filepath.Join(t.TempDir(), "k.db")})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Settings{Backend: "etcd"})
	require.Error(t, err)

	_, err = Open(ctx, Settings{Backend: "sqlite"})
	require.Error(t, err)
}
