package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ns := s.Namespace("consumer")

	_, ok, err := ns.Get("userId")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ns.PutAll(map[string]string{
		"userId": "alice@example.com",
		"token":  `{"access_token":"a"}`,
	}))

	v, ok, err := ns.Get("userId")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", v)
}

func TestSQLiteStore_PutAllOverwrites(t *testing.T) {
	s := newTestSQLiteStore(t)
	ns := s.Namespace("consumer")

	require.NoError(t, ns.PutAll(map[string]string{"token": "old"}))
	require.NoError(t, ns.PutAll(map[string]string{"token": "new"}))

	v, _, err := ns.Get("token")
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestSQLiteStore_NamespacesIsolated(t *testing.T) {
	s := newTestSQLiteStore(t)

	consumer := s.Namespace("consumer")
	directory := s.Namespace("directory")

	require.NoError(t, consumer.PutAll(map[string]string{"userId": "alice"}))
	require.NoError(t, directory.PutAll(map[string]string{"userId": "bob"}))

	require.NoError(t, consumer.Clear())

	_, ok, err := consumer.Get("userId")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := directory.Get("userId")
	require.NoError(t, err)
	require.True(t, ok, "clearing one namespace must not touch another")
	assert.Equal(t, "bob", v)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	first, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Namespace("consumer").PutAll(map[string]string{"userId": "alice"}))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)

	defer second.Close()

	v, ok, err := second.Namespace("consumer").Get("userId")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", v)
}
