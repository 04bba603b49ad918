package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/maintai/abtest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openInMemoryBadger(t *testing.T) *store.BadgerStore {
	t.Helper()
	b, err := store.OpenBadger(store.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBadgerStore_KV(t *testing.T) {
	testKV(t, openInMemoryBadger(t))
}

func TestBadgerStore_KVLog(t *testing.T) {
	b := openInMemoryBadger(t)
	l := store.LogFor(b)
	_, isKV := l.(*store.KVLog)
	require.True(t, isKV)
	testLog(t, l)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := store.OpenBadger(store.BadgerOptions{})
	assert.Error(t, err)
}

func TestBadgerStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "badger")

	b, err := store.OpenBadger(store.BadgerOptions{Path: dir})
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, store.KeyIdentifier, "user_persisted"))
	require.NoError(t, b.Close())

	b, err = store.OpenBadger(store.BadgerOptions{Path: dir})
	require.NoError(t, err)
	defer b.Close()

	v, ok, err := b.Get(ctx, store.KeyIdentifier)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user_persisted", v)
}
