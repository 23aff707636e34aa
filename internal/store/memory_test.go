package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rev, err := s.Put(ctx, "links/a", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)

	e, err := s.Get(ctx, "links/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), e.Value)
	assert.Equal(t, uint64(1), e.Revision)
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateOptimisticConcurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rev, err := s.Put(ctx, "k", []byte("v1"))
	require.NoError(t, err)

	_, err = s.Update(ctx, "k", []byte("v2"), rev+1)
	assert.ErrorIs(t, err, ErrRevisionMismatch)

	rev2, err := s.Update(ctx, "k", []byte("v2"), rev)
	require.NoError(t, err)
	assert.Greater(t, rev2, rev)

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), e.Value)
}

func TestMemoryStoreUpdateCreateSemantics(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rev, err := s.Update(ctx, "new-key", []byte("v1"), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)

	_, err = s.Update(ctx, "new-key", []byte("v2"), 0)
	assert.ErrorIs(t, err, ErrRevisionMismatch)
}

func TestMemoryStoreDeleteAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _ = s.Put(ctx, "links/a", []byte("1"))
	_, _ = s.Put(ctx, "links/b", []byte("2"))
	_, _ = s.Put(ctx, "components/c", []byte("3"))

	entries, err := s.List(ctx, "links/")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, s.Delete(ctx, "links/a"))
	entries, err = s.List(ctx, "links/")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.Delete(ctx, "links/a")) // delete of absent key is not an error
}

func TestMemoryStoreWatch(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx, "links/")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "links/a", []byte("1"))
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, "links/a", ev.Key)
		assert.Equal(t, []byte("1"), ev.Value)
		assert.False(t, ev.Deleted)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch event")
	}

	require.NoError(t, s.Delete(context.Background(), "links/a"))
	select {
	case ev := <-ch:
		assert.True(t, ev.Deleted)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}
