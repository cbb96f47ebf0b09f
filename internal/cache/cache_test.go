package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Badger {
	t.Helper()
	store, err := NewBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadger_GetSet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.BatchSet(ctx, []Entry{{Key: "b", Value: []byte("2")}, {Key: "c", Value: []byte("3")}}))

	for key, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestNewBadger_RequiresDir(t *testing.T) {
	_, err := NewBadger(BadgerOptions{})
	assert.Error(t, err)
}

func TestBadger_PersistsOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Close())

	reopened, err := NewBadger(BadgerOptions{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestEmbeddings_LookupPut(t *testing.T) {
	ctx := context.Background()
	emb := NewEmbeddings(newTestStore(t), "m", 2)

	vectors, missing, err := emb.Lookup(ctx, []string{"hi", "bye"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, missing)
	assert.Nil(t, vectors[0])

	require.NoError(t, emb.Put(ctx, []string{"bye"}, [][]float32{{0.5, -1}}))

	vectors, missing, err = emb.Lookup(ctx, []string{"hi", "bye"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, missing)
	assert.Equal(t, []float32{0.5, -1}, vectors[1])

	assert.Error(t, emb.Put(ctx, []string{"a", "b"}, [][]float32{{1}}))
}

func TestEmbeddings_KeyedByModel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, NewEmbeddings(store, "small", 2).Put(ctx, []string{"hi"}, [][]float32{{1, 2}}))

	_, missing, err := NewEmbeddings(store, "large", 2).Lookup(ctx, []string{"hi"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, missing)

	_, missing, err = NewEmbeddings(store, "small", 3).Lookup(ctx, []string{"hi"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, missing)
}
