package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/refmap/internal/core/funcindex"
	"github.com/jinford/refmap/internal/core/funcrange"
)

func record(name string, start int, vec []float32) funcindex.Record {
	return funcindex.Record{
		ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		Function: funcrange.Function{
			Name:      name,
			File:      "/src/" + name + ".c",
			StartLine: start,
			EndLine:   start + 3,
			Content:   "void " + name + "(void) {}\n",
		},
		Source:      name + ".c",
		RelPath:     name + ".c",
		Language:    "C",
		ContentHash: "abc",
		Embedding:   vec,
	}
}

func openStore(t *testing.T) *FunctionStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "functions.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFunctionStore_SearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.Upsert(ctx, []funcindex.Record{
		record("east", 1, []float32{1, 0}),
		record("north", 10, []float32{0, 1}),
		record("west", 20, []float32{-1, 0}),
		record("other_dim", 30, []float32{1, 0, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "east", hits[0].Record.Function.Name)
	assert.Equal(t, "north", hits[1].Record.Function.Name)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
	assert.Equal(t, 1, hits[0].Record.Function.StartLine)
	assert.Equal(t, "east.c", hits[0].Record.Source)
	assert.Equal(t, "C", hits[0].Record.Language)

	all, err := store.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.InDelta(t, 2.0, all[2].Distance, 1e-9)
}

func TestFunctionStore_UpsertReplacesAndReset(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	r := record("mdns_init", 5, []float32{1, 0})
	require.NoError(t, store.Upsert(ctx, []funcindex.Record{r}))
	r.Function.StartLine = 7
	require.NoError(t, store.Upsert(ctx, []funcindex.Record{r}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := store.FindByName(ctx, "mdns_init")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 7, found[0].Function.StartLine)
	assert.Equal(t, r.ID, found[0].ID)

	require.NoError(t, store.Reset(ctx))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFunctionStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "functions.sqlite")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, []funcindex.Record{record("a", 1, []float32{1})}))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
