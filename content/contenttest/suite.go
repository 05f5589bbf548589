// Package contenttest provides a conformance suite shared by content.Store backends.
package contenttest

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
)

// Factory opens a store rooted at dir. Persistent backends must return a
// store observing previous writes when called again with the same dir.
type Factory func(t *testing.T, dir string) content.Store

// Options tunes the suite for a backend.
type Options struct {
	// Persistent enables the reopen checks.
	Persistent bool
}

// Run executes the conformance suite against the backend.
func Run(t *testing.T, factory Factory, opts Options) {
	t.Run("round trip", func(t *testing.T) { testRoundTrip(t, factory) })
	t.Run("checksum mismatch", func(t *testing.T) { testMismatch(t, factory) })
	t.Run("references", func(t *testing.T) { testReferences(t, factory) })
	t.Run("closed", func(t *testing.T) { testClosed(t, factory) })
	if opts.Persistent {
		t.Run("reopen", func(t *testing.T) { testReopen(t, factory) })
	}
}

func write(t *testing.T, store content.Store, data string) content.Checksum {
	t.Helper()
	sum := content.Sum([]byte(data))
	require.NoError(t, store.Write(context.Background(), sum, bytes.NewReader([]byte(data))))
	return sum
}

func testRoundTrip(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, t.TempDir())
	defer store.Close()

	sum := write(t, store, "hello")
	require.NoError(t, store.AddReference(ctx, addr.Encode(1, 1), sum))
	got, err := content.ReadAll(ctx, store, sum)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// identical rewrite is a no-op
	assert.Equal(t, sum, write(t, store, "hello"))

	empty := write(t, store, "")
	require.NoError(t, store.AddReference(ctx, addr.Encode(1, 2), empty))
	got, err = content.ReadAll(ctx, store, empty)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.Read(ctx, content.Sum([]byte("missing")))
	assert.True(t, errors.Is(err, content.ErrNotFound))
}

func testMismatch(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, t.TempDir())
	defer store.Close()

	sum := content.Sum([]byte("one"))
	err := store.Write(ctx, sum, bytes.NewReader([]byte("two")))
	assert.True(t, errors.Is(err, content.ErrChecksumMismatch))
	_, err = store.Read(ctx, sum)
	assert.True(t, errors.Is(err, content.ErrNotFound))
}

func testReferences(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, t.TempDir())
	defer store.Close()

	a1, a2 := addr.Encode(1, 10), addr.Encode(2, 20)
	assert.True(t, errors.Is(store.AddReference(ctx, a1, content.Sum([]byte("nope"))), content.ErrNotFound))

	sum := write(t, store, "shared")
	require.NoError(t, store.AddReference(ctx, a1, sum))
	require.NoError(t, store.AddReference(ctx, a2, sum))
	require.NoError(t, store.AddReference(ctx, a2, sum))
	found, err := store.FindByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.ElementsMatch(t, []addr.Addr{a1, a2}, found)

	require.NoError(t, store.RemoveReference(ctx, a1, sum))
	found, err = store.FindByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.Equal(t, []addr.Addr{a2}, found)
	_, err = content.ReadAll(ctx, store, sum)
	require.NoError(t, err)

	require.NoError(t, store.RemoveReference(ctx, a2, sum))
	found, err = store.FindByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.Empty(t, found)
	_, err = store.Read(ctx, sum)
	assert.True(t, errors.Is(err, content.ErrNotFound))

	// removing an unknown reference is a no-op
	assert.NoError(t, store.RemoveReference(ctx, a1, sum))

	// a payload that never gained a reference is discarded
	orphan := write(t, store, "orphan")
	require.NoError(t, store.RemoveReference(ctx, a1, orphan))
	_, err = store.Read(ctx, orphan)
	assert.True(t, errors.Is(err, content.ErrNotFound))
}

func testClosed(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := factory(t, t.TempDir())
	require.NoError(t, store.Close())
	_, err := store.FindByChecksum(ctx, content.Sum(nil))
	assert.True(t, errors.Is(err, content.ErrClosed))
	err = store.Write(ctx, content.Sum(nil), bytes.NewReader(nil))
	assert.True(t, errors.Is(err, content.ErrClosed))
}

func testReopen(t *testing.T, factory Factory) {
	ctx := context.Background()
	dir := t.TempDir()
	store := factory(t, dir)
	kept := write(t, store, "kept")
	dropped := write(t, store, "dropped")
	a1, a2 := addr.Encode(3, 1), addr.Encode(3, 2)
	require.NoError(t, store.AddReference(ctx, a1, kept))
	require.NoError(t, store.AddReference(ctx, a2, dropped))
	require.NoError(t, store.RemoveReference(ctx, a2, dropped))
	require.NoError(t, store.Close())

	reopened := factory(t, dir)
	defer reopened.Close()
	got, err := content.ReadAll(ctx, reopened, kept)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))
	found, err := reopened.FindByChecksum(ctx, kept)
	require.NoError(t, err)
	assert.Equal(t, []addr.Addr{a1}, found)
	_, err = reopened.Read(ctx, dropped)
	assert.True(t, errors.Is(err, content.ErrNotFound))
}
