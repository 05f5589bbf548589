package filestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/content/contenttest"
)

func open(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(Options{BasePath: dir})
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, dir string) content.Store {
		return open(t, dir)
	}, contenttest.Options{Persistent: true})
}

func TestStore_RecoverTornTail(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := open(t, base)
	sum := content.Sum([]byte("first"))
	require.NoError(t, s.Write(ctx, sum, bytes.NewReader([]byte("first"))))
	require.NoError(t, s.AddReference(ctx, addr.Encode(1, 1), sum))
	require.NoError(t, s.Sync())

	// junk that cannot form a valid record
	f, err := os.OpenFile(filepath.Join(base, "content_000000.log"), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{kindRef, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.Close())

	s2 := open(t, base)
	defer s2.Close()
	got, err := content.ReadAll(ctx, s2, sum)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))
	found, err := s2.FindByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.Equal(t, []addr.Addr{addr.Encode(1, 1)}, found)

	// appends continue after the truncated tail
	other := content.Sum([]byte("second"))
	require.NoError(t, s2.Write(ctx, other, bytes.NewReader([]byte("second"))))
	got, err = content.ReadAll(ctx, s2, other)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestStore_Rotation(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := Open(Options{BasePath: base, SegmentSize: 128})
	require.NoError(t, err)
	var sums []content.Checksum
	for _, payload := range []string{"alpha alpha alpha alpha", "beta beta beta beta", "gamma gamma gamma gamma", "delta delta delta"} {
		sum := content.Sum([]byte(payload))
		require.NoError(t, s.Write(ctx, sum, bytes.NewReader([]byte(payload))))
		sums = append(sums, sum)
	}
	assert.Greater(t, len(s.manifest.Segments), 1)
	require.NoError(t, s.Close())

	s2, err := Open(Options{BasePath: base, SegmentSize: 128})
	require.NoError(t, err)
	defer s2.Close()
	for _, sum := range sums {
		_, err := content.ReadAll(ctx, s2, sum)
		assert.NoError(t, err)
	}
}

func TestStore_Compact(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := open(t, base)
	live := content.Sum([]byte("live"))
	dead := content.Sum([]byte("dead"))
	require.NoError(t, s.Write(ctx, live, bytes.NewReader([]byte("live"))))
	require.NoError(t, s.Write(ctx, dead, bytes.NewReader([]byte("dead"))))
	require.NoError(t, s.AddReference(ctx, addr.Encode(2, 1), live))
	require.NoError(t, s.AddReference(ctx, addr.Encode(2, 2), dead))
	require.NoError(t, s.RemoveReference(ctx, addr.Encode(2, 2), dead))

	require.NoError(t, s.Compact(ctx))
	_, err := os.Stat(filepath.Join(base, "content_000000.log"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, content.Stats{Payloads: 1, References: 1, Bytes: 4}, s.Stats())
	require.NoError(t, s.Close())

	s2 := open(t, base)
	defer s2.Close()
	got, err := content.ReadAll(ctx, s2, live)
	require.NoError(t, err)
	assert.Equal(t, "live", string(got))
	found, err := s2.FindByChecksum(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, []addr.Addr{addr.Encode(2, 1)}, found)
	_, err = s2.Read(ctx, dead)
	assert.True(t, errors.Is(err, content.ErrNotFound))
	assert.Equal(t, 1, s2.Stats().Payloads)
}
