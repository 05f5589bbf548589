package boltstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/content/contenttest"
)

func TestStore(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, dir string) content.Store {
		s, err := Open(dir)
		require.NoError(t, err)
		return s
	}, contenttest.Options{Persistent: true})
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	sum := content.Sum([]byte("payload"))
	require.NoError(t, s.Write(ctx, sum, bytes.NewReader([]byte("payload"))))
	require.NoError(t, s.AddReference(ctx, addr.Encode(1, 1), sum))
	require.NoError(t, s.AddReference(ctx, addr.Encode(1, 2), sum))
	assert.Equal(t, content.Stats{Payloads: 1, References: 2, Bytes: 7}, s.Stats())
}
