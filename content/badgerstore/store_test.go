package badgerstore

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/content/contenttest"
)

func TestStore_Persistent(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, dir string) content.Store {
		cfg := DefaultConfig()
		cfg.Path = dir
		cfg.SyncWrites = false
		s, err := Open(cfg)
		require.NoError(t, err)
		return s
	}, contenttest.Options{Persistent: true})
}

func TestStore_InMemory(t *testing.T) {
	contenttest.Run(t, func(t *testing.T, dir string) content.Store {
		s, err := Open(InMemoryConfig())
		require.NoError(t, err)
		return s
	}, contenttest.Options{})
}

func TestStore_StatsAndGC(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()
	cfg.GCInterval = 10 * time.Millisecond
	cfg.Logger = logrus.New()
	s, err := Open(cfg)
	require.NoError(t, err)
	sum := content.Sum([]byte("value"))
	require.NoError(t, s.Write(ctx, sum, bytes.NewReader([]byte("value"))))
	require.NoError(t, s.AddReference(ctx, addr.Encode(4, 4), sum))
	assert.Equal(t, content.Stats{Payloads: 1, References: 1, Bytes: 5}, s.Stats())
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
