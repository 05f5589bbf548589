package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/sctype"
	"github.com/viant/scgraph/storage"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig(dir, backend string) *Config {
	cfg := DefaultConfig()
	cfg.Storage.SegmentSize = 64
	cfg.Storage.GCInterval = 0
	cfg.Storage.DumpURL = filepath.Join(dir, "segments.scg")
	cfg.Content.Backend = backend
	cfg.Content.Path = filepath.Join(dir, "content")
	return cfg
}

func linkContent(t *testing.T, s *storage.Storage, link addr.Addr) string {
	t.Helper()
	r, err := s.GetLinkContent(context.Background(), link)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestService_Restart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), BackendFile)

	srv, err := New(ctx, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	g := srv.Storage()
	node, err := g.CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	link, err := g.CreateLink()
	require.NoError(t, err)
	_, err = g.CreateArc(sctype.ConstPermPosArc, node, link)
	require.NoError(t, err)
	require.NoError(t, g.SetLinkContent(ctx, link, strings.NewReader("persisted")))
	before := srv.Info()
	require.NoError(t, srv.Close(ctx))
	require.NoError(t, srv.Close(ctx))

	srv, err = New(ctx, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer srv.Close(ctx)
	after := srv.Info()
	assert.Equal(t, before.Storage, after.Storage)
	assert.Equal(t, BackendFile, after.Backend)
	require.NotNil(t, after.Content)
	assert.Equal(t, 1, after.Content.Payloads)
	assert.Equal(t, "persisted", linkContent(t, srv.Storage(), link))
	assert.NoError(t, srv.Storage().Check())
}

func TestService_DirectoryLock(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), BackendMemory)
	first, err := New(ctx, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = New(ctx, cfg, WithLogger(quietLogger()))
	assert.True(t, errors.Is(err, storage.ErrLocked))

	require.NoError(t, first.Close(ctx))
	second, err := New(ctx, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NoError(t, second.Close(ctx))
}

func TestService_Backends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{BackendMemory, BackendFile, BackendBolt, BackendBadger, BackendSQLite} {
		cfg := testConfig(t.TempDir(), backend)
		cfg.Storage.DumpURL = ""
		srv, err := New(ctx, cfg, WithLogger(quietLogger()))
		require.NoError(t, err, backend)
		g := srv.Storage()
		link, err := g.CreateLink()
		require.NoError(t, err, backend)
		require.NoError(t, g.SetLinkContent(ctx, link, strings.NewReader(backend)), backend)
		assert.Equal(t, backend, linkContent(t, g, link), backend)
		require.NoError(t, g.Erase(link), backend)
		assert.Equal(t, backend, srv.Info().Backend)
		assert.NoError(t, srv.Close(ctx), backend)
	}
}

func TestService_Metrics(t *testing.T) {
	ctx := context.Background()
	srv, err := New(ctx, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	defer srv.Close(ctx)
	_, err = srv.Storage().CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	families, err := srv.Metrics().Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
	assert.Equal(t, 1, srv.Info().Storage.Nodes)
}

func TestService_LogLevel(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), BackendMemory)
	cfg.Log.Level = "warning"
	srv, err := New(ctx, cfg)
	require.NoError(t, err)
	defer srv.Close(ctx)
	logger, ok := srv.logger.(*logrus.Logger)
	require.True(t, ok)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	// an explicit logger wins over the configured level
	cfg = testConfig(t.TempDir(), BackendMemory)
	cfg.Log.Level = "debug"
	explicit := quietLogger()
	srv2, err := New(ctx, cfg, WithLogger(explicit))
	require.NoError(t, err)
	defer srv2.Close(ctx)
	assert.Same(t, explicit, srv2.logger)
}

func TestService_ReadOnly(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), BackendMemory)
	writer, err := New(ctx, cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	_, err = writer.Storage().CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	require.NoError(t, writer.Save(ctx))

	reader, err := New(ctx, cfg, WithLogger(quietLogger()), WithReadOnly())
	require.NoError(t, err)
	assert.Equal(t, 1, reader.Info().Storage.Nodes)
	_, err = reader.Storage().CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	require.NoError(t, reader.Close(ctx))
	require.NoError(t, writer.Close(ctx))

	reopened, err := New(ctx, cfg, WithLogger(quietLogger()), WithReadOnly())
	require.NoError(t, err)
	defer reopened.Close(ctx)
	assert.Equal(t, 1, reopened.Info().Storage.Nodes)
}
