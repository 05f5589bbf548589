package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/content"
	"github.com/viant/scgraph/content/memstore"
	"github.com/viant/scgraph/event"
)

var errBackendDown = errors.New("backend down")

// flakyStore fails selected operations on demand.
type flakyStore struct {
	content.Store
	failAddRef bool
	collide    bool
}

func (f *flakyStore) Write(ctx context.Context, sum content.Checksum, r io.Reader) error {
	if f.collide {
		return content.ErrChecksumCollision
	}
	return f.Store.Write(ctx, sum, r)
}

func (f *flakyStore) AddReference(ctx context.Context, a addr.Addr, sum content.Checksum) error {
	if f.failAddRef {
		return errBackendDown
	}
	return f.Store.AddReference(ctx, a, sum)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func readLink(t *testing.T, s *Storage, link addr.Addr) string {
	t.Helper()
	r, err := s.GetLinkContent(context.Background(), link)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestLinkContent_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(WithContentStore(store))
	defer s.Close()

	link, err := s.CreateLink()
	require.NoError(t, err)
	_, err = s.GetLinkContent(ctx, link)
	assert.True(t, errors.Is(err, content.ErrNotFound))
	_, ok, err := s.GetLinkChecksum(link)
	require.NoError(t, err)
	assert.False(t, ok)

	changed := 0
	s.Bus().Subscribe(link, event.ContentChanged, func(event.Event) { changed++ })
	require.NoError(t, s.SetLinkContent(ctx, link, strings.NewReader("hello")))
	assert.Equal(t, "hello", readLink(t, s, link))
	assert.Equal(t, 1, changed)
	sum, ok, err := s.GetLinkChecksum(link)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, content.Sum([]byte("hello")), sum)

	require.NoError(t, s.SetLinkContent(ctx, link, strings.NewReader("world")))
	assert.Equal(t, "world", readLink(t, s, link))
	assert.Equal(t, 2, changed)
	found, err := s.FindLinksByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, content.Stats{Payloads: 1, References: 1, Bytes: 5}, store.Stats())
}

func TestLinkContent_FindAndErase(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(WithContentStore(store))
	defer s.Close()

	first, err := s.CreateLink()
	require.NoError(t, err)
	second, err := s.CreateLink()
	require.NoError(t, err)
	for _, link := range []addr.Addr{first, second} {
		require.NoError(t, s.SetLinkContent(ctx, link, strings.NewReader("shared")))
	}
	sum := content.Sum([]byte("shared"))
	found, err := s.FindLinksByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.Equal(t, []addr.Addr{first, second}, found)

	require.NoError(t, s.Erase(first))
	found, err = s.FindLinksByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.Equal(t, []addr.Addr{second}, found)
	assert.Equal(t, 1, store.Stats().Payloads)

	require.NoError(t, s.Erase(second))
	found, err = s.FindLinksByChecksum(ctx, sum)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Equal(t, content.Stats{}, store.Stats())

	err = s.SetLinkContent(ctx, first, strings.NewReader("late"))
	assert.True(t, errors.Is(err, ErrAlreadyErased))
}

func TestLinkContent_Errors(t *testing.T) {
	ctx := context.Background()
	s := New(WithContentStore(memstore.New()))
	defer s.Close()
	node := newNode(t, s)
	err := s.SetLinkContent(ctx, node, strings.NewReader("x"))
	assert.True(t, errors.Is(err, ErrWrongElementKind))
	_, err = s.GetLinkContent(ctx, node)
	assert.True(t, errors.Is(err, ErrWrongElementKind))
	_, _, err = s.GetLinkChecksum(node)
	assert.True(t, errors.Is(err, ErrWrongElementKind))
	_, err = s.GetLinkContent(ctx, addr.Empty)
	assert.True(t, errors.Is(err, ErrInvalidAddress))

	bare := New()
	defer bare.Close()
	link, err := bare.CreateLink()
	require.NoError(t, err)
	err = bare.SetLinkContent(ctx, link, strings.NewReader("x"))
	assert.True(t, errors.Is(err, ErrContentBackendIO))
}

func TestLinkContent_BackendFailureKeepsPriorContent(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memstore.New()}
	s := New(WithContentStore(store), WithLogger(quietLogger()))
	defer s.Close()
	link, err := s.CreateLink()
	require.NoError(t, err)
	require.NoError(t, s.SetLinkContent(ctx, link, strings.NewReader("before")))

	store.failAddRef = true
	err = s.SetLinkContent(ctx, link, strings.NewReader("after"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentBackendIO))
	assert.True(t, errors.Is(err, errBackendDown))

	sum, ok, err := s.GetLinkChecksum(link)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, content.Sum([]byte("before")), sum)
	assert.Equal(t, "before", readLink(t, s, link))

	// the payload written for the failed update is not left behind
	_, err = store.Read(ctx, content.Sum([]byte("after")))
	assert.True(t, errors.Is(err, content.ErrNotFound))
	assert.Equal(t, 1, store.Store.(content.StatsProvider).Stats().Payloads)

	// rewriting the current payload keeps it when the reference fails
	err = s.SetLinkContent(ctx, link, strings.NewReader("before"))
	assert.True(t, errors.Is(err, ErrContentBackendIO))
	assert.Equal(t, "before", readLink(t, s, link))
}

func TestLinkContent_CollisionPanics(t *testing.T) {
	store := &flakyStore{Store: memstore.New(), collide: true}
	s := New(WithContentStore(store), WithLogger(quietLogger()))
	defer s.Close()
	link, err := s.CreateLink()
	require.NoError(t, err)
	assert.Panics(t, func() {
		_ = s.SetLinkContent(context.Background(), link, strings.NewReader("x"))
	})
}
