package storage

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/addr"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
)

func newNode(t *testing.T, s *Storage) addr.Addr {
	t.Helper()
	a, err := s.CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	return a
}

func newArc(t *testing.T, s *Storage, tag sctype.Type, begin, end addr.Addr) addr.Addr {
	t.Helper()
	a, err := s.CreateArc(tag, begin, end)
	require.NoError(t, err)
	return a
}

func TestStorage_EraseNodeScenario(t *testing.T) {
	s := New()
	defer s.Close()
	a, b := newNode(t, s), newNode(t, s)
	arc1 := newArc(t, s, sctype.ConstPermPosArc, a, b)

	it, err := s.Iterator3(Fixed(a), Any(sctype.ConstPermPosArc), Fixed(b))
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, arc1, it.Value(1))
	assert.Equal(t, [3]addr.Addr{a, arc1, b}, it.Values())
	assert.False(t, it.Next())
	assert.False(t, it.Next())

	require.NoError(t, s.Erase(a))
	it, err = s.Iterator3(Fixed(a), Any(sctype.Unknown), Any(sctype.Unknown))
	require.NoError(t, err)
	assert.False(t, it.Next())
	assert.False(t, s.IsAlive(arc1))
	assert.False(t, s.IsAlive(a))
	assert.True(t, s.IsAlive(b))
	assert.NoError(t, s.Check())
}

func TestStorage_GetAndKinds(t *testing.T) {
	s := New()
	defer s.Close()
	a, b := newNode(t, s), newNode(t, s)
	arc := newArc(t, s, sctype.ConstPermPosArc, a, b)

	tag, err := s.GetElementType(arc)
	require.NoError(t, err)
	assert.Equal(t, sctype.ConstPermPosArc, tag)
	begin, err := s.GetArcBegin(arc)
	require.NoError(t, err)
	assert.Equal(t, a, begin)
	end, err := s.GetArcEnd(arc)
	require.NoError(t, err)
	assert.Equal(t, b, end)

	_, err = s.GetArcBegin(a)
	assert.True(t, errors.Is(err, ErrWrongElementKind))

	var testCases = []struct {
		description string
		addr        addr.Addr
	}{
		{description: "empty", addr: addr.Empty},
		{description: "unknown segment", addr: addr.Encode(9, 0)},
		{description: "never allocated", addr: addr.Encode(1, 500)},
	}
	for _, testCase := range testCases {
		_, err := s.Get(testCase.addr)
		assert.True(t, errors.Is(err, ErrInvalidAddress), testCase.description)
		assert.False(t, s.IsAlive(testCase.addr), testCase.description)
		_, err = s.GetElementType(testCase.addr)
		assert.True(t, errors.Is(err, ErrInvalidAddress), testCase.description)
	}
}

func TestStorage_CreateValidation(t *testing.T) {
	s := New()
	defer s.Close()
	_, err := s.CreateNode(sctype.Node | sctype.Link)
	assert.True(t, errors.Is(err, ErrInvalidType))
	_, err = s.CreateNode(sctype.ConstLink)
	assert.True(t, errors.Is(err, ErrWrongElementKind))
	_, err = s.CreateLinkOfType(sctype.ConstNode)
	assert.True(t, errors.Is(err, ErrWrongElementKind))

	a := newNode(t, s)
	_, err = s.CreateArc(sctype.ConstNode, a, a)
	assert.True(t, errors.Is(err, ErrWrongElementKind))
	_, err = s.CreateArc(sctype.ConstPermPosArc, a, addr.Encode(1, 300))
	assert.True(t, errors.Is(err, ErrInvalidAddress))

	b := newNode(t, s)
	require.NoError(t, s.Erase(b))
	_, err = s.CreateArc(sctype.ConstPermPosArc, a, b)
	assert.True(t, errors.Is(err, ErrInvalidAddress))
	assert.True(t, errors.Is(s.Erase(b), ErrAlreadyErased))
}

func TestStorage_CascadeArcOfArc(t *testing.T) {
	s := New()
	defer s.Close()
	a, b, c := newNode(t, s), newNode(t, s), newNode(t, s)
	arc1 := newArc(t, s, sctype.ConstPermPosArc, a, b)
	arc2 := newArc(t, s, sctype.ConstPermPosArc, c, arc1)
	arc3 := newArc(t, s, sctype.ConstPermPosArc, arc2, c)
	loop := newArc(t, s, sctype.ConstArc, b, b)

	require.NoError(t, s.Erase(b))
	for _, erased := range []addr.Addr{b, arc1, arc2, arc3, loop} {
		assert.False(t, s.IsAlive(erased), erased.String())
	}
	assert.True(t, s.IsAlive(a))
	assert.True(t, s.IsAlive(c))
	assert.NoError(t, s.Check())

	assert.Equal(t, 5, s.CollectGarbage())
	assert.NoError(t, s.Check())
	stats := s.Stats()
	assert.Equal(t, 2, stats.Nodes)
	assert.Equal(t, 0, stats.Connectors)
	assert.Equal(t, 0, stats.Deleted)
}

func TestStorage_EraseEvents(t *testing.T) {
	s := New()
	defer s.Close()
	n, m := newNode(t, s), newNode(t, s)

	var added, removed []event.Event
	s.Bus().Subscribe(n, event.AddOutputArc, func(ev event.Event) { added = append(added, ev) })
	s.Bus().Subscribe(m, event.AddInputArc, func(ev event.Event) { added = append(added, ev) })
	s.Bus().Subscribe(m, event.RemoveInputArc, func(ev event.Event) { removed = append(removed, ev) })
	arc := newArc(t, s, sctype.ConstPermPosArc, n, m)
	assert.Equal(t, []event.Event{
		{Kind: event.AddOutputArc, Target: n, Other: arc},
		{Kind: event.AddInputArc, Target: m, Other: arc},
	}, added)

	calls := 0
	s.Bus().Subscribe(n, event.EraseElement, func(ev event.Event) {
		calls++
		assert.Equal(t, n, ev.Target)
		assert.False(t, s.IsAlive(n))
		assert.True(t, s.IsErasing(n))
		el, err := s.Get(n)
		assert.NoError(t, err)
		assert.Zero(t, el.DeleteTS)
	})
	require.NoError(t, s.Erase(n))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []event.Event{{Kind: event.RemoveInputArc, Target: m, Other: arc}}, removed)

	// subscriptions of an erased element are invalidated
	assert.Zero(t, s.Bus().Emit(event.EraseElement, n, addr.Empty))
	assert.True(t, errors.Is(s.Erase(n), ErrAlreadyErased))
	assert.Equal(t, 1, calls)
}

func TestStorage_IncidenceOrder(t *testing.T) {
	s := New()
	defer s.Close()
	hub := newNode(t, s)
	var arcs []addr.Addr
	for i := 0; i < 4; i++ {
		arcs = append(arcs, newArc(t, s, sctype.ConstPermPosArc, hub, newNode(t, s)))
	}
	it, err := s.Iterator3(Fixed(hub), Any(sctype.Unknown), Any(sctype.Unknown))
	require.NoError(t, err)
	var got []addr.Addr
	for it.Next() {
		got = append(got, it.Value(1))
	}
	assert.Equal(t, []addr.Addr{arcs[3], arcs[2], arcs[1], arcs[0]}, got)

	// erase from the middle and reclaim
	require.NoError(t, s.Erase(arcs[2]))
	assert.Equal(t, 1, s.CollectGarbage())
	require.NoError(t, s.Check())
	it, err = s.Iterator3(Fixed(hub), Any(sctype.Unknown), Any(sctype.Unknown))
	require.NoError(t, err)
	got = got[:0]
	for it.Next() {
		got = append(got, it.Value(1))
	}
	assert.Equal(t, []addr.Addr{arcs[3], arcs[1], arcs[0]}, got)
}

func TestStorage_OutOfCapacity(t *testing.T) {
	s := New(WithSegmentSize(4), WithMaxSegments(2), WithProbeWindow(2))
	defer s.Close()
	var nodes []addr.Addr
	for i := 0; i < 8; i++ {
		nodes = append(nodes, newNode(t, s))
	}
	_, err := s.CreateNode(sctype.ConstNode)
	assert.True(t, errors.Is(err, ErrOutOfCapacity))
	assert.Equal(t, 2, s.Stats().Segments)

	// allocation failure triggers a collection
	require.NoError(t, s.Erase(nodes[5]))
	reused := newNode(t, s)
	assert.Equal(t, nodes[5], reused)
	assert.Equal(t, 8, s.Stats().Nodes)
}

func TestStorage_ExhaustedSegmentIsSkipped(t *testing.T) {
	s := New(WithSegmentSize(64), WithMaxSegments(4), WithProbeWindow(2))
	defer s.Close()
	var nodes []addr.Addr
	for i := 0; i < 64; i++ {
		nodes = append(nodes, newNode(t, s))
	}
	// 33 holes: one more than the freed ring keeps, all far from the probe cursor
	for i := 10; i < 42; i++ {
		require.NoError(t, s.Erase(nodes[i]))
	}
	require.NoError(t, s.Erase(nodes[50]))
	assert.Equal(t, 33, s.CollectGarbage())
	for i := 0; i < 32; i++ {
		a := newNode(t, s)
		assert.EqualValues(t, 1, a.Segment())
	}
	assert.Equal(t, 1, s.Stats().Segments)

	a, err := s.CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	assert.EqualValues(t, 2, a.Segment())
	assert.Equal(t, 2, s.Stats().Segments)
}

func TestStorage_Closed(t *testing.T) {
	s := New()
	a := newNode(t, s)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err := s.CreateNode(sctype.ConstNode)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(s.Erase(a), ErrClosed))
	_, err = s.Iterator3(Fixed(a), Any(0), Any(0))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, s.IsAlive(a))
}
