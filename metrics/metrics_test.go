package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scgraph/event"
	"github.com/viant/scgraph/sctype"
	"github.com/viant/scgraph/storage"
)

func TestCollector_Storage(t *testing.T) {
	collector := New("")
	bus := event.New()
	bus.SetObserver(collector)
	s := storage.New(storage.WithMetrics(collector), storage.WithBus(bus))
	defer s.Close()

	a, err := s.CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	b, err := s.CreateNode(sctype.ConstNode)
	require.NoError(t, err)
	_, err = s.CreateArc(sctype.ConstPermPosArc, a, b)
	require.NoError(t, err)
	received := 0
	bus.Subscribe(b, event.RemoveInputArc, func(event.Event) { received++ })

	it, err := s.Iterator3(storage.Fixed(a), storage.Any(0), storage.Any(0))
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.iterators))
	it.Close()
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.iterators))

	require.NoError(t, s.Erase(a))
	assert.Equal(t, 2, s.CollectGarbage())

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.created.WithLabelValues("node")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.created.WithLabelValues("connector")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.erased.WithLabelValues("node")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.erased.WithLabelValues("connector")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.reclaimed))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.segments))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.events.WithLabelValues("add_output_arc")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.callbacks.WithLabelValues("remove_input_arc")))
	assert.Equal(t, 1, received)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["scgraph_gc_duration_seconds"])
	assert.True(t, names["scgraph_storage_created_total"])
}
