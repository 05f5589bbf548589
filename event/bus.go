// Package event implements the synchronous per-element notification bus.
//
// Callbacks run on the goroutine performing the mutation, after the bus lock
// has been released, so a callback may subscribe, unsubscribe or read the
// graph. Subscriptions of an erased element are dropped when it is
// invalidated; subscription ids are never reused, so a stale handle cannot
// cancel a subscription made later on a recycled address.
package event

import (
	"sync"

	"github.com/viant/scgraph/addr"
)

// Kind identifies a structural mutation.
type Kind uint8

const (
	AddOutputArc Kind = iota + 1
	AddInputArc
	RemoveOutputArc
	RemoveInputArc
	EraseElement
	ContentChanged
)

func (k Kind) String() string {
	switch k {
	case AddOutputArc:
		return "add_output_arc"
	case AddInputArc:
		return "add_input_arc"
	case RemoveOutputArc:
		return "remove_output_arc"
	case RemoveInputArc:
		return "remove_input_arc"
	case EraseElement:
		return "erase_element"
	case ContentChanged:
		return "content_changed"
	}
	return "unknown"
}

// Event describes one emission. Other is the arc for arc events and Empty otherwise.
type Event struct {
	Kind   Kind
	Target addr.Addr
	Other  addr.Addr
}

// Callback receives events for a subscribed element.
type Callback func(ev Event)

// Handle identifies a subscription.
type Handle struct {
	Target addr.Addr
	Kind   Kind
	ID     uint64
}

type key struct {
	target addr.Addr
	kind   Kind
}

type subscription struct {
	id       uint64
	callback Callback
}

// Observer is notified about every emission; used for metrics.
type Observer interface {
	OnEmit(kind Kind, callbacks int)
}

// Bus is the subscription table.
type Bus struct {
	mu       sync.RWMutex
	seq      uint64
	subs     map[key][]subscription
	observer Observer
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: map[key][]subscription{}}
}

// SetObserver installs an emission observer.
func (b *Bus) SetObserver(o Observer) {
	b.mu.Lock()
	b.observer = o
	b.mu.Unlock()
}

// Subscribe registers callback for kind events on target.
func (b *Bus) Subscribe(target addr.Addr, kind Kind, callback Callback) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	k := key{target: target, kind: kind}
	b.subs[k] = append(b.subs[k], subscription{id: b.seq, callback: callback})
	return Handle{Target: target, Kind: kind, ID: b.seq}
}

// Unsubscribe removes the subscription; it returns false for unknown or
// invalidated handles.
func (b *Bus) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key{target: h.Target, kind: h.Kind}
	subs := b.subs[k]
	for i := range subs {
		if subs[i].id != h.ID {
			continue
		}
		// copy on write; Emit may hold the previous slice
		updated := make([]subscription, 0, len(subs)-1)
		updated = append(updated, subs[:i]...)
		updated = append(updated, subs[i+1:]...)
		if len(updated) == 0 {
			delete(b.subs, k)
		} else {
			b.subs[k] = updated
		}
		return true
	}
	return false
}

// Emit synchronously calls every callback subscribed to kind on target and
// returns how many were called.
func (b *Bus) Emit(kind Kind, target, other addr.Addr) int {
	b.mu.RLock()
	subs := b.subs[key{target: target, kind: kind}]
	observer := b.observer
	b.mu.RUnlock()
	ev := Event{Kind: kind, Target: target, Other: other}
	for _, sub := range subs {
		sub.callback(ev)
	}
	if observer != nil {
		observer.OnEmit(kind, len(subs))
	}
	return len(subs)
}

// Invalidate drops every subscription on target.
func (b *Bus) Invalidate(target addr.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind := AddOutputArc; kind <= ContentChanged; kind++ {
		delete(b.subs, key{target: target, kind: kind})
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
