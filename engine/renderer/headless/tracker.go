package headless

import (
	"sync/atomic"

	"github.com/spaghettifunk/vkbind/engine/renderer"
)

// Tracker is a GPU progress tracker driven by hand. Work submitted is retired
// only when the owner says so.
type Tracker struct {
	producer atomic.Uint64
	consumer atomic.Uint64
}

func NewTracker() *Tracker {
	t := &Tracker{}
	t.producer.Store(1)
	return t
}

func (t *Tracker) ProducerMarker() renderer.Marker {
	return renderer.Marker(t.producer.Load())
}

func (t *Tracker) ConsumerMarker() renderer.Marker {
	return renderer.Marker(t.consumer.Load())
}

// Submit closes the current producer marker and returns it.
func (t *Tracker) Submit() renderer.Marker {
	return renderer.Marker(t.producer.Add(1) - 1)
}

// Retire marks all work up to and including m as complete.
func (t *Tracker) Retire(m renderer.Marker) {
	for {
		cur := t.consumer.Load()
		if uint64(m) <= cur || t.consumer.CompareAndSwap(cur, uint64(m)) {
			return
		}
	}
}

// RetireAll completes every submitted marker.
func (t *Tracker) RetireAll() {
	t.Retire(renderer.Marker(t.producer.Load() - 1))
}
