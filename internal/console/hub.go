// Package console fans captured server output out to live subscribers.
package console

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Line is one console line of a server.
type Line struct {
	ServerID string `json:"server_id"`
	Text     string `json:"text"`
}

type subscriber struct {
	id string // "" receives every server
	ch chan Line
}

// Hub delivers published lines to the subscribers of a server id. Publish
// never blocks: a subscriber whose buffer is full misses the line.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish has the shape of supervisor.OutputFunc so a hub can be handed to a
// launch directly.
func (h *Hub) Publish(id, line string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.id != "" && s.id != id {
			continue
		}
		select {
		case s.ch <- Line{ServerID: id, Text: line}:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber for id, or for all servers when id is
// empty. cancel unregisters it and closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(id string, buffer int) (<-chan Line, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &subscriber{id: id, ch: make(chan Line, buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many lines were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Tee returns an output function that calls every non-nil fn in order.
func Tee(fns ...func(id, line string)) func(id, line string) {
	var out []func(id, line string)
	for _, fn := range fns {
		if fn != nil {
			out = append(out, fn)
		}
	}
	return func(id, line string) {
		for _, fn := range out {
			fn(id, line)
		}
	}
}
