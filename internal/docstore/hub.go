package docstore

import (
	"context"
	"sync"
)

// hub fans document changes out to in-process subscribers. Callers must
// serialise publish with their own writes so subscribers see changes in
// commit order.
type hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]*subscription
}

func newHub() *hub {
	return &hub{subs: map[string]map[int]*subscription{}}
}

// subscription buffers snapshots without bound so a slow reader never blocks
// a writer and never misses a change.
type subscription struct {
	mu     sync.Mutex
	queue  []Snapshot
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
	out    chan Snapshot
}

func newSubscription() *subscription {
	return &subscription{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Snapshot),
	}
}

func (s *subscription) push(snaps ...Snapshot) {
	if len(snaps) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, snaps...)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, snap := range batch {
			select {
			case s.out <- snap:
			case <-s.done:
				return
			}
		}
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// subscribe registers a watcher on path and queues initial before any later publish.
func (h *hub) subscribe(ctx context.Context, path string, initial []Snapshot) (<-chan Snapshot, func()) {
	sub := newSubscription()
	sub.push(initial...)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[path] == nil {
		h.subs[path] = map[int]*subscription{}
	}
	h.subs[path][id] = sub
	h.mu.Unlock()

	go sub.run()

	cancel := func() {
		h.mu.Lock()
		if m := h.subs[path]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(h.subs, path)
			}
		}
		h.mu.Unlock()
		sub.stop()
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.out, cancel
}

// publish delivers snap to watchers of the document and of its collection.
func (h *hub) publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[snap.Path] {
		sub.push(snap)
	}
	for _, sub := range h.subs[Parent(snap.Path)] {
		sub.push(snap)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = map[string]map[int]*subscription{}
	h.mu.Unlock()
	for _, m := range subs {
		for _, sub := range m {
			sub.stop()
		}
	}
}
