package collection

import (
	"sync"

	"playlog/models"
)

// Snapshot is an immutable view of the mirror at one point in time.
type Snapshot struct {
	Items   []models.CollectionItem `json:"items"`
	Loading bool                    `json:"loading"`
	Err     error                   `json:"-"`
}

// ErrorMessage returns the lifecycle error text, or "" when healthy.
func (s Snapshot) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Loading: s.Loading, Err: s.Err, Items: make([]models.CollectionItem, len(s.Items))}
	for i, item := range s.Items {
		out.Items[i] = item.Clone()
	}
	return out
}

// Subscription is the live mirror of one user's collection. It is released
// by Close or when the context passed to Adapter.Subscribe ends.
type Subscription struct {
	mu       sync.Mutex
	state    Snapshot
	watchers map[uint64]*watcher
	nextID   uint64
	closed   bool

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

type watcher struct {
	ch   chan Snapshot
	once sync.Once
}

func (w *watcher) close() {
	w.once.Do(func() { close(w.ch) })
}

func newSubscription(initial Snapshot) *Subscription {
	return &Subscription{
		state:    initial,
		watchers: make(map[uint64]*watcher),
		done:     make(chan struct{}),
	}
}

// Current returns a copy of the latest state.
func (s *Subscription) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Watch returns a channel primed with the current state that receives every
// later state, coalescing ones the reader has not yet taken. The channel is
// closed by cancel or when the subscription ends.
func (s *Subscription) Watch() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &watcher{ch: make(chan Snapshot, 1)}
	if s.closed {
		w.close()
		return w.ch, func() {}
	}
	w.ch <- s.state.clone()

	s.nextID++
	id := s.nextID
	s.watchers[id] = w

	return w.ch, func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
		w.close()
	}
}

// Done is closed once the subscription has been torn down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches from the store. No watcher receives anything afterwards.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		watchers := s.watchers
		s.watchers = nil
		s.mu.Unlock()

		// Blocks until the store listener has returned.
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		for _, w := range watchers {
			w.close()
		}
		close(s.done)
	})
}

func (s *Subscription) receive(items []models.CollectionItem) {
	s.set(Snapshot{Items: items})
}

func (s *Subscription) set(next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state = next
	for _, w := range s.watchers {
		select {
		case <-w.ch:
		default:
		}
		w.ch <- next.clone()
	}
}
