package docstore

import (
	"sync"

	"playlog/models"
)

// hub fans snapshots out to listeners. Each listener has its own goroutine
// and a one-slot mailbox; a newer snapshot replaces one not yet delivered.
type hub struct {
	mu     sync.Mutex
	next   uint64
	subs   map[Scope]map[uint64]*subscriber
	closed bool
}

type subscriber struct {
	listener Listener
	mailbox  chan []models.CollectionItem
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func newHub() *hub {
	return &hub{subs: make(map[Scope]map[uint64]*subscriber)}
}

// add registers listener and queues the initial snapshot. Callers hold the
// store's write lock so no write can interleave between snapshot and registration.
func (h *hub) add(scope Scope, listener Listener, initial []models.CollectionItem) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &subscriber{
		listener: listener,
		mailbox:  make(chan []models.CollectionItem, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	sub.mailbox <- initial

	h.next++
	key := h.next
	if h.subs[scope] == nil {
		h.subs[scope] = make(map[uint64]*subscriber)
	}
	h.subs[scope][key] = sub

	go sub.run()

	return func() {
		h.mu.Lock()
		if byKey := h.subs[scope]; byKey != nil {
			delete(byKey, key)
			if len(byKey) == 0 {
				delete(h.subs, scope)
			}
		}
		h.mu.Unlock()
		sub.stop()
	}, nil
}

// publish offers snapshot to every listener of scope. Callers publish in write order.
func (h *hub) publish(scope Scope, snapshot []models.CollectionItem) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs[scope] {
		select {
		case <-sub.mailbox:
		default:
		}
		// Each listener gets its own copy.
		sub.mailbox <- cloneDocuments(snapshot)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	var all []*subscriber
	for _, byKey := range h.subs {
		for _, sub := range byKey {
			all = append(all, sub)
		}
	}
	h.subs = make(map[Scope]map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
}

func (s *subscriber) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case items := <-s.mailbox:
			// done wins over a pending snapshot.
			select {
			case <-s.done:
				return
			default:
			}
			s.listener(items)
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
}
