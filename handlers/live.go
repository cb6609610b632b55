package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"playlog/models"
	"playlog/services/collection"
	"playlog/services/ordering"
	"playlog/services/search"
)

const (
	liveWriteWait    = 10 * time.Second
	livePongWait     = 60 * time.Second
	livePingInterval = 50 * time.Second
	liveMaxMessage   = 64 << 10
	liveOutboxSize   = 16
)

// LiveHandler runs one view per WebSocket: it pushes the collection as it
// changes and serves debounced search and local-only timeline edits.
type LiveHandler struct {
	Registry collectionRegistry
	Searcher search.Searcher
	Debounce time.Duration
	// BaseContext ends every open view when cancelled.
	BaseContext context.Context
	upgrader    websocket.Upgrader
}

func NewLiveHandler(registry collectionRegistry, searcher search.Searcher, debounce time.Duration) *LiveHandler {
	return &LiveHandler{
		Registry:    registry,
		Searcher:    searcher,
		Debounce:    debounce,
		BaseContext: context.Background(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type timelinePayload struct {
	Filter  ordering.Filter         `json:"filter"`
	Items   []models.CollectionItem `json:"items"`
	Buckets []ordering.Bucket       `json:"buckets"`
}

func timelineMessage(t *ordering.Timeline) timelinePayload {
	items := t.Items()
	if items == nil {
		items = []models.CollectionItem{}
	}
	buckets := t.Buckets()
	if buckets == nil {
		buckets = []ordering.Bucket{}
	}
	return timelinePayload{Filter: t.Filter(), Items: items, Buckets: buckets}
}

// liveMessage is a server push. Exactly one payload field is set, matching Type.
type liveMessage struct {
	Type     string            `json:"type"`
	Snapshot *snapshotResponse `json:"snapshot,omitempty"`
	Timeline *timelinePayload  `json:"timeline,omitempty"`
	Search   *search.Result    `json:"search,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// liveCommand is a client request.
type liveCommand struct {
	Op            string `json:"op"`
	Query         string `json:"query"`
	DraggedID     string `json:"draggedId"`
	TargetID      string `json:"targetId"`
	Sort          string `json:"sort"`
	MinYear       int    `json:"minYear"`
	MaxYear       int    `json:"maxYear"`
	MinCompletion int    `json:"minCompletion"`
	Difficulty    string `json:"difficulty"`
}

func (h *LiveHandler) Serve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collectionType, err := collectionFromVars(vars)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := strings.TrimSpace(vars["userID"])
	_, sub, err := h.Registry.Open(userID, collectionType)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] upgrade failed for %s/%s: %v", userID, collectionType, err)
		return
	}
	log.Printf("[live] view opened for %s/%s", userID, collectionType)

	session := &liveSession{
		conn:     conn,
		out:      make(chan liveMessage, liveOutboxSize),
		timeline: ordering.NewTimeline(ordering.Filter{}),
	}
	session.run(h.BaseContext, sub, h.Searcher, collectionType, h.Debounce)
	log.Printf("[live] view closed for %s/%s", userID, collectionType)
}

type liveSession struct {
	conn     *websocket.Conn
	out      chan liveMessage
	timeline *ordering.Timeline
	surface  *search.Surface
	ctx      context.Context
}

func (s *liveSession) run(parent context.Context, sub *collection.Subscription, searcher search.Searcher, collectionType models.CollectionType, debounce time.Duration) {
	ctx, cancel := context.WithCancel(parent)
	s.ctx = ctx

	s.surface = search.NewSurface(searcher, collectionType, debounce, func(result search.Result) {
		s.send(liveMessage{Type: "search", Search: &result})
	})

	updates, stopWatch := sub.Watch()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.writeLoop()
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.pumpSnapshots(updates)
	}()

	s.readLoop()

	cancel()
	stopWatch()
	s.surface.Close()
	wg.Wait()
}

// send queues msg unless the session is ending.
func (s *liveSession) send(msg liveMessage) {
	select {
	case s.out <- msg:
	case <-s.ctx.Done():
	}
}

func (s *liveSession) sendTimeline() {
	payload := timelineMessage(s.timeline)
	s.send(liveMessage{Type: "timeline", Timeline: &payload})
}

func (s *liveSession) pumpSnapshots(updates <-chan collection.Snapshot) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			resp := newSnapshotResponse(snapshot)
			s.send(liveMessage{Type: "snapshot", Snapshot: &resp})
			if !snapshot.Loading {
				s.timeline.Rebuild(snapshot.Items)
				s.sendTimeline()
			}
		}
	}
}

func (s *liveSession) writeLoop() {
	ticker := time.NewTicker(livePingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			deadline := time.Now().Add(liveWriteWait)
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				log.Printf("[live] write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *liveSession) readLoop() {
	s.conn.SetReadLimit(liveMaxMessage)
	s.conn.SetReadDeadline(time.Now().Add(livePongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})

	for {
		var cmd liveCommand
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[live] read failed: %v", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(livePongWait))
		s.handle(cmd)
	}
}

func (s *liveSession) handle(cmd liveCommand) {
	switch cmd.Op {
	case "search":
		s.surface.Input(cmd.Query)
	case "timeline.move":
		if s.timeline.Move(cmd.DraggedID, cmd.TargetID) {
			s.sendTimeline()
		}
	case "timeline.sort":
		mode, err := ordering.ParseSortMode(cmd.Sort)
		if err != nil {
			s.send(liveMessage{Type: "error", Error: err.Error()})
			return
		}
		s.timeline.SetFilter(ordering.Filter{
			Sort:          mode,
			MinYear:       cmd.MinYear,
			MaxYear:       cmd.MaxYear,
			MinCompletion: cmd.MinCompletion,
			Difficulty:    strings.TrimSpace(cmd.Difficulty),
		})
		s.sendTimeline()
	default:
		s.send(liveMessage{Type: "error", Error: "unknown op " + cmd.Op})
	}
}
