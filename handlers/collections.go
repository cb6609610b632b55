package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"playlog/models"
	"playlog/services/collection"
	"playlog/services/ordering"
	"playlog/services/search"
)

const (
	defaultLoadTimeout = 5 * time.Second
	maxImportBytes     = 10 << 20
)

type collectionRegistry interface {
	Open(userID string, collectionType models.CollectionType) (*collection.Adapter, *collection.Subscription, error)
}

var _ collectionRegistry = (*collection.Registry)(nil)

type CollectionsHandler struct {
	Registry    collectionRegistry
	LoadTimeout time.Duration
	now         func() time.Time
}

func NewCollectionsHandler(registry collectionRegistry) *CollectionsHandler {
	return &CollectionsHandler{Registry: registry, LoadTimeout: defaultLoadTimeout, now: time.Now}
}

// SetClock overrides the time source used for new entries and swaps.
func (h *CollectionsHandler) SetClock(now func() time.Time) {
	h.now = now
}

type snapshotResponse struct {
	Items   []models.CollectionItem `json:"items"`
	Loading bool                    `json:"loading"`
	Error   string                  `json:"error,omitempty"`
}

func newSnapshotResponse(s collection.Snapshot) snapshotResponse {
	items := s.Items
	if items == nil {
		items = []models.CollectionItem{}
	}
	return snapshotResponse{Items: items, Loading: s.Loading, Error: s.ErrorMessage()}
}

// awaitLoaded waits for the first delivery of a fresh subscription.
func awaitLoaded(ctx context.Context, sub *collection.Subscription, timeout time.Duration) collection.Snapshot {
	updates, cancel := sub.Watch()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	latest := sub.Current()
	for latest.Loading {
		select {
		case next, ok := <-updates:
			if !ok {
				return latest
			}
			latest = next
		case <-timer.C:
			return latest
		case <-ctx.Done():
			return latest
		}
	}
	return latest
}

// ErrCollectionLoading is returned when the first snapshot did not arrive in time.
var ErrCollectionLoading = errors.New("collection is still loading")

// open resolves the adapter for the request path and its loaded snapshot.
func (h *CollectionsHandler) open(w http.ResponseWriter, r *http.Request) (*collection.Adapter, collection.Snapshot, bool) {
	vars := mux.Vars(r)
	collectionType, err := collectionFromVars(vars)
	if err != nil {
		writeError(w, err)
		return nil, collection.Snapshot{}, false
	}
	adapter, sub, err := h.Registry.Open(strings.TrimSpace(vars["userID"]), collectionType)
	if err != nil {
		writeError(w, err)
		return nil, collection.Snapshot{}, false
	}
	return adapter, awaitLoaded(r.Context(), sub, h.LoadTimeout), true
}

// openLoaded is open for handlers that act on the item list; a snapshot still
// loading after LoadTimeout is answered with 503.
func (h *CollectionsHandler) openLoaded(w http.ResponseWriter, r *http.Request) (*collection.Adapter, collection.Snapshot, bool) {
	adapter, snapshot, ok := h.open(w, r)
	if !ok {
		return nil, collection.Snapshot{}, false
	}
	if snapshot.Loading {
		writeError(w, ErrCollectionLoading)
		return nil, collection.Snapshot{}, false
	}
	return adapter, snapshot, true
}

func (h *CollectionsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	_, snapshot, ok := h.open(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(snapshot))
}

func (h *CollectionsHandler) Library(w http.ResponseWriter, r *http.Request) {
	_, snapshot, ok := h.open(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buckets": ordering.Library(snapshot.Items),
		"loading": snapshot.Loading,
	})
}

func (h *CollectionsHandler) Wishlist(w http.ResponseWriter, r *http.Request) {
	_, snapshot, ok := h.open(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   ordering.Wishlist(snapshot.Items),
		"loading": snapshot.Loading,
	})
}

// parseFilter reads the timeline filter from the query string.
func parseFilter(r *http.Request) (ordering.Filter, error) {
	q := r.URL.Query()
	mode, err := ordering.ParseSortMode(q.Get("sort"))
	if err != nil {
		return ordering.Filter{}, err
	}
	filter := ordering.Filter{Sort: mode, Difficulty: strings.TrimSpace(q.Get("difficulty"))}
	bounds := map[string]*int{
		"minYear":       &filter.MinYear,
		"maxYear":       &filter.MaxYear,
		"minCompletion": &filter.MinCompletion,
	}
	for name, dst := range bounds {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ordering.Filter{}, fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = n
	}
	return filter, nil
}

func (h *CollectionsHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, snapshot, ok := h.open(w, r)
	if !ok {
		return
	}

	timeline := ordering.NewTimeline(filter)
	timeline.Rebuild(snapshot.Items)
	writeJSON(w, http.StatusOK, timelineMessage(timeline))
}

type addRequest struct {
	Candidate models.Candidate `json:"candidate"`
	Fields    map[string]any   `json:"fields"`
}

func writeDuplicate(w http.ResponseWriter, err error) {
	body := map[string]any{"error": err.Error()}
	var dup *search.DuplicateError
	if errors.As(err, &dup) {
		body["existingId"] = dup.Existing.ID
	}
	writeJSON(w, http.StatusConflict, body)
}

func (h *CollectionsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var body addRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Candidate.Name) == "" {
		http.Error(w, "candidate name is required", http.StatusBadRequest)
		return
	}

	adapter, snapshot, ok := h.openLoaded(w, r)
	if !ok {
		return
	}

	now := h.now()
	patch, err := collection.ParsePatchAt(adapter.Collection(), body.Fields, now)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := search.CheckDuplicate(snapshot.Items, body.Candidate.ID); err != nil {
		writeDuplicate(w, err)
		return
	}

	id, err := adapter.Add(r.Context(), collection.NewEntry(body.Candidate, patch, now))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *CollectionsHandler) AddWishlist(w http.ResponseWriter, r *http.Request) {
	var candidate models.Candidate
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(candidate.Name) == "" {
		http.Error(w, "candidate name is required", http.StatusBadRequest)
		return
	}

	adapter, snapshot, ok := h.openLoaded(w, r)
	if !ok {
		return
	}
	if err := search.CheckDuplicate(snapshot.Items, candidate.ID); err != nil {
		writeDuplicate(w, err)
		return
	}

	id, err := adapter.Add(r.Context(), collection.NewWishlistEntry(candidate, h.now()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *CollectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	adapter, _, ok := h.open(w, r)
	if !ok {
		return
	}
	patch, err := collection.ParsePatchAt(adapter.Collection(), fields, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	if patch.IsEmpty() {
		http.Error(w, "no fields to update", http.StatusBadRequest)
		return
	}

	if err := adapter.Update(r.Context(), mux.Vars(r)["itemID"], patch); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CollectionsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	adapter, _, ok := h.open(w, r)
	if !ok {
		return
	}
	if err := adapter.Remove(r.Context(), mux.Vars(r)["itemID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CollectionsHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DraggedID string `json:"draggedId"`
		TargetID  string `json:"targetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	adapter, snapshot, ok := h.openLoaded(w, r)
	if !ok {
		return
	}
	swapped, err := ordering.SwapByID(r.Context(), adapter, snapshot.Items, body.DraggedID, body.TargetID, h.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"swapped": swapped})
}

func (h *CollectionsHandler) Export(w http.ResponseWriter, r *http.Request) {
	adapter, _, ok := h.openLoaded(w, r)
	if !ok {
		return
	}
	export, err := adapter.ExportSnapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.Write(export.Data)
}

func (h *CollectionsHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("import larger than %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	adapter, _, ok := h.open(w, r)
	if !ok {
		return
	}
	imported, err := adapter.ImportSnapshot(r.Context(), data)
	if err != nil {
		var importErr *collection.ImportError
		if errors.As(err, &importErr) {
			writeJSON(w, statusFor(importErr.Err), map[string]any{
				"imported": importErr.Applied,
				"error":    err.Error(),
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

func (h *CollectionsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
