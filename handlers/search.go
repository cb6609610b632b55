package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"playlog/models"
	"playlog/services/search"
)

type SearchHandler struct {
	Searcher search.Searcher
}

func NewSearchHandler(searcher search.Searcher) *SearchHandler {
	return &SearchHandler{Searcher: searcher}
}

// Search answers a single catalog query. Debouncing is the caller's job here;
// the live socket offers the debounced variant.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	collectionType, err := collectionFromVars(mux.Vars(r))
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query().Get("q")
	candidates, err := h.Searcher.Search(r.Context(), collectionType, query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, search.ErrNoProvider) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []models.Candidate{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":      search.NormalizeQuery(query),
		"candidates": candidates,
	})
}

func (h *SearchHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
