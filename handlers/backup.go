package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc/pool"

	"playlog/models"
)

// BackupHandler exports every collection type of one user in a single document.
type BackupHandler struct {
	Registry    collectionRegistry
	LoadTimeout time.Duration
	now         func() time.Time
}

func NewBackupHandler(registry collectionRegistry) *BackupHandler {
	return &BackupHandler{Registry: registry, LoadTimeout: defaultLoadTimeout, now: time.Now}
}

type backupDocument struct {
	UserID      string                     `json:"userId"`
	ExportedAt  time.Time                  `json:"exportedAt"`
	Collections map[string]json.RawMessage `json:"collections"`
}

func (h *BackupHandler) Backup(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])

	var mu sync.Mutex
	doc := backupDocument{
		UserID:      userID,
		ExportedAt:  h.now().UTC(),
		Collections: make(map[string]json.RawMessage, len(models.CollectionTypes)),
	}

	p := pool.New().WithContext(r.Context()).WithCancelOnError()
	for _, collectionType := range models.CollectionTypes {
		p.Go(func(ctx context.Context) error {
			adapter, sub, err := h.Registry.Open(userID, collectionType)
			if err != nil {
				return fmt.Errorf("%s: %w", collectionType, err)
			}
			if awaitLoaded(ctx, sub, h.LoadTimeout).Loading {
				return fmt.Errorf("%s: %w", collectionType, ErrCollectionLoading)
			}
			export, err := adapter.ExportSnapshot()
			if err != nil {
				return fmt.Errorf("%s: %w", collectionType, err)
			}

			mu.Lock()
			doc.Collections[string(collectionType)] = json.RawMessage(export.Data)
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		writeError(w, err)
		return
	}

	fileName := fmt.Sprintf("playlog-backup-%s.json", doc.ExportedAt.Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	writeJSON(w, http.StatusOK, doc)
}
