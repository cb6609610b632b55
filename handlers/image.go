package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path"

	"github.com/gorilla/mux"

	"playlog/services/media"
)

type mediaReader interface {
	Open(key string) (io.ReadSeekCloser, os.FileInfo, error)
}

// ImageHandler serves stored imagery such as profile photos.
type ImageHandler struct {
	store mediaReader
}

func NewImageHandler(svc *media.Service) *ImageHandler {
	return &ImageHandler{store: mediaAdapter{svc}}
}

// mediaAdapter narrows afero.File to what the handler reads.
type mediaAdapter struct {
	svc *media.Service
}

func (a mediaAdapter) Open(key string) (io.ReadSeekCloser, os.FileInfo, error) {
	f, info, err := a.svc.Open(key)
	if err != nil {
		return nil, nil, err
	}
	return f, info, nil
}

// Serve streams the object named by the {path} route variable.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["path"]

	f, info, err := h.store.Open(key)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Printf("[media] open %s: %v", key, err)
		http.Error(w, "Failed to load image", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	// Object names embed their upload time, so content never changes.
	w.Header().Set("Cache-Control", "public, max-age=2592000, immutable")
	http.ServeContent(w, r, path.Base(key), info.ModTime(), f)
}

// Options handles CORS preflight
func (h *ImageHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
