package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"playlog/models"
	"playlog/services/media"
	"playlog/services/users"
)

type usersService interface {
	List() []models.User
	Get(id string) (models.User, bool)
	Create(name string) (models.User, error)
	Rename(id, name string) (models.User, error)
	Delete(id string) error
	SetPin(id, pin string) (models.User, error)
	SetPhotoURL(id, url string) (models.User, error)
}

var _ usersService = (*users.Service)(nil)

type photoStore interface {
	UploadProfilePhoto(userID string, data []byte) (string, error)
	MaxBytes() int64
}

var _ photoStore = (*media.Service)(nil)

type UsersHandler struct {
	Service usersService
	Media   photoStore
}

func NewUsersHandler(service usersService, photos photoStore) *UsersHandler {
	return &UsersHandler{Service: service, Media: photos}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.List())
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["userID"])
	user, ok := h.Service.Get(id)
	if !ok {
		http.Error(w, users.ErrUserNotFound.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Service.Create(body.Name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, users.ErrNameRequired) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

func (h *UsersHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["userID"])

	var body struct {
		Name string `json:"name"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Service.Rename(id, body.Name)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, users.ErrNameRequired):
			status = http.StatusBadRequest
		case errors.Is(err, users.ErrUserNotFound):
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["userID"])

	if err := h.Service.Delete(id); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			status = http.StatusNotFound
		case errors.Is(err, users.ErrLastUser):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetPin sets or updates a user's PIN.
func (h *UsersHandler) SetPin(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["userID"])

	var body struct {
		Pin string `json:"pin"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.Service.SetPin(id, body.Pin)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, users.ErrUserNotFound):
			status = http.StatusNotFound
		case errors.Is(err, users.ErrPinRequired), errors.Is(err, users.ErrPinTooShort):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UploadPhoto stores the raw image body as the user's profile photo.
func (h *UsersHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["userID"])
	if _, ok := h.Service.Get(id); !ok {
		http.Error(w, users.ErrUserNotFound.Error(), http.StatusNotFound)
		return
	}

	// One extra byte lets the media service see an oversized body.
	data, err := io.ReadAll(io.LimitReader(r.Body, h.Media.MaxBytes()+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	url, err := h.Media.UploadProfilePhoto(id, data)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.Service.SetPhotoURL(id, url)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

func (h *UsersHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
