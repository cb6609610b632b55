package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"playlog/models"
	"playlog/services/sessions"
	"playlog/services/users"
)

type authUsers interface {
	Get(id string) (models.User, bool)
	VerifyPin(id, pin string) error
}

var _ authUsers = (*users.Service)(nil)

type sessionService interface {
	Login(userID string) (sessions.Session, error)
	Resolve(token string) (sessions.Session, error)
	Logout(token string)
}

var _ sessionService = (*sessions.Service)(nil)

type AuthHandler struct {
	Users    authUsers
	Sessions sessionService
}

func NewAuthHandler(usersSvc authUsers, sessionsSvc sessionService) *AuthHandler {
	return &AuthHandler{Users: usersSvc, Sessions: sessionsSvc}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt,omitempty"`
	User      models.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Pin    string `json:"pin"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, ok := h.Users.Get(body.UserID)
	if !ok {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := h.Users.VerifyPin(user.ID, body.Pin); err != nil {
		if errors.Is(err, users.ErrPinInvalid) {
			log.Printf("[auth] rejected PIN for %s", user.ID)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		writeError(w, err)
		return
	}

	session, err := h.Sessions.Login(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	h.Sessions.Logout(token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
