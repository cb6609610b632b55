package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"playlog/models"
	"playlog/services/collection"
	"playlog/services/docstore"
	"playlog/services/media"
	"playlog/services/ordering"
	"playlog/services/search"
	"playlog/services/transfer"
	"playlog/services/users"
)

type contextKey string

const userIDKey contextKey = "playlog.userID"

// WithUserID records the signed-in user on the request context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the signed-in user, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var fieldErr *collection.FieldError
	switch {
	case errors.Is(err, collection.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, ordering.ErrItemNotFound),
		errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &fieldErr),
		errors.Is(err, transfer.ErrInvalidJSON),
		errors.Is(err, transfer.ErrInvalidFormat),
		errors.Is(err, models.ErrUnknownCollection),
		errors.Is(err, docstore.ErrInvalidScope),
		errors.Is(err, media.ErrEmpty),
		errors.Is(err, media.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, search.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrCollectionLoading):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[api] %v", err)
	}
	http.Error(w, err.Error(), status)
}

func collectionFromVars(vars map[string]string) (models.CollectionType, error) {
	return models.ParseCollectionType(strings.TrimSpace(vars["type"]))
}
