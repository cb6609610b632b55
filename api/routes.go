package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"playlog/handlers"
	"playlog/services/sessions"
)

type sessionResolver interface {
	Resolve(token string) (sessions.Session, error)
}

var _ sessionResolver = (*sessions.Service)(nil)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// AuthMiddleware requires a live session. The token comes from the
// Authorization header, or the token query parameter for WebSocket upgrades
// where browsers cannot set headers.
func AuthMiddleware(sessionsSvc sessionResolver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := handlers.BearerToken(r)
			if token == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				token = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if token == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			session, err := sessionsSvc.Resolve(token)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(handlers.WithUserID(r.Context(), session.UserID)))
		})
	}
}

// ProfileOwnershipMiddleware rejects requests for a {userID} other than the
// signed-in user.
func ProfileOwnershipMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mux.Vars(r)["userID"] != handlers.UserIDFromContext(r.Context()) {
				http.Error(w, "profile belongs to another user", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	settingsHandler *handlers.SettingsHandler,
	authHandler *handlers.AuthHandler,
	usersHandler *handlers.UsersHandler,
	collectionsHandler *handlers.CollectionsHandler,
	backupHandler *handlers.BackupHandler,
	searchHandler *handlers.SearchHandler,
	liveHandler *handlers.LiveHandler,
	imageHandler *handlers.ImageHandler,
	tasksHandler *handlers.ScheduledTasksHandler,
	sessionsSvc sessionResolver,
) {
	// Stored imagery is public so <img> tags can load it without headers.
	r.HandleFunc("/media/{path:.+}", imageHandler.Serve).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/media/{path:.+}", imageHandler.Options).Methods(http.MethodOptions)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)
	api.PathPrefix("/").HandlerFunc(handleOptions).Methods(http.MethodOptions)

	// Auth routes (no authentication required)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/users", usersHandler.List).Methods(http.MethodGet)

	// Protected routes - require authentication
	protected := api.PathPrefix("").Subrouter()
	protected.Use(AuthMiddleware(sessionsSvc))

	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	protected.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)
	protected.HandleFunc("/tasks", tasksHandler.ListTasks).Methods(http.MethodGet)
	protected.HandleFunc("/tasks/{taskID}/run", tasksHandler.RunTaskNow).Methods(http.MethodPost)
	protected.HandleFunc("/users", usersHandler.Create).Methods(http.MethodPost)
	protected.HandleFunc("/search/{type}", searchHandler.Search).Methods(http.MethodGet)

	// Everything below acts on the signed-in user's own profile.
	profile := protected.PathPrefix("/users/{userID}").Subrouter()
	profile.Use(ProfileOwnershipMiddleware())

	profile.HandleFunc("", usersHandler.Get).Methods(http.MethodGet)
	profile.HandleFunc("", usersHandler.Rename).Methods(http.MethodPatch)
	profile.HandleFunc("", usersHandler.Delete).Methods(http.MethodDelete)
	profile.HandleFunc("/pin", usersHandler.SetPin).Methods(http.MethodPut)
	profile.HandleFunc("/photo", usersHandler.UploadPhoto).Methods(http.MethodPut)
	profile.HandleFunc("/backup", backupHandler.Backup).Methods(http.MethodGet)

	profile.HandleFunc("/collections/{type}", collectionsHandler.Snapshot).Methods(http.MethodGet)
	profile.HandleFunc("/collections/{type}", collectionsHandler.Add).Methods(http.MethodPost)
	profile.HandleFunc("/collections/{type}/library", collectionsHandler.Library).Methods(http.MethodGet)
	profile.HandleFunc("/collections/{type}/wishlist", collectionsHandler.Wishlist).Methods(http.MethodGet)
	profile.HandleFunc("/collections/{type}/wishlist", collectionsHandler.AddWishlist).Methods(http.MethodPost)
	profile.HandleFunc("/collections/{type}/timeline", collectionsHandler.Timeline).Methods(http.MethodGet)
	profile.HandleFunc("/collections/{type}/reorder", collectionsHandler.Reorder).Methods(http.MethodPost)
	profile.HandleFunc("/collections/{type}/export", collectionsHandler.Export).Methods(http.MethodGet)
	profile.HandleFunc("/collections/{type}/import", collectionsHandler.Import).Methods(http.MethodPost)
	profile.HandleFunc("/collections/{type}/live", liveHandler.Serve).Methods(http.MethodGet)
	profile.HandleFunc("/collections/{type}/{itemID}", collectionsHandler.Update).Methods(http.MethodPatch)
	profile.HandleFunc("/collections/{type}/{itemID}", collectionsHandler.Remove).Methods(http.MethodDelete)
}
