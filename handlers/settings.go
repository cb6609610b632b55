package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"playlog/config"
)

type SettingsHandler struct {
	Manager *config.Manager
	// OnChange is called with the saved settings so running services can
	// pick up new catalog credentials.
	OnChange func(config.Settings)
}

func NewSettingsHandler(m *config.Manager) *SettingsHandler {
	return &SettingsHandler{Manager: m}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Manager.Load()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	// Start from the stored settings so a partial body keeps the other sections.
	s, err := h.Manager.Load()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.Manager.Save(s); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if h.OnChange != nil {
		h.OnChange(s)
		log.Printf("[settings] reloaded catalog providers")
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
