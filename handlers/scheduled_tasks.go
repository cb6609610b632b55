package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"playlog/services/scheduler"
)

type taskRunner interface {
	GetTaskStatus() []scheduler.TaskState
	RunTaskNow(taskID string) error
}

var _ taskRunner = (*scheduler.Service)(nil)

// ScheduledTasksHandler handles scheduled tasks API endpoints
type ScheduledTasksHandler struct {
	schedulerService taskRunner
}

// NewScheduledTasksHandler creates a new scheduled tasks handler
func NewScheduledTasksHandler(schedulerService taskRunner) *ScheduledTasksHandler {
	return &ScheduledTasksHandler{schedulerService: schedulerService}
}

// ListTasks returns all scheduled tasks with current status
// GET /api/tasks
func (h *ScheduledTasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tasks": h.schedulerService.GetTaskStatus(),
	})
}

// RunTaskNow triggers immediate execution of a task
// POST /api/tasks/{taskID}/run
func (h *ScheduledTasksHandler) RunTaskNow(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskID"]
	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Task ID is required"})
		return
	}

	if err := h.schedulerService.RunTaskNow(taskID); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, scheduler.ErrTaskNotFound):
			status = http.StatusNotFound
		case errors.Is(err, scheduler.ErrTaskRunning):
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Task execution started",
	})
}

func (h *ScheduledTasksHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
