package scheduler

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskRunning  = errors.New("task is already running")
)

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusError   TaskStatus = "error"
)

// Task is a job run every Interval. Run returns how many things it processed.
type Task struct {
	ID       string
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// TaskState is the externally visible status of a task.
type TaskState struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Interval   string     `json:"interval"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	LastStatus TaskStatus `json:"lastStatus"`
	LastError  string     `json:"lastError,omitempty"`
	Processed  int        `json:"processed"`
}

type taskEntry struct {
	task  Task
	state TaskState
}

// Service manages scheduled task execution
type Service struct {
	checkInterval time.Duration
	now           func() time.Time

	// Runtime state
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Task state tracking (in-memory, not persisted)
	taskMu      sync.RWMutex
	tasks       map[string]*taskEntry
	taskRunning map[string]bool
}

// NewService creates a scheduler that looks for due tasks every checkInterval.
func NewService(checkInterval time.Duration) *Service {
	if checkInterval < time.Second {
		checkInterval = 60 * time.Second
	}
	return &Service{
		checkInterval: checkInterval,
		now:           time.Now,
		tasks:         make(map[string]*taskEntry),
		taskRunning:   make(map[string]bool),
	}
}

// Register adds or replaces a task.
func (s *Service) Register(task Task) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	s.tasks[task.ID] = &taskEntry{
		task: task,
		state: TaskState{
			ID:         task.ID,
			Name:       task.Name,
			Interval:   task.Interval.String(),
			LastStatus: TaskStatusPending,
		},
	}
}

// Start begins the scheduler background loop
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.schedulerLoop()

	log.Println("[scheduler] Scheduler service started")
	return nil
}

// Stop gracefully stops the scheduler
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	// Wait for all tasks to complete with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] Scheduler service stopped gracefully")
	case <-ctx.Done():
		log.Println("[scheduler] Scheduler service stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) schedulerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Run check immediately on start
	s.checkAndRunTasks()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunTasks()
		}
	}
}

// checkAndRunTasks starts every task that is due
func (s *Service) checkAndRunTasks() {
	s.taskMu.RLock()
	due := make([]Task, 0, len(s.tasks))
	for _, entry := range s.tasks {
		if s.shouldRunLocked(entry) {
			due = append(due, entry.task)
		}
	}
	s.taskMu.RUnlock()

	for _, task := range due {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.executeTask(s.ctx, t)
		}(task)
	}
}

func (s *Service) shouldRunLocked(entry *taskEntry) bool {
	if s.taskRunning[entry.task.ID] {
		return false
	}
	// Never run before
	if entry.state.LastRunAt == nil {
		return true
	}
	return s.now().Sub(*entry.state.LastRunAt) >= entry.task.Interval
}

// executeTask runs a task and records its outcome
func (s *Service) executeTask(ctx context.Context, task Task) {
	s.taskMu.Lock()
	if s.taskRunning[task.ID] {
		s.taskMu.Unlock()
		return
	}
	s.taskRunning[task.ID] = true
	s.taskMu.Unlock()

	defer func() {
		s.taskMu.Lock()
		delete(s.taskRunning, task.ID)
		s.taskMu.Unlock()
	}()

	processed, err := task.Run(ctx)
	s.updateTaskStatus(task.ID, err, processed)
}

func (s *Service) updateTaskStatus(taskID string, err error, processed int) {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	entry, ok := s.tasks[taskID]
	if !ok {
		return
	}
	now := s.now().UTC()
	entry.state.LastRunAt = &now
	entry.state.Processed = processed

	if err != nil {
		entry.state.LastStatus = TaskStatusError
		entry.state.LastError = err.Error()
		log.Printf("[scheduler] Task %s failed: %v", taskID, err)
		return
	}
	entry.state.LastStatus = TaskStatusSuccess
	entry.state.LastError = ""
	if processed > 0 {
		log.Printf("[scheduler] Task %s completed, processed %d", taskID, processed)
	}
}

// RunTaskNow triggers immediate execution of a task
func (s *Service) RunTaskNow(taskID string) error {
	s.taskMu.RLock()
	entry, ok := s.tasks[taskID]
	busy := s.taskRunning[taskID]
	s.taskMu.RUnlock()

	if !ok {
		return ErrTaskNotFound
	}
	if busy {
		return ErrTaskRunning
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go func(t Task) {
		defer s.wg.Done()
		s.executeTask(ctx, t)
	}(entry.task)
	return nil
}

// GetTaskStatus returns all tasks sorted by id. Running tasks report "running".
func (s *Service) GetTaskStatus() []TaskState {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()

	states := make([]TaskState, 0, len(s.tasks))
	for id, entry := range s.tasks {
		state := entry.state
		if state.LastRunAt != nil {
			at := *state.LastRunAt
			state.LastRunAt = &at
		}
		if s.taskRunning[id] {
			state.LastStatus = TaskStatusRunning
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// IsTaskRunning checks if a specific task is currently running
func (s *Service) IsTaskRunning(taskID string) bool {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()
	return s.taskRunning[taskID]
}
