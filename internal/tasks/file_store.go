package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"schedai/internal/models"
)

// FileStore keeps every task in a single JSON file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	tasks  map[string]models.Task
	now    func() time.Time
}

// NewFileStore loads the tasks kept at path. A missing file starts empty.
func NewFileStore(logger *slog.Logger, path string) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: path, logger: logger, tasks: make(map[string]models.Task), now: time.Now}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("No task file found, starting fresh.", "file", path)
			return s, nil
		}
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	var list []models.Task
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	for _, t := range list {
		s.tasks[t.ID] = t
	}
	return s, nil
}

// ListTasks returns the user's tasks ordered by start time.
func (s *FileStore) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.list(userID, false), nil
}

// PendingTasks returns the user's incomplete tasks ordered by start time.
func (s *FileStore) PendingTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.list(userID, true), nil
}

// CreateTask stores a new task and persists the file.
func (s *FileStore) CreateTask(ctx context.Context, data models.CreateTaskData) (models.Task, error) {
	if err := validateCreate(data); err != nil {
		return models.Task{}, err
	}
	task := models.Task{
		ID:          uuid.NewString(),
		UserID:      data.UserID,
		Title:       data.Title,
		Description: data.Description,
		StartTime:   data.StartTime,
		EndTime:     data.EndTime,
		Category:    data.Category,
		Location:    data.Location,
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	if err := s.save(); err != nil {
		delete(s.tasks, task.ID)
		return models.Task{}, err
	}
	return task, nil
}

// SetCompleted marks a task complete or pending.
func (s *FileStore) SetCompleted(ctx context.Context, id string, completed bool) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	previous := task
	task.IsCompleted = completed
	s.tasks[id] = task
	if err := s.save(); err != nil {
		s.tasks[id] = previous
		return models.Task{}, err
	}
	return task, nil
}

// UpdateTask applies a partial edit to a task.
func (s *FileStore) UpdateTask(ctx context.Context, id string, data models.UpdateTaskData) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	task := data.Apply(previous)
	if err := validateTask(task); err != nil {
		return models.Task{}, err
	}
	s.tasks[id] = task
	if err := s.save(); err != nil {
		s.tasks[id] = previous
		return models.Task{}, err
	}
	return task, nil
}

// DeleteTask removes a task.
func (s *FileStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	if err := s.save(); err != nil {
		s.tasks[id] = task
		return err
	}
	return nil
}

func (s *FileStore) list(userID string, pendingOnly bool) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0)
	for _, t := range s.tasks {
		if t.UserID != userID || (pendingOnly && t.IsCompleted) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// save writes the file atomically. Callers hold s.mu.
func (s *FileStore) save() error {
	list := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace task file: %w", err)
	}
	return nil
}
