// Package tasks persists users' task backlogs.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"schedai/internal/models"
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("tasks: not found")

// Store is the task backlog of all users.
type Store interface {
	ListTasks(ctx context.Context, userID string) ([]models.Task, error)
	PendingTasks(ctx context.Context, userID string) ([]models.Task, error)
	CreateTask(ctx context.Context, data models.CreateTaskData) (models.Task, error)
	SetCompleted(ctx context.Context, id string, completed bool) (models.Task, error)
	UpdateTask(ctx context.Context, id string, data models.UpdateTaskData) (models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

func validateCreate(data models.CreateTaskData) error {
	var problems []string
	if strings.TrimSpace(data.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(data.Title) == "" {
		problems = append(problems, "title is required")
	}
	if data.StartTime.IsZero() {
		problems = append(problems, "start_time is required")
	}
	if !data.EndTime.After(data.StartTime) {
		problems = append(problems, "end_time must be after start_time")
	}
	if len(problems) > 0 {
		return fmt.Errorf("tasks: invalid task: %s", strings.Join(problems, ", "))
	}
	return nil
}

// validateTask checks a task after a partial update.
func validateTask(t models.Task) error {
	return validateCreate(models.CreateTaskData{
		UserID:    t.UserID,
		Title:     t.Title,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
	})
}
