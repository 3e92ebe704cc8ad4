package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"schedai/internal/models"
	"schedai/internal/userlock"
)

// SyncState keeps track of which tasks have been pushed to the calendar.
// The key is the task ID, and the value is the calendar event ID.
type SyncState map[string]string

// Calendar is the calendar backend tasks are pushed to.
type Calendar interface {
	ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEvent, error)
	CreateEvent(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error)
}

// TaskLister supplies a user's tasks.
type TaskLister interface {
	ListTasks(ctx context.Context, userID string) ([]models.Task, error)
}

// Result summarizes one sync cycle.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Syncer pushes a user's upcoming tasks into their calendar.
type Syncer struct {
	logger          *slog.Logger
	tasks           TaskLister
	calendar        Calendar
	stateFile       string
	dryRun          bool
	locks           *userlock.Locks

	mu    sync.Mutex // guards state and the state file
	state SyncState
	primaryTimeZone *time.Location
	now             func() time.Time
}

// NewSyncer creates a new Syncer backed by the state kept in stateFile.
func NewSyncer(logger *slog.Logger, tasks TaskLister, cal Calendar, stateFile string, dryRun bool, tz *time.Location) (*Syncer, error) {
	if tz == nil {
		tz = time.UTC
	}
	state, err := loadState(stateFile)
	if err != nil {
		// If the file doesn't exist, we can start with an empty state.
		if os.IsNotExist(err) {
			logger.Info("No sync state file found, starting fresh.", "file", stateFile)
			state = make(SyncState)
		} else {
			return nil, fmt.Errorf("failed to load sync state: %w", err)
		}
	}

	return &Syncer{
		logger:          logger,
		tasks:           tasks,
		calendar:        cal,
		stateFile:       stateFile,
		state:           state,
		dryRun:          dryRun,
		locks:           userlock.New(),
		primaryTimeZone: tz,
		now:             time.Now,
	}, nil
}

// ShareLocks makes Sync take the same per-user locks as another writer to
// the calendar, such as the scheduling agent.
func (s *Syncer) ShareLocks(l *userlock.Locks) {
	if l != nil {
		s.locks = l
	}
}

// Sync pushes the user's incomplete tasks starting within the next days into
// the calendar. Syncs for the same user are serialized; with a ctx from
// userlock.WithoutWaiting a busy user yields userlock.ErrInProgress.
func (s *Syncer) Sync(ctx context.Context, userID string, days int) (Result, error) {
	release, err := s.locks.Acquire(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	s.logger.Info("Starting sync cycle.", "user_id", userID, "days", days)

	from := s.now()
	until := from.Add(time.Duration(days) * 24 * time.Hour)

	tasks, err := s.tasks.ListTasks(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list tasks: %w", err)
	}
	existing, err := s.calendar.ListEvents(ctx, from, until)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list calendar events: %w", err)
	}
	index := indexEvents(existing)

	var res Result
	for _, task := range tasks {
		if task.IsCompleted || task.StartTime.Before(from) || !task.StartTime.Before(until) {
			continue
		}
		created, err := s.syncTask(ctx, task, index)
		if err != nil {
			// Continue with the next task even if one fails.
			s.logger.Error("Failed to sync task", "title", task.Title, "error", err)
			res.Failed++
			continue
		}
		if created {
			res.Created++
		} else {
			res.Skipped++
		}
	}

	if !s.dryRun {
		s.mu.Lock()
		err := s.saveState()
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("Failed to save sync state", "error", err)
		}
	}

	s.logger.Info("Sync cycle finished.", "created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// syncTask handles the logic for syncing a single task.
func (s *Syncer) syncTask(ctx context.Context, task models.Task, index map[string]string) (bool, error) {
	if _, exists := s.mapped(task.ID); exists {
		s.logger.Debug("Task already synced, skipping.", "title", task.Title, "id", task.ID)
		return false, nil
	}
	if id, exists := index[eventKey(task.Title, task.StartTime)]; exists {
		s.logger.Debug("Task already in calendar, recording.", "title", task.Title, "event_id", id)
		s.record(task.ID, id)
		return false, nil
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would create calendar event", "title", task.Title, "startTime", task.StartTime.In(s.primaryTimeZone))
		return true, nil
	}

	s.logger.Info("New task found, creating calendar event.", "title", task.Title)
	created, err := s.calendar.CreateEvent(ctx, models.EventFromTask(task, s.primaryTimeZone))
	if err != nil {
		return false, fmt.Errorf("failed to create calendar event: %w", err)
	}

	s.record(task.ID, created.ID)
	return true, nil
}

func (s *Syncer) mapped(taskID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.state[taskID]
	return id, ok
}

func (s *Syncer) record(taskID, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[taskID] = eventID
}

// indexEvents keys existing events by summary and start instant.
func indexEvents(events []models.CalendarEvent) map[string]string {
	index := make(map[string]string, len(events))
	for _, ev := range events {
		start, err := ev.Start.Time()
		if err != nil {
			continue
		}
		index[eventKey(ev.Summary, start)] = ev.ID
	}
	return index
}

func eventKey(summary string, start time.Time) string {
	return summary + "|" + start.UTC().Format(time.RFC3339)
}

// loadState loads the sync state from the JSON file.
func loadState(path string) (SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state == nil {
		state = make(SyncState)
	}
	return state, nil
}

// saveState saves the current sync state to the JSON file. s.mu must be held.
func (s *Syncer) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	return os.WriteFile(s.stateFile, data, 0644)
}
