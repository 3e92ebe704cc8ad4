// Package agent places a user's pending tasks onto their calendar. A plan is
// requested from the generation service, executed in order, and every failed
// placement gets exactly one generated repair attempt.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"schedai/internal/models"
	"schedai/internal/sanitize"
	"schedai/internal/userlock"
)

// Generator produces raw text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Calendar is the calendar backend the agent writes to.
type Calendar interface {
	ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEvent, error)
	CreateEvent(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error)
}

// TaskSource supplies a user's pending tasks.
type TaskSource interface {
	PendingTasks(ctx context.Context, userID string) ([]models.Task, error)
}

// PlanningError reports a plan that could not be decoded. It aborts the run.
type PlanningError struct {
	Raw string
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("agent: planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// ErrNoTasks is returned by RunForUser when the user has nothing to schedule.
var ErrNoTasks = errors.New("agent: no pending tasks")

// ErrRunInProgress is returned instead of waiting when ctx came from
// WithoutWaiting and another run for the same user holds the lock.
var ErrRunInProgress = userlock.ErrInProgress

// WithoutWaiting marks ctx so that Run fails with ErrRunInProgress rather
// than queueing behind an active run for the same user.
func WithoutWaiting(ctx context.Context) context.Context {
	return userlock.WithoutWaiting(ctx)
}

// Agent runs scheduling passes against one calendar.
type Agent struct {
	gen    Generator
	cal    Calendar
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
	locks  *userlock.Locks
}

// NewAgent creates an Agent. Placements are interpreted in loc.
func NewAgent(logger *slog.Logger, gen Generator, cal Calendar, loc *time.Location) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Agent{
		gen:    gen,
		cal:    cal,
		logger: logger,
		loc:    loc,
		now:    time.Now,
		locks:  userlock.New(),
	}
}

// RunForUser collects the user's pending tasks and the calendar events in
// [now, now+horizon] and runs a scheduling pass over them. The user's lock is
// held from collection to the end of the pass.
func (a *Agent) RunForUser(ctx context.Context, userID string, source TaskSource, horizon time.Duration) (RunReport, error) {
	release, err := a.acquire(ctx, userID)
	if err != nil {
		return RunReport{UserID: userID}, err
	}
	defer release()

	tasks, err := source.PendingTasks(ctx, userID)
	if err != nil {
		return RunReport{}, fmt.Errorf("agent: failed to load pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		return RunReport{UserID: userID}, ErrNoTasks
	}

	now := a.now()
	events, err := a.cal.ListEvents(ctx, now, now.Add(horizon))
	if err != nil {
		return RunReport{}, fmt.Errorf("agent: failed to list calendar events: %w", err)
	}
	return a.run(ctx, userID, tasks, events)
}

// Run plans and executes placements for tasks given the user's existing
// calendar events. Runs for the same user are serialized. Only a planning
// failure or cancellation returns an error; per-placement failures are
// reported in the RunReport.
func (a *Agent) Run(ctx context.Context, userID string, tasks []models.Task, events []models.CalendarEvent) (RunReport, error) {
	release, err := a.acquire(ctx, userID)
	if err != nil {
		return RunReport{UserID: userID}, err
	}
	defer release()
	return a.run(ctx, userID, tasks, events)
}

func (a *Agent) acquire(ctx context.Context, userID string) (func(), error) {
	release, err := a.locks.Acquire(ctx, userID)
	if errors.Is(err, userlock.ErrInProgress) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("agent: waiting for previous run of user %s: %w", userID, err)
	}
	return release, nil
}

func (a *Agent) run(ctx context.Context, userID string, tasks []models.Task, events []models.CalendarEvent) (RunReport, error) {
	log := a.logger.With("user_id", userID)
	report := RunReport{UserID: userID, StartedAt: a.now()}
	log.Info("Scheduling run started", "tasks", len(tasks), "calendar_events", len(events))

	plan, err := a.plan(ctx, tasks, events)
	if err != nil {
		log.Error("Scheduling run aborted during planning", "error", err)
		return report, err
	}
	log.Info("Received placement plan", "placements", len(plan))

	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	planned := make(map[string]bool, len(plan))

	for i, p := range plan {
		if err := ctx.Err(); err != nil {
			log.Warn("Scheduling run cancelled", "completed_placements", i)
			report.FinishedAt = a.now()
			return report, err
		}
		if planned[p.TaskID] {
			log.Warn("Ignoring duplicate placement", "task_id", p.TaskID)
			report.add(PlacementResult{TaskID: p.TaskID, Title: byID[p.TaskID].Title, Status: StatusUnresolved, Planned: p, Reason: "duplicate placement in plan"})
			continue
		}
		planned[p.TaskID] = true
		report.add(a.execute(ctx, log, p, byID))
	}

	for _, t := range tasks {
		if !planned[t.ID] {
			report.add(PlacementResult{TaskID: t.ID, Title: t.Title, Status: StatusUnresolved, Reason: "task not in plan"})
		}
	}

	report.FinishedAt = a.now()
	log.Info("Scheduling run finished", "created", report.Created, "repaired", report.Repaired, "unresolved", report.Unresolved)
	return report, nil
}

func (a *Agent) plan(ctx context.Context, tasks []models.Task, events []models.CalendarEvent) (models.PlacementPlan, error) {
	prompt, err := buildPlanPrompt(tasks, events, a.now().In(a.loc))
	if err != nil {
		return nil, err
	}
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("agent: plan generation failed: %w", err)
	}
	var plan models.PlacementPlan
	if err := json.Unmarshal([]byte(sanitize.JSON(text, sanitize.Array)), &plan); err != nil {
		return nil, &PlanningError{Raw: text, Err: err}
	}
	return plan, nil
}

// execute attempts p, repairing it once on failure.
func (a *Agent) execute(ctx context.Context, log *slog.Logger, p models.Placement, tasks map[string]models.Task) PlacementResult {
	task, ok := tasks[p.TaskID]
	result := PlacementResult{TaskID: p.TaskID, Title: task.Title, Planned: p}
	if !ok {
		result.Status = StatusUnresolved
		result.Reason = "plan references unknown task"
		log.Warn("Skipping placement for unknown task", "task_id", p.TaskID)
		return result
	}

	created, err := a.place(ctx, task, p)
	if err == nil {
		result.Status = StatusCreated
		result.EventID = created.ID
		log.Info("Placed task", "task_id", p.TaskID, "date", p.Date, "start", p.StartTime)
		return result
	}
	log.Warn("Placement failed, requesting repair", "task_id", p.TaskID, "error", err)

	alt, repairErr := a.repair(ctx, p, err)
	if repairErr != nil {
		result.Status = StatusUnresolved
		result.Reason = fmt.Sprintf("placement failed: %v; repair failed: %v", err, repairErr)
		log.Error("Repair could not be generated", "task_id", p.TaskID, "error", repairErr)
		return result
	}
	result.Repaired = &alt

	created, retryErr := a.place(ctx, task, alt)
	if retryErr != nil {
		result.Status = StatusUnresolved
		result.Reason = fmt.Sprintf("placement failed: %v; repaired placement failed: %v", err, retryErr)
		log.Error("Repaired placement failed", "task_id", p.TaskID, "error", retryErr)
		return result
	}
	result.Status = StatusRepaired
	result.EventID = created.ID
	log.Info("Placed task after repair", "task_id", p.TaskID, "date", alt.Date, "start", alt.StartTime)
	return result
}

// place validates p and creates the calendar event for task.
func (a *Agent) place(ctx context.Context, task models.Task, p models.Placement) (models.CalendarEvent, error) {
	start, end, err := p.Bounds(a.loc)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("invalid placement: %w", err)
	}
	if !end.After(start) {
		return models.CalendarEvent{}, fmt.Errorf("invalid placement: end %s is not after start %s", p.EndTime, p.StartTime)
	}

	scheduled := task
	scheduled.StartTime = start
	scheduled.EndTime = end
	return a.cal.CreateEvent(ctx, models.EventFromTask(scheduled, a.loc))
}

func (a *Agent) repair(ctx context.Context, failed models.Placement, cause error) (models.Placement, error) {
	prompt, err := buildRepairPrompt(failed, cause)
	if err != nil {
		return models.Placement{}, err
	}
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return models.Placement{}, fmt.Errorf("repair generation failed: %w", err)
	}
	var alt models.Placement
	if err := json.Unmarshal([]byte(sanitize.JSON(text, sanitize.Object)), &alt); err != nil {
		return models.Placement{}, fmt.Errorf("repair response is not a placement: %w", err)
	}
	alt.TaskID = failed.TaskID
	return alt, nil
}

// Locks returns the per-user locks runs are serialized on, so other writers
// to the same calendar can share them.
func (a *Agent) Locks() *userlock.Locks {
	return a.locks
}
