package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"schedai/internal/models"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type calendarStub struct {
	mu       sync.Mutex
	failures map[string]int // summary -> remaining failures
	created  []models.CalendarEvent
	listed   []models.CalendarEvent
	listErr  error
	block    chan struct{}
	started  chan struct{}
}

func (c *calendarStub) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	return c.listed, c.listErr
}

func (c *calendarStub) CreateEvent(ctx context.Context, ev models.CalendarEvent) (models.CalendarEvent, error) {
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures[ev.Summary] > 0 {
		c.failures[ev.Summary]--
		return models.CalendarEvent{}, fmt.Errorf("conflict with existing event")
	}
	ev.ID = fmt.Sprintf("evt-%d", len(c.created)+1)
	c.created = append(c.created, ev)
	return ev, nil
}

type taskSourceStub struct {
	tasks []models.Task
	err   error
}

func (s *taskSourceStub) PendingTasks(ctx context.Context, userID string) ([]models.Task, error) {
	return s.tasks, s.err
}

func testTasks() []models.Task {
	base := time.Date(2025, 8, 6, 9, 0, 0, 0, time.UTC)
	return []models.Task{
		{ID: "t1", Title: "Write report", StartTime: base, EndTime: base.Add(time.Hour)},
		{ID: "t2", Title: "Review PR", StartTime: base, EndTime: base.Add(time.Hour)},
		{ID: "t3", Title: "Gym", StartTime: base, EndTime: base.Add(time.Hour)},
	}
}

const threeStepPlan = "```json\n[" +
	`{"taskId":"t1","date":"2025-08-07","startTime":"09:00","endTime":"10:00"},` +
	`{"taskId":"t2","date":"2025-08-07","startTime":"10:00","endTime":"11:00"},` +
	`{"taskId":"t3","date":"2025-08-07","startTime":"17:00","endTime":"18:00"}` +
	"]\n```"

func newTestAgent(gen Generator, cal Calendar) *Agent {
	a := NewAgent(slog.New(slog.NewTextHandler(io.Discard, nil)), gen, cal, time.UTC)
	a.now = func() time.Time { return time.Date(2025, 8, 6, 8, 0, 0, 0, time.UTC) }
	return a
}

func TestRunAllPlacementsSucceed(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{threeStepPlan}}
	cal := &calendarStub{}
	report, err := newTestAgent(gen, cal).Run(context.Background(), "u1", testTasks(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Created != 3 || report.Repaired != 0 || report.Unresolved != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if len(cal.created) != 3 {
		t.Fatalf("expected 3 calendar events, got %d", len(cal.created))
	}
	first := cal.created[0]
	if first.Summary != "Write report" || first.Start.DateTime != "2025-08-07T09:00:00Z" || first.End.DateTime != "2025-08-07T10:00:00Z" || first.Start.TimeZone != "UTC" {
		t.Fatalf("unexpected payload: %+v", first)
	}
	for i, want := range []string{"Write report", "Review PR", "Gym"} {
		if cal.created[i].Summary != want {
			t.Fatalf("placement order broken at %d: %s", i, cal.created[i].Summary)
		}
	}
}

func TestRunRepairsFailedPlacement(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{
		threeStepPlan,
		`Sure: {"taskId":"ignored","date":"2025-08-07","startTime":"14:00","endTime":"15:00"}`,
	}}
	cal := &calendarStub{failures: map[string]int{"Review PR": 1}}
	report, err := newTestAgent(gen, cal).Run(context.Background(), "u1", testTasks(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	statuses := []Status{report.Results[0].Status, report.Results[1].Status, report.Results[2].Status}
	if statuses[0] != StatusCreated || statuses[1] != StatusRepaired || statuses[2] != StatusCreated {
		t.Fatalf("unexpected statuses: %v", statuses)
	}
	repaired := report.Results[1].Repaired
	if repaired == nil || repaired.TaskID != "t2" || repaired.StartTime != "14:00" {
		t.Fatalf("unexpected repaired placement: %+v", repaired)
	}
	if cal.created[1].Start.DateTime != "2025-08-07T14:00:00Z" {
		t.Fatalf("repaired event not created at new slot: %+v", cal.created[1])
	}
	if len(gen.prompts) != 2 || !strings.Contains(gen.prompts[1], "conflict with existing event") {
		t.Fatalf("repair prompt should carry the failure reason: %v", gen.prompts)
	}
}

func TestRunRecordsUnresolvedAfterSecondFailure(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{
		threeStepPlan,
		`{"date":"2025-08-07","startTime":"14:00","endTime":"15:00"}`,
	}}
	cal := &calendarStub{failures: map[string]int{"Review PR": 5}}
	report, err := newTestAgent(gen, cal).Run(context.Background(), "u1", testTasks(), nil)
	if err != nil {
		t.Fatalf("Run must not fail because of one placement: %v", err)
	}
	if report.Results[0].Status != StatusCreated || report.Results[1].Status != StatusUnresolved || report.Results[2].Status != StatusCreated {
		t.Fatalf("unexpected results: %+v", report.Results)
	}
	if report.Results[1].Reason == "" {
		t.Fatalf("expected a reason for the unresolved task")
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("expected exactly one repair call, got %d generator calls", len(gen.prompts))
	}
	if cal.failures["Review PR"] != 3 {
		t.Fatalf("expected exactly two attempts for the failing task, remaining failures %d", cal.failures["Review PR"])
	}
}

func TestRunUnparsableRepairIsUnresolved(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{threeStepPlan, "I cannot find another slot."}}
	cal := &calendarStub{failures: map[string]int{"Write report": 1}}
	report, err := newTestAgent(gen, cal).Run(context.Background(), "u1", testTasks(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Results[0].Status != StatusUnresolved || report.Created != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunInvalidPlacementGoesThroughRepair(t *testing.T) {
	t.Parallel()

	plan := `[{"taskId":"t1","date":"2025-08-07","startTime":"11:00","endTime":"10:00"}]`
	gen := &scriptedGenerator{replies: []string{plan, `{"date":"2025-08-07","startTime":"11:00","endTime":"12:00"}`}}
	cal := &calendarStub{}
	report, err := newTestAgent(gen, cal).Run(context.Background(), "u1", testTasks()[:1], nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Results[0].Status != StatusRepaired || len(cal.created) != 1 {
		t.Fatalf("expected local validation failure to be repaired: %+v", report)
	}
}

func TestRunPlanningError(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"I am unable to schedule that."}}
	cal := &calendarStub{}
	_, err := newTestAgent(gen, cal).Run(context.Background(), "u1", testTasks(), nil)
	var pErr *PlanningError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected PlanningError, got %T %v", err, err)
	}
	if len(cal.created) != 0 {
		t.Fatalf("no events may be created when planning fails")
	}
}

func TestRunGenerationFailureAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream down")
	_, err := newTestAgent(&scriptedGenerator{err: boom}, &calendarStub{}).Run(context.Background(), "u1", testTasks(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}
}

func TestRunReportsUnknownAndMissingTasks(t *testing.T) {
	t.Parallel()

	plan := `[
		{"taskId":"t1","date":"2025-08-07","startTime":"09:00","endTime":"10:00"},
		{"taskId":"ghost","date":"2025-08-07","startTime":"10:00","endTime":"11:00"},
		{"taskId":"t1","date":"2025-08-07","startTime":"12:00","endTime":"13:00"}
	]`
	cal := &calendarStub{}
	report, err := newTestAgent(&scriptedGenerator{replies: []string{plan}}, cal).Run(context.Background(), "u1", testTasks(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 5 {
		t.Fatalf("expected 5 results, got %+v", report.Results)
	}
	if report.Created != 1 || report.Unresolved != 4 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.Results[3].TaskID != "t2" || report.Results[3].Reason != "task not in plan" {
		t.Fatalf("expected t2 reported as missing from plan: %+v", report.Results[3])
	}
	if len(cal.created) != 1 {
		t.Fatalf("duplicate placement must not create a second event")
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cal := &calendarStub{started: make(chan struct{}, 3), block: make(chan struct{})}
	a := newTestAgent(&scriptedGenerator{replies: []string{threeStepPlan}}, cal)

	done := make(chan error, 1)
	var report RunReport
	go func() {
		var err error
		report, err = a.Run(ctx, "u1", testTasks(), nil)
		done <- err
	}()

	<-cal.started
	cancel()
	close(cal.block)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Results) != 1 || report.Results[0].Status != StatusCreated {
		t.Fatalf("expected the in-flight placement to be kept: %+v", report.Results)
	}
}

func TestRunSerializesPerUser(t *testing.T) {
	t.Parallel()

	cal := &calendarStub{started: make(chan struct{}, 6), block: make(chan struct{})}
	gen := &scriptedGenerator{replies: []string{threeStepPlan, threeStepPlan}}
	a := newTestAgent(gen, cal)

	first := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background(), "u1", testTasks(), nil)
		first <- err
	}()
	<-cal.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := a.Run(ctx, "u1", testTasks(), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second run for the same user should wait, got %v", err)
	}
	if _, err := a.Run(WithoutWaiting(context.Background()), "u1", testTasks(), nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress without waiting, got %v", err)
	}
	if _, err := a.Run(WithoutWaiting(context.Background()), "u2", nil, nil); errors.Is(err, ErrRunInProgress) {
		t.Fatalf("other users must not be blocked: %v", err)
	}

	close(cal.block)
	if err := <-first; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestRunForUserCollects(t *testing.T) {
	t.Parallel()

	busy := models.CalendarEvent{Summary: "Dentist", Start: models.EventTime{DateTime: "2025-08-07T09:00:00Z"}, End: models.EventTime{DateTime: "2025-08-07T10:00:00Z"}}
	cal := &calendarStub{listed: []models.CalendarEvent{busy}}
	gen := &scriptedGenerator{replies: []string{threeStepPlan}}
	report, err := newTestAgent(gen, cal).RunForUser(context.Background(), "u1", &taskSourceStub{tasks: testTasks()}, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if report.Created != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !strings.Contains(gen.prompts[0], "Dentist") || !strings.Contains(gen.prompts[0], `"id":"t1"`) {
		t.Fatalf("plan prompt must carry tasks and calendar events: %s", gen.prompts[0])
	}

	_, err = newTestAgent(gen, cal).RunForUser(context.Background(), "u1", &taskSourceStub{}, time.Hour)
	if !errors.Is(err, ErrNoTasks) {
		t.Fatalf("expected ErrNoTasks, got %v", err)
	}
}
