package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"schedai/internal/agent"
	"schedai/internal/extract"
	"schedai/internal/models"
)

type recordingCalendar struct {
	created []models.CalendarEvent
}

func (c *recordingCalendar) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	return nil, nil
}

func (c *recordingCalendar) CreateEvent(ctx context.Context, ev models.CalendarEvent) (models.CalendarEvent, error) {
	ev.ID = "demo"
	c.created = append(c.created, ev)
	return ev, nil
}

func TestDemoGeneratorParsesPhrase(t *testing.T) {
	t.Parallel()

	ex := extract.NewExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)), demoGenerator{})
	ev, err := ex.ExtractOne(context.Background(), "rapat tim", extract.NowContext{Date: "2025-08-06", Time: "08:00"})
	if err != nil {
		t.Fatalf("ExtractOne: %v", err)
	}
	if ev.Title != "rapat tim" || ev.Date != "2025-08-06" || ev.StartTime != "09:00" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	res, err := ex.ExtractMany(context.Background(), extract.PlaceholderDocument, "")
	if err != nil || len(res.Events) != 0 {
		t.Fatalf("ExtractMany = %+v, %v", res, err)
	}
}

func TestDemoGeneratorPlansPreferredSlots(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 8, 7, 13, 0, 0, 0, time.UTC)
	cal := &recordingCalendar{}
	a := agent.NewAgent(slog.New(slog.NewTextHandler(io.Discard, nil)), demoGenerator{}, cal, time.UTC)
	report, err := a.Run(context.Background(), "u1", []models.Task{{ID: "t1", Title: "Gym", StartTime: start, EndTime: start.Add(time.Hour)}}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Created != 1 || len(cal.created) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got, _ := cal.created[0].Start.Time(); !got.Equal(start) {
		t.Fatalf("event starts at %v, want %v", got, start)
	}
}
