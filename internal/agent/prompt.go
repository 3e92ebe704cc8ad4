package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"schedai/internal/models"
)

type promptTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type promptEvent struct {
	Summary string `json:"summary"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func buildPlanPrompt(tasks []models.Task, events []models.CalendarEvent, now time.Time) (string, error) {
	pt := make([]promptTask, 0, len(tasks))
	for _, t := range tasks {
		pt = append(pt, promptTask{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			StartTime:   t.StartTime.Format(time.RFC3339),
			EndTime:     t.EndTime.Format(time.RFC3339),
		})
	}
	pe := make([]promptEvent, 0, len(events))
	for _, e := range events {
		pe = append(pe, promptEvent{Summary: e.Summary, Start: e.Start.DateTime, End: e.End.DateTime})
	}

	taskJSON, err := json.Marshal(pt)
	if err != nil {
		return "", fmt.Errorf("agent: failed to encode tasks: %w", err)
	}
	eventJSON, err := json.Marshal(pe)
	if err != nil {
		return "", fmt.Errorf("agent: failed to encode calendar events: %w", err)
	}

	return fmt.Sprintf(`You are a scheduling assistant. Current time: %s (%s).

Pending tasks (start_time/end_time are the user's preferred slot and duration):
%s

Existing calendar events (these slots are taken):
%s

Build an optimal schedule that places every task exactly once with no overlap with the existing events or with each other.
Respond with ONLY a JSON array, no prose and no markdown. One element per task:
{"taskId": "<task id>", "date": "YYYY-MM-DD", "startTime": "HH:mm", "endTime": "HH:mm"}
`, now.Format(time.RFC3339), now.Location(), taskJSON, eventJSON), nil
}

func buildRepairPrompt(failed models.Placement, cause error) (string, error) {
	stepJSON, err := json.Marshal(failed)
	if err != nil {
		return "", fmt.Errorf("agent: failed to encode placement: %w", err)
	}
	return fmt.Sprintf(`Creating a calendar event for this placement failed:
%s
Error: %v

Propose one alternative placement for the same task that avoids the problem.
Respond with ONLY one JSON object, no prose and no markdown:
{"taskId": %q, "date": "YYYY-MM-DD", "startTime": "HH:mm", "endTime": "HH:mm"}
`, stepJSON, cause, failed.TaskID), nil
}
