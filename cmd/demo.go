package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// demoGenerator answers prompts offline with a few fixed rules, so the
// commands can be tried without an API key.
type demoGenerator struct{}

type demoTask struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type demoPlacement struct {
	TaskID    string `json:"taskId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

func (demoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Pending tasks"):
		return demoPlan(prompt)
	case strings.Contains(prompt, "Propose one alternative placement"):
		return "{}", nil
	case strings.Contains(prompt, "Document:"):
		return "[]", nil
	}

	date := time.Now().Format("2006-01-02")
	if v := lineValue(prompt, "Current date: "); v != "" {
		date = v
	}
	title := strings.Trim(lineValue(prompt, "Request: "), `"`)
	if title == "" {
		title = "Untitled"
	}
	out, err := json.Marshal(map[string]any{
		"title":      title,
		"date":       date,
		"startTime":  "09:00",
		"endTime":    "10:00",
		"category":   "Personal",
		"priority":   "medium",
		"confidence": 0.5,
	})
	return string(out), err
}

// demoPlan places every task at its preferred slot.
func demoPlan(prompt string) (string, error) {
	var tasks []demoTask
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, `[{"id"`) {
			if err := json.Unmarshal([]byte(line), &tasks); err != nil {
				return "", fmt.Errorf("demo: cannot read tasks: %w", err)
			}
			break
		}
	}
	plan := make([]demoPlacement, 0, len(tasks))
	for _, t := range tasks {
		start, err1 := time.Parse(time.RFC3339, t.StartTime)
		end, err2 := time.Parse(time.RFC3339, t.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		plan = append(plan, demoPlacement{
			TaskID:    t.ID,
			Date:      start.Format("2006-01-02"),
			StartTime: start.Format("15:04"),
			EndTime:   end.Format("15:04"),
		})
	}
	out, err := json.Marshal(plan)
	return string(out), err
}

func lineValue(text, prefix string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}
