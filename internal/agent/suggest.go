package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"schedai/internal/models"
)

// ErrEmptySuggestion is returned when the generator answers with no text.
var ErrEmptySuggestion = errors.New("agent: empty schedule suggestion")

// SuggestForUser asks for a concise free-text daily schedule covering the
// user's pending tasks, shaped by preferences such as "mornings for deep
// work". Nothing is written to the calendar.
func (a *Agent) SuggestForUser(ctx context.Context, userID string, source TaskSource, preferences string) (string, error) {
	tasks, err := source.PendingTasks(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("agent: failed to load pending tasks: %w", err)
	}
	if len(tasks) == 0 {
		return "", ErrNoTasks
	}
	return a.Suggest(ctx, tasks, preferences)
}

// Suggest asks for a concise daily schedule for tasks.
func (a *Agent) Suggest(ctx context.Context, tasks []models.Task, preferences string) (string, error) {
	text, err := a.gen.Generate(ctx, buildSuggestPrompt(tasks, preferences))
	if err != nil {
		return "", fmt.Errorf("agent: suggestion generation failed: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptySuggestion
	}
	a.logger.Info("Generated schedule suggestion", "tasks", len(tasks), "length", len(text))
	return text, nil
}

func buildSuggestPrompt(tasks []models.Task, preferences string) string {
	titles := make([]string, 0, len(tasks))
	for _, t := range tasks {
		titles = append(titles, t.Title)
	}
	preferences = strings.TrimSpace(preferences)
	if preferences == "" {
		preferences = "none stated"
	}

	var b strings.Builder
	b.WriteString("Based on these tasks: ")
	b.WriteString(strings.Join(titles, ", "))
	b.WriteString("\nand the user's preferences: ")
	b.WriteString(preferences)
	b.WriteString("\nwrite a concise, optimal daily schedule as plain text, one line per time block.\n")
	return b.String()
}
