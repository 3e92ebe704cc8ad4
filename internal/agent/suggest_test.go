package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSuggestForUserReturnsTrimmedText(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"\n08:00 Write report\n10:00 Review PR\n"}}
	text, err := newTestAgent(gen, &calendarStub{}).SuggestForUser(context.Background(), "u1", &taskSourceStub{tasks: testTasks()}, "mornings for deep work")
	if err != nil {
		t.Fatalf("SuggestForUser: %v", err)
	}
	if text != "08:00 Write report\n10:00 Review PR" {
		t.Fatalf("unexpected suggestion: %q", text)
	}
	prompt := gen.prompts[0]
	for _, want := range []string{"Write report, Review PR, Gym", "mornings for deep work"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q: %s", want, prompt)
		}
	}
}

func TestSuggestForUserErrors(t *testing.T) {
	t.Parallel()

	if _, err := newTestAgent(&scriptedGenerator{}, &calendarStub{}).SuggestForUser(context.Background(), "u1", &taskSourceStub{}, ""); !errors.Is(err, ErrNoTasks) {
		t.Fatalf("expected ErrNoTasks, got %v", err)
	}

	blank := &scriptedGenerator{replies: []string{"   "}}
	if _, err := newTestAgent(blank, &calendarStub{}).Suggest(context.Background(), testTasks(), ""); !errors.Is(err, ErrEmptySuggestion) {
		t.Fatalf("expected ErrEmptySuggestion, got %v", err)
	}

	boom := errors.New("boom")
	if _, err := newTestAgent(&scriptedGenerator{err: boom}, &calendarStub{}).Suggest(context.Background(), testTasks(), ""); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}
}
