package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"schedai/internal/gemini"
	"schedai/internal/models"
)

func failingGenerator(err error) *gemini.Mock {
	m := gemini.NewMock()
	m.FailNext(err)
	return m
}

func newTestExtractor(gen Generator) *Extractor {
	return NewExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)), gen)
}

func TestExtractOneResolvesBesokPagi(t *testing.T) {
	t.Parallel()

	gen := gemini.NewMock("```json\n{\"title\":\"Meeting dengan klien\",\"date\":\"2025-08-07\",\"startTime\":\"09:00\",\"category\":\"Meeting\",\"priority\":\"high\",\"confidence\":0.92}\n```")
	ex := newTestExtractor(gen)

	phrase := "besok pagi meeting dengan klien jam 9"
	ev, err := ex.ExtractOne(context.Background(), phrase, NowContext{Date: "2025-08-06", Time: "14:00"})
	if err != nil {
		t.Fatalf("ExtractOne: %v", err)
	}
	if ev.Date != "2025-08-07" || ev.StartTime != "09:00" {
		t.Fatalf("unexpected date/time: %s %s", ev.Date, ev.StartTime)
	}
	if ev.EndTime != "10:00" {
		t.Fatalf("expected default end 10:00, got %s", ev.EndTime)
	}
	if ev.ID == "" {
		t.Fatalf("expected generated id")
	}
	if ev.Source != phrase {
		t.Fatalf("expected provenance %q, got %q", phrase, ev.Source)
	}
	if ev.Priority != models.PriorityHigh || ev.Category != models.CategoryMeeting {
		t.Fatalf("unexpected labels: %+v", ev)
	}

	prompt := gen.Prompts()[0]
	for _, want := range []string{phrase, "Current date: 2025-08-06", `"besok pagi" means date 2025-08-07, startTime 09:00`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestExtractOneDefaultsEndTimeToOneHour(t *testing.T) {
	t.Parallel()

	cases := []struct {
		start string
		want  string
	}{
		{"09:00", "10:00"},
		{"13:45", "14:45"},
		{"7:30", "08:30"},
		{"22:59", "23:59"},
		{"23:30", "23:59"},
	}
	for _, tc := range cases {
		gen := gemini.NewMock(`{"title":"Gym","date":"2025-03-01","startTime":"` + tc.start + `"}`)
		ev, err := newTestExtractor(gen).ExtractOne(context.Background(), "gym", NowContext{Date: "2025-03-01", Time: "08:00"})
		if err != nil {
			t.Fatalf("start %s: %v", tc.start, err)
		}
		if ev.EndTime != tc.want {
			t.Errorf("start %s: end = %s, want %s", tc.start, ev.EndTime, tc.want)
		}
		start, _ := ev.Start(nil)
		end, _ := ev.End(nil)
		if !end.After(start) {
			t.Errorf("start %s: end %s not after start", tc.start, ev.EndTime)
		}
	}
}

func TestExtractOneCorrectsReversedEndTime(t *testing.T) {
	t.Parallel()

	for _, end := range []string{"10:00", "09:00"} {
		gen := gemini.NewMock(`{"title":"Call","date":"2025-03-01","startTime":"10:00","endTime":"` + end + `"}`)
		ev, err := newTestExtractor(gen).ExtractOne(context.Background(), "call", NowContext{Date: "2025-03-01"})
		if err != nil {
			t.Fatalf("ExtractOne: %v", err)
		}
		if ev.EndTime != "11:00" {
			t.Fatalf("end %s: expected fallback 11:00, got %s", end, ev.EndTime)
		}
	}
}

func TestExtractOneIncomplete(t *testing.T) {
	t.Parallel()

	gen := gemini.NewMock(`{"title":"","date":"2025-03-01"}`)
	_, err := newTestExtractor(gen).ExtractOne(context.Background(), "something", NowContext{Date: "2025-03-01"})
	var inc *IncompleteExtractionError
	if !errors.As(err, &inc) {
		t.Fatalf("expected IncompleteExtractionError, got %T %v", err, err)
	}
	if strings.Join(inc.Missing, ",") != "startTime,title" {
		t.Fatalf("unexpected missing fields: %v", inc.Missing)
	}
}

func TestExtractOneMalformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"I could not find an event.",
		`{"title":"X","date":"07/08/2025","startTime":"09:00"}`,
		`{"title":"X","date":"2025-08-07","startTime":"9am"}`,
		`{"title":"X","date":"2025-08-07","startTime":"23:59"}`,
	}
	for _, reply := range cases {
		_, err := newTestExtractor(gemini.NewMock(reply)).ExtractOne(context.Background(), "x", NowContext{Date: "2025-08-06"})
		var mal *MalformedResponseError
		if !errors.As(err, &mal) {
			t.Errorf("reply %q: expected MalformedResponseError, got %T %v", reply, err, err)
		}
	}
}

func TestExtractOnePropagatesGenerationError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := newTestExtractor(failingGenerator(boom)).ExtractOne(context.Background(), "x", NowContext{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}
}

func TestExtractOneEmptyPhrase(t *testing.T) {
	t.Parallel()

	gen := gemini.NewMock()
	if _, err := newTestExtractor(gen).ExtractOne(context.Background(), "  ", NowContext{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if len(gen.Prompts()) != 0 {
		t.Fatalf("generator should not be called for empty input")
	}
}

func TestExtractManyDropsInvalidElements(t *testing.T) {
	t.Parallel()

	reply := `Here are the events:
[
 {"title":"A","date":"2025-01-01","startTime":"10:00","endTime":"11:00","location":"Lab 301","category":"Study","priority":"low","confidence":0.9},
 {"date":"2025-01-02","startTime":"10:00","endTime":"11:00","confidence":0.8},
 {"id":"x7","title":"C","date":"2025-01-03","startTime":"08:00","endTime":"09:30","category":"RPLK - Practical","priority":"medium","confidence":0.7},
 {"title":"","date":"2025-01-04","startTime":"10:00","endTime":"11:00","confidence":0.5},
 {"title":"E","date":"2025-01-05","startTime":"13:00","endTime":"15:00","category":"Study","priority":"high","confidence":0.95}
]`
	gen := gemini.NewMock(reply)
	res, err := newTestExtractor(gen).ExtractMany(context.Background(), "doc text", "only class III-RPLK sessions")
	if err != nil {
		t.Fatalf("ExtractMany: %v", err)
	}
	if len(res.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(res.Events))
	}
	if len(res.Rejected) != 2 || res.Rejected[0].Index != 1 || res.Rejected[1].Index != 3 {
		t.Fatalf("unexpected rejections: %+v", res.Rejected)
	}
	if res.Rejected[0].Fields["title"] != "required" {
		t.Fatalf("expected title reason, got %v", res.Rejected[0].Fields)
	}

	first := res.Events[0]
	if first.ID != "1" || first.Title != "A" || first.Location != "Lab 301" || first.Confidence != 0.9 || first.Priority != models.PriorityLow {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if res.Events[1].ID != "x7" || res.Events[1].Category != "RPLK - Practical" || res.Events[1].EndTime != "09:30" {
		t.Fatalf("unexpected second event: %+v", res.Events[1])
	}
	if res.Events[2].ID != "5" || res.Events[2].Title != "E" {
		t.Fatalf("unexpected third event: %+v", res.Events[2])
	}
	if !strings.Contains(gen.Prompts()[0], "only class III-RPLK sessions") || !strings.Contains(gen.Prompts()[0], "doc text") {
		t.Fatalf("prompt missing document or instruction")
	}
}

func TestExtractManyRequiresEndTime(t *testing.T) {
	t.Parallel()

	gen := gemini.NewMock(`[{"title":"A","date":"2025-01-01","startTime":"10:00"}]`)
	res, err := newTestExtractor(gen).ExtractMany(context.Background(), "doc", "")
	if err != nil {
		t.Fatalf("ExtractMany: %v", err)
	}
	if len(res.Events) != 0 || len(res.Rejected) != 1 || res.Rejected[0].Fields["endTime"] != "required" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExtractManyReportsDecodeErrors(t *testing.T) {
	t.Parallel()

	gen := gemini.NewMock(`[
		{"title":"A","date":"2025-01-01","startTime":"10:00","endTime":"11:00","confidence":"0.6"},
		{"title":["B"],"date":"2025-01-01","startTime":"12:00","endTime":"13:00"},
		"just text"
	]`)
	res, err := newTestExtractor(gen).ExtractMany(context.Background(), "doc", "")
	if err != nil {
		t.Fatalf("ExtractMany: %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].Confidence != 0.6 {
		t.Fatalf("unexpected events: %+v", res.Events)
	}
	if len(res.Rejected) != 2 {
		t.Fatalf("unexpected rejections: %+v", res.Rejected)
	}
	if reason := res.Rejected[0].Fields["element"]; !strings.Contains(reason, "title") {
		t.Errorf("reason %q does not name the bad field", reason)
	}
	if reason := res.Rejected[1].Fields["element"]; !strings.Contains(reason, "string") {
		t.Errorf("reason %q does not describe the decode error", reason)
	}
}

func TestExtractManyUniqueIDs(t *testing.T) {
	t.Parallel()

	gen := gemini.NewMock(`[
		{"id":"2","title":"A","date":"2025-01-01","startTime":"10:00","endTime":"11:00"},
		{"title":"B","date":"2025-01-01","startTime":"12:00","endTime":"13:00"},
		{"id":"2","title":"C","date":"2025-01-01","startTime":"14:00","endTime":"15:00"}
	]`)
	res, err := newTestExtractor(gen).ExtractMany(context.Background(), "doc", "")
	if err != nil {
		t.Fatalf("ExtractMany: %v", err)
	}
	seen := map[string]bool{}
	for _, ev := range res.Events {
		if seen[ev.ID] {
			t.Fatalf("duplicate id %q in %+v", ev.ID, res.Events)
		}
		seen[ev.ID] = true
	}
	if res.Events[2].ID != "3" {
		t.Fatalf("expected duplicate id to fall back to position, got %q", res.Events[2].ID)
	}
}

func TestExtractManyEmptyAndMalformed(t *testing.T) {
	t.Parallel()

	res, err := newTestExtractor(gemini.NewMock("```json\n[]\n```")).ExtractMany(context.Background(), "doc", "")
	if err != nil || len(res.Events) != 0 {
		t.Fatalf("expected empty success, got %+v %v", res, err)
	}

	_, err = newTestExtractor(gemini.NewMock("no events, sorry")).ExtractMany(context.Background(), "doc", "")
	var mal *MalformedResponseError
	if !errors.As(err, &mal) {
		t.Fatalf("expected MalformedResponseError, got %T %v", err, err)
	}
}

func TestPrepareDocument(t *testing.T) {
	t.Parallel()

	text, placeholder := PrepareDocument("  short  ", 0)
	if !placeholder || text != PlaceholderDocument {
		t.Fatalf("expected placeholder for short text")
	}

	long := strings.Repeat("a", DefaultMinDocumentLength)
	if text, placeholder := PrepareDocument(long, 0); placeholder || text != long {
		t.Fatalf("expected text at threshold to pass through")
	}
	if _, placeholder := PrepareDocument(long[:DefaultMinDocumentLength-1], 0); !placeholder {
		t.Fatalf("expected placeholder just below threshold")
	}
	if _, placeholder := PrepareDocument("abcd", 3); placeholder {
		t.Fatalf("expected custom threshold to apply")
	}
}
