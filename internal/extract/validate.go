package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"schedai/internal/models"
)

const (
	msgRequired = "required"

	// DefaultDuration is applied when a generated event has no usable end time.
	DefaultDuration = 60 * time.Minute

	lastMinute = "23:59"
)

// rawEvent is the loosely typed shape of a generated event. Every field is
// optional until Validate has run.
type rawEvent struct {
	ID         json.RawMessage `json:"id"`
	Title      string          `json:"title"`
	Date       string          `json:"date"`
	StartTime  string          `json:"startTime"`
	EndTime    string          `json:"endTime"`
	Location   string          `json:"location"`
	Category   string          `json:"category"`
	Priority   string          `json:"priority"`
	Confidence *score          `json:"confidence"`
}

// score is a confidence value that may arrive as a JSON number or as a
// quoted number. A quoted value that is not a number decodes to NaN.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		f, err := n.Float64()
		if err != nil {
			return err
		}
		*s = score(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("confidence must be a number, got %s", b)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		f = math.NaN()
	}
	*s = score(f)
	return nil
}

// Validate turns a decoded event into a StructuredEvent or reports what is
// wrong with it. An end time that is missing or not after the start time is
// replaced by start plus DefaultDuration, clamped to the end of the same day.
func Validate(raw rawEvent) (models.StructuredEvent, *ValidationError) {
	verr := &ValidationError{}

	title := strings.TrimSpace(raw.Title)
	date := strings.TrimSpace(raw.Date)
	start := strings.TrimSpace(raw.StartTime)
	end := strings.TrimSpace(raw.EndTime)

	if title == "" {
		verr.add("title", msgRequired)
	}
	if date == "" {
		verr.add("date", msgRequired)
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		verr.add("date", "must be YYYY-MM-DD")
	}
	if start == "" {
		verr.add("startTime", msgRequired)
	} else if s, ok := normalizeClock(start); !ok {
		verr.add("startTime", "must be HH:mm")
	} else {
		start = s
	}
	if end != "" {
		if e, ok := normalizeClock(end); ok {
			end = e
		} else {
			verr.add("endTime", "must be HH:mm")
		}
	}
	if verr.HasErrors() {
		return models.StructuredEvent{}, verr
	}

	startAt, _ := models.ParseDateTime(date, start, time.UTC)
	if end != "" {
		endAt, _ := models.ParseDateTime(date, end, time.UTC)
		if !endAt.After(startAt) {
			end = ""
		}
	}
	if end == "" {
		fallback, ok := defaultEnd(startAt)
		if !ok {
			verr.add("endTime", "no room for an end time after startTime on the same day")
			return models.StructuredEvent{}, verr
		}
		end = fallback
	}

	return models.StructuredEvent{
		ID:         idString(raw.ID),
		Title:      title,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Location:   strings.TrimSpace(raw.Location),
		Category:   category(raw.Category),
		Priority:   priority(raw.Priority),
		Confidence: confidence(raw.Confidence),
	}, nil
}

// defaultEnd returns start+DefaultDuration as HH:mm on the same date.
func defaultEnd(start time.Time) (string, bool) {
	end := start.Add(DefaultDuration)
	if end.YearDay() != start.YearDay() || end.Year() != start.Year() {
		if start.Format(models.TimeLayout) >= lastMinute {
			return "", false
		}
		return lastMinute, true
	}
	return end.Format(models.TimeLayout), true
}

// normalizeClock accepts H:mm, HH:mm and HH:mm:ss and returns HH:mm.
func normalizeClock(v string) (string, bool) {
	for _, layout := range []string{"15:04", "15:04:05", "3:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(models.TimeLayout), true
		}
	}
	return "", false
}

func category(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return models.CategoryPersonal
	}
	return v
}

func priority(v string) models.Priority {
	switch p := models.Priority(strings.ToLower(strings.TrimSpace(v))); p {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		return p
	default:
		return models.PriorityMedium
	}
}

func confidence(v *score) float64 {
	if v == nil || math.IsNaN(float64(*v)) {
		return 0
	}
	return math.Max(0, math.Min(1, float64(*v)))
}

func idString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
