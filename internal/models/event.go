package models

import (
	"fmt"
	"time"
)

// Layouts used by the extraction pipeline for dates and times of day.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Priority is the extractor-assigned urgency of an event.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Well-known categories. The set is open: code handling events must accept
// any other label as well.
const (
	CategoryWork     = "Work"
	CategoryStudy    = "Study"
	CategoryPersonal = "Personal"
	CategoryHealth   = "Health"
	CategoryMeeting  = "Meeting"
	CategoryBreak    = "Break"
)

// StructuredEvent is a normalized, validated event produced by the extraction
// pipeline. It is a value type: helpers return modified copies and callers
// replace events rather than editing them in place.
type StructuredEvent struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Date       string   `json:"date"`      // YYYY-MM-DD
	StartTime  string   `json:"startTime"` // HH:mm, 24-hour
	EndTime    string   `json:"endTime"`   // HH:mm, 24-hour
	Location   string   `json:"location,omitempty"`
	Category   string   `json:"category,omitempty"`
	Priority   Priority `json:"priority,omitempty"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source,omitempty"` // natural-language input the event came from
}

// Start returns the start instant of the event in loc.
func (e StructuredEvent) Start(loc *time.Location) (time.Time, error) {
	return ParseDateTime(e.Date, e.StartTime, loc)
}

// End returns the end instant of the event in loc.
func (e StructuredEvent) End(loc *time.Location) (time.Time, error) {
	return ParseDateTime(e.Date, e.EndTime, loc)
}

// WithID returns a copy of the event carrying id.
func (e StructuredEvent) WithID(id string) StructuredEvent {
	e.ID = id
	return e
}

// ParseDateTime combines a YYYY-MM-DD date and an HH:mm time of day into an
// instant in loc.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	return t, nil
}
