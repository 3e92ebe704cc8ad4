package models

import "time"

// EventTime is a calendar timestamp with its IANA time zone.
type EventTime struct {
	DateTime string `json:"dateTime"` // RFC 3339
	TimeZone string `json:"timeZone"`
}

// CalendarEvent is the provider-independent event payload exchanged with
// calendar backends.
type CalendarEvent struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	Location    string    `json:"location,omitempty"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
}

// NewEventTime formats t in loc.
func NewEventTime(t time.Time, loc *time.Location) EventTime {
	if loc == nil {
		loc = time.UTC
	}
	return EventTime{DateTime: t.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
}

// Time parses DateTime.
func (et EventTime) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, et.DateTime)
}

// EventFromTask builds the calendar payload for a task.
func EventFromTask(t Task, loc *time.Location) CalendarEvent {
	return CalendarEvent{
		Summary:     t.Title,
		Description: t.Description,
		Start:       NewEventTime(t.StartTime, loc),
		End:         NewEventTime(t.EndTime, loc),
		Location:    t.Location,
	}
}
