package models

import "time"

// Task is a user's backlog item as kept by the task store.
type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Category    string    `json:"category,omitempty"`
	Location    string    `json:"location,omitempty"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateTaskData holds the caller-supplied fields of a new task.
type CreateTaskData struct {
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Category    string    `json:"category,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// TaskFromEvent converts an extracted event into task fields. The provenance
// of the event is kept in the description.
func TaskFromEvent(userID string, e StructuredEvent, loc *time.Location) (CreateTaskData, error) {
	start, err := e.Start(loc)
	if err != nil {
		return CreateTaskData{}, err
	}
	end, err := e.End(loc)
	if err != nil {
		return CreateTaskData{}, err
	}
	desc := ""
	if e.Source != "" {
		desc = "Parsed from: \"" + e.Source + "\""
	}
	if e.Location != "" {
		if desc != "" {
			desc += " "
		}
		desc += "at " + e.Location
	}
	return CreateTaskData{
		UserID:      userID,
		Title:       e.Title,
		Description: desc,
		StartTime:   start,
		EndTime:     end,
		Category:    e.Category,
		Location:    e.Location,
	}, nil
}

// UpdateTaskData is a partial task edit. Nil fields are left unchanged.
type UpdateTaskData struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Location    *string    `json:"location,omitempty"`
	IsCompleted *bool      `json:"is_completed,omitempty"`
}

// Apply returns t with the set fields of u applied.
func (u UpdateTaskData) Apply(t Task) Task {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.StartTime != nil {
		t.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		t.EndTime = *u.EndTime
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.Location != nil {
		t.Location = *u.Location
	}
	if u.IsCompleted != nil {
		t.IsCompleted = *u.IsCompleted
	}
	return t
}
