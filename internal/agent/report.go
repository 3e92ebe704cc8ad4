package agent

import (
	"time"

	"schedai/internal/models"
)

// Status is the outcome of one planned placement.
type Status string

const (
	StatusCreated    Status = "created"
	StatusRepaired   Status = "repaired"
	StatusUnresolved Status = "unresolved"
)

// PlacementResult records what happened to one task during a run.
type PlacementResult struct {
	TaskID   string            `json:"taskId"`
	Title    string            `json:"title,omitempty"`
	Status   Status            `json:"status"`
	Planned  models.Placement  `json:"planned"`
	Repaired *models.Placement `json:"repaired,omitempty"`
	EventID  string            `json:"eventId,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// RunReport summarizes a scheduling run. Results are in plan order, followed
// by tasks the plan left out.
type RunReport struct {
	UserID     string            `json:"userId"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Results    []PlacementResult `json:"results"`
	Created    int               `json:"created"`
	Repaired   int               `json:"repaired"`
	Unresolved int               `json:"unresolved"`
}

func (r *RunReport) add(res PlacementResult) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusCreated:
		r.Created++
	case StatusRepaired:
		r.Repaired++
	case StatusUnresolved:
		r.Unresolved++
	}
}
