package models

import (
	"encoding/json"
	"time"
)

// Placement is one proposed slot for a task. Plans are built per scheduling
// run and never persisted.
type Placement struct {
	TaskID    string `json:"taskId"`
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// PlacementPlan is the ordered list of placements of one scheduling run.
type PlacementPlan []Placement

// UnmarshalJSON accepts both the English keys and the Indonesian ones
// (tanggal, waktuMulai, waktuSelesai). The task id may be a string or a number.
func (p *Placement) UnmarshalJSON(data []byte) error {
	var raw struct {
		TaskID      json.RawMessage `json:"taskId"`
		TaskIDSnake json.RawMessage `json:"task_id"`
		Date        string          `json:"date"`
		Tanggal     string          `json:"tanggal"`
		StartTime   string          `json:"startTime"`
		WaktuMulai  string          `json:"waktuMulai"`
		EndTime     string          `json:"endTime"`
		WaktuSelesai string          `json:"waktuSelesai"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := raw.TaskID
	if len(id) == 0 {
		id = raw.TaskIDSnake
	}
	*p = Placement{
		TaskID:    rawID(id),
		Date:      firstNonEmpty(raw.Date, raw.Tanggal),
		StartTime: firstNonEmpty(raw.StartTime, raw.WaktuMulai),
		EndTime:   firstNonEmpty(raw.EndTime, raw.WaktuSelesai),
	}
	return nil
}

// Bounds returns the start and end instants of the placement in loc.
func (p Placement) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseDateTime(p.Date, p.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := ParseDateTime(p.Date, p.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
