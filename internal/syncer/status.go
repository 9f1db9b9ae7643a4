package syncer

import (
	"math"
	"time"
)

type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// LastSync describes the most recent run, live while it is active.
type LastSync struct {
	RunID            string     `json:"run_id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	Errors           int        `json:"errors"`
}

// Status is the engine state exposed to observers.
type Status struct {
	Running          bool      `json:"running"`
	CurrentStation   string    `json:"current_station,omitempty"`
	Progress         *Progress `json:"progress,omitempty"`
	CurrentOperation string    `json:"current_operation,omitempty"`
	LastSync         *LastSync `json:"last_sync,omitempty"`
}

// clone deep-copies the pointer fields so callers never share state with the run.
func (s Status) clone() Status {
	out := s
	if s.Progress != nil {
		p := *s.Progress
		out.Progress = &p
	}
	if s.LastSync != nil {
		ls := *s.LastSync
		if s.LastSync.EndTime != nil {
			end := *s.LastSync.EndTime
			ls.EndTime = &end
		}
		out.LastSync = &ls
	}
	return out
}

func newProgress(current, total int) *Progress {
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(current) / float64(total) * 100))
	}
	return &Progress{Current: current, Total: total, Percentage: pct}
}
