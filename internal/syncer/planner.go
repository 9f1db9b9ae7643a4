package syncer

import (
	"errors"
	"time"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 30
)

var (
	ErrInvalidRange  = errors.New("sync: start date is after end date")
	ErrInvalidWindow = errors.New("sync: window size must be at least one day")
)

// Window is the date span covered by one upstream request. Both ends are
// inclusive calendar days at UTC midnight.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the number of calendar days the window covers.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start)/(24*time.Hour)) + 1
}

// Plan returns the start date of every window between start and end, advancing
// by windowDays calendar days until the cursor passes end.
func Plan(start, end time.Time, windowDays int) ([]time.Time, error) {
	if windowDays < 1 {
		return nil, ErrInvalidWindow
	}
	start, end = Day(start), Day(end)
	if start.After(end) {
		return nil, ErrInvalidRange
	}

	// Stepping with AddDate keeps huge window sizes from overflowing a Duration.
	spanDays := int(end.Sub(start) / (24 * time.Hour))
	starts := make([]time.Time, 0, spanDays/windowDays+1)
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, windowDays) {
		starts = append(starts, cur)
	}
	return starts, nil
}

// Windows is Plan with the derived end of each window; the last one is cut at end.
func Windows(start, end time.Time, windowDays int) ([]Window, error) {
	starts, err := Plan(start, end, windowDays)
	if err != nil {
		return nil, err
	}
	end = Day(end)

	out := make([]Window, len(starts))
	for i, s := range starts {
		e := s.AddDate(0, 0, windowDays-1)
		if e.After(end) {
			e = end
		}
		out[i] = Window{Start: s, End: e}
	}
	return out, nil
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
