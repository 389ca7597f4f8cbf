package contracts

import (
	"fmt"
	"time"
)

// DateLayout is the wire/DB format of an as-of date
const DateLayout = "2006-01-02"

// RunStatus represents the lifecycle of one ops run
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
)

// RunContext is created once per execution
// ⭐ SSOT: 런 식별자/기준일/설정 해시는 여기서만 정의
// Only Status, Notes and FinishedAt change after creation.
type RunContext struct {
	RunID      string     `json:"run_id"`
	AsOfDate   *time.Time `json:"asof_date,omitempty"`
	ConfigHash string     `json:"config_hash"`
	GitCommit  string     `json:"git_commit,omitempty"`
	Cadence    string     `json:"cadence"`
	Status     RunStatus  `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ParseDate parses a YYYY-MM-DD as-of date into UTC midnight
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats an as-of date; nil yields ""
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// DateOnly truncates t to its UTC calendar date
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether two instants fall on the same UTC calendar date
func SameDate(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}
