package model

import "time"

// RunStatus is the lifecycle state of an inventory run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// InventoryRun records the progress of one discovery/update invocation.
type InventoryRun struct {
	ID               string     `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	TotalSources     int        `json:"total_sources"`
	SourcesProcessed int        `json:"sources_processed"`
	NewCourtsFound   int        `json:"new_courts_found"`
	CourtsUpdated    int        `json:"courts_updated"`
	Status           RunStatus  `json:"status"`
	Message          string     `json:"message,omitempty"`
	CurrentSource    string     `json:"current_source,omitempty"`
	NextSource       string     `json:"next_source,omitempty"`
	Stage            string     `json:"stage,omitempty"`
	CourtType        string     `json:"court_type,omitempty"`
}

// Percent returns processed/total as a percentage, 0 when total is 0.
func (r InventoryRun) Percent() float64 {
	return Percent(r.SourcesProcessed, r.TotalSources)
}

// Percent returns processed/total as a percentage, 0 when total is 0.
func Percent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}

// LogLevel is the severity of a run log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// RunLogEntry is one append-only audit line attached to a run.
type RunLogEntry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}
