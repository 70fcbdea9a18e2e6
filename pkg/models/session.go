package models

import "time"

// Session status values
const (
	SessionRunning = "running"
	SessionStopped = "stopped"
)

// SessionState tracks one driver-loop session. At most one running session
// may exist per agent at any time.
type SessionState struct {
	SessionID  string     `json:"session_id" db:"session_id"`
	AgentID    string     `json:"agent_id" db:"agent_id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Status     string     `json:"status" db:"status"`
	CycleCount int        `json:"cycle_count" db:"cycle_count"`
	WillEndAt  *time.Time `json:"will_end_at,omitempty" db:"will_end_at"`
}
