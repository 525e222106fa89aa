package models

import "time"

type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	StatusWarning HealthStatus = "warning"
	StatusError   HealthStatus = "error"
)

// Normalize maps unknown values to warning.
func (s HealthStatus) Normalize() HealthStatus {
	switch s {
	case StatusHealthy, StatusWarning, StatusError:
		return s
	default:
		return StatusWarning
	}
}

// HeartbeatStatus is the liveness record kept per source.
type HeartbeatStatus struct {
	Name          string    `json:"name"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	IsActive      bool      `json:"is_active"`
	MissedCount   int       `json:"missed_count"`
}

// HeartbeatRecord is the ledger's status view of one source.
type HeartbeatRecord struct {
	HeartbeatStatus
	MinutesSinceLast float64 `json:"minutes_since_last"`
	IsOverdue        bool    `json:"is_overdue"`
}

// HeartbeatEvent is one heartbeat as written to the remote mirror.
type HeartbeatEvent struct {
	AgentName string         `json:"agent_name"`
	Status    HealthStatus   `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	LastError string         `json:"last_error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AgentHealth is the dashboard record for one agent.
type AgentHealth struct {
	AgentName     string         `json:"agent_name"`
	Status        HealthStatus   `json:"status"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	LastError     string         `json:"last_error,omitempty"`
	IsStale       bool           `json:"is_stale"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type HealthSummary struct {
	Timestamp   time.Time `json:"timestamp"`
	TotalAgents int       `json:"total_agents"`
	Healthy     int       `json:"healthy"`
	Warning     int       `json:"warning"`
	Error       int       `json:"error"`
	Stale       int       `json:"stale"`
	// StaleAfterSeconds is the heartbeat age past which an agent counts as stale.
	StaleAfterSeconds float64       `json:"stale_after_seconds"`
	Agents            []AgentHealth `json:"agents"`
}
