package models

import "time"

// AttemptOutcome is the result of dispatching one capability to one backend.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
	OutcomeSkipped AttemptOutcome = "skipped"
)

// Attempt records a single backend dispatch made by the coordinator.
type Attempt struct {
	RequestID  string         `json:"request_id"`
	Capability Capability     `json:"capability"`
	Backend    BackendID      `json:"backend"`
	Outcome    AttemptOutcome `json:"outcome"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Message    string         `json:"message,omitempty"`
	Attempts   int            `json:"attempts"`
	LatencyMs  int64          `json:"latency_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AttemptQueryOpts specifies filters for querying the attempt ledger.
type AttemptQueryOpts struct {
	Backend    BackendID
	Capability Capability
	Outcome    AttemptOutcome
	RequestID  string
	Since      time.Time
	Limit      int
}

// AttemptStat holds aggregate attempt counts for a backend/capability/outcome.
type AttemptStat struct {
	Backend      BackendID      `json:"backend"`
	Capability   Capability     `json:"capability"`
	Outcome      AttemptOutcome `json:"outcome"`
	Count        int            `json:"count"`
	AvgLatencyMs float64        `json:"avg_latency_ms"`
}
