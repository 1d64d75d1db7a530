package types

import (
	"fmt"
	"time"
)

// EnvironmentName identifies one of the two deployment slots
type EnvironmentName string

const (
	EnvironmentBlue  EnvironmentName = "blue"
	EnvironmentGreen EnvironmentName = "green"
)

// Valid reports whether the name is one of the two known slots
func (n EnvironmentName) Valid() bool {
	return n == EnvironmentBlue || n == EnvironmentGreen
}

// Other returns the opposite slot
func (n EnvironmentName) Other() EnvironmentName {
	if n == EnvironmentBlue {
		return EnvironmentGreen
	}
	return EnvironmentBlue
}

// Environment represents one blue/green deployment slot.
// Both slots are created at bootstrap and exist permanently; only the
// orchestrator mutates them.
type Environment struct {
	Name          EnvironmentName `json:"name"`
	ImageTag      string          `json:"image_tag"`
	RevisionID    string          `json:"revision_id"`
	Active        bool            `json:"active"`
	LastHealthyAt *time.Time      `json:"last_healthy_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ReleaseRequest is the transient input to a single orchestration run
type ReleaseRequest struct {
	TargetEnvironment EnvironmentName `json:"target_environment" validate:"required,oneof=blue green"`
	ImageTag          string          `json:"image_tag" validate:"required"`
	RequestedBy       string          `json:"requested_by" validate:"required"`
	SubmittedAt       time.Time       `json:"submitted_at"`
}

// CheckStatus is the per-probe outcome
type CheckStatus string

const (
	// CheckPassed means the probe executed and met its threshold
	CheckPassed CheckStatus = "passed"

	// CheckFailed means the probe executed and missed its threshold
	CheckFailed CheckStatus = "failed"

	// CheckError means the probe could not execute at all (e.g. network
	// unreachable). Gates treat it the same as failed but it is logged
	// distinctly for diagnosis.
	CheckError CheckStatus = "error"
)

// Gating reports whether the status counts against a verdict
func (s CheckStatus) Gating() bool {
	return s == CheckFailed || s == CheckError
}

// CheckResult is the outcome of a single health probe
type CheckResult struct {
	CheckName  string      `json:"check_name"`
	Status     CheckStatus `json:"status"`
	Mandatory  bool        `json:"mandatory"`
	Message    string      `json:"message"`
	LatencyMs  int64       `json:"latency_ms"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Verdict aggregates the results of one health gate run.
// OverallHealthy is the AND of all mandatory check results; advisory
// checks are retained for observability but never gate.
type Verdict struct {
	OverallHealthy bool          `json:"overall_healthy"`
	Results        []CheckResult `json:"results"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// FailedChecks returns the names of mandatory checks that did not pass
func (v *Verdict) FailedChecks() []string {
	var failed []string
	for _, r := range v.Results {
		if r.Mandatory && r.Status.Gating() {
			failed = append(failed, r.CheckName)
		}
	}
	return failed
}

// Summary renders a one-line human-readable gate outcome
func (v *Verdict) Summary() string {
	if v.OverallHealthy {
		return fmt.Sprintf("healthy: %d checks passed in %v",
			len(v.Results), v.FinishedAt.Sub(v.StartedAt).Round(time.Millisecond))
	}
	return fmt.Sprintf("unhealthy: failed checks: %v", v.FailedChecks())
}

// Outcome is the terminal result of an orchestration run
type Outcome string

const (
	OutcomeSwitched   Outcome = "switched"
	OutcomeRolledBack Outcome = "rolledBack"
	OutcomeAborted    Outcome = "aborted"

	// OutcomeFatal marks a run whose rollback could not restore a
	// healthy state; the orchestrator refuses new work until cleared
	OutcomeFatal Outcome = "fatal"
)

// DeploymentRecord is an append-only audit entry written at the end of
// every orchestration run. Records are never mutated or deleted; the
// rollback controller reads them to find the previous known-good revision.
type DeploymentRecord struct {
	ID                 string         `json:"id"`
	Request            ReleaseRequest `json:"request"`
	Verdict            *Verdict       `json:"verdict,omitempty"`
	Outcome            Outcome        `json:"outcome"`
	PreviousRevisionID string         `json:"previous_revision_id"`
	NewRevisionID      string         `json:"new_revision_id"`
	Summary            string         `json:"summary"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
}

// State is the orchestrator's current position in the release state machine
type State string

const (
	StateIdle         State = "idle"
	StateSpecUpdated  State = "specUpdated"
	StateDeploying    State = "deploying"
	StateHealthGating State = "healthGating"
	StateSwitching    State = "switching"
	StateSwitched     State = "switched"
	StateRollingBack  State = "rollingBack"
	StateRolledBack   State = "rolledBack"
	StateAborted      State = "aborted"
	StateFatal        State = "fatal"
)

// Terminal reports whether the state ends an orchestration run
func (s State) Terminal() bool {
	switch s {
	case StateSwitched, StateRolledBack, StateAborted, StateFatal:
		return true
	}
	return false
}
