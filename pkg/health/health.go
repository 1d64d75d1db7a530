package health

import (
	"context"
	"time"

	"github.com/greenlight-sh/greenlight/pkg/types"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP      CheckType = "http"
	CheckTypeTCP       CheckType = "tcp"
	CheckTypeReadiness CheckType = "readiness"
	CheckTypeLatency   CheckType = "latency"
	CheckTypeResource  CheckType = "resource"
)

// Result represents the outcome of a single health check attempt
type Result struct {
	// Status distinguishes passed, failed (executed, missed threshold)
	// and error (could not execute at all)
	Status types.CheckStatus

	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Probe binds a checker to its gate configuration
type Probe struct {
	// Name identifies the probe in verdicts and logs
	Name string

	// Mandatory probes gate the verdict; advisory probes are recorded
	// but never flip a verdict to unhealthy
	Mandatory bool

	// Timeout bounds a single attempt
	Timeout time.Duration

	// Retries is the number of additional attempts after a failed one
	Retries int

	Checker Checker
}
