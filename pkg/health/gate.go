package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

// Gate runs a battery of probes concurrently against a target and
// aggregates the results into a Verdict. Probes are read-only: the only
// side effect is the traffic they send at the target.
type Gate struct {
	probes  []Probe
	budget  time.Duration
	backoff time.Duration
	logger  zerolog.Logger
}

// NewGate creates a gate with an aggregate deadline (budget) and a fixed
// backoff between retries of an individual probe.
func NewGate(probes []Probe, budget, backoff time.Duration) *Gate {
	return &Gate{
		probes:  probes,
		budget:  budget,
		backoff: backoff,
		logger:  log.WithComponent("healthgate"),
	}
}

// Run fans the probes out as goroutines, joins them at the aggregate
// deadline, and records probes still pending at the deadline as failed.
// The verdict is healthy iff every mandatory probe passed; a timeout is
// never treated as success.
func (g *Gate) Run(ctx context.Context) *types.Verdict {
	started := time.Now()

	gateCtx, cancel := context.WithTimeout(ctx, g.budget)
	defer cancel()

	type indexed struct {
		idx    int
		result types.CheckResult
	}
	resultCh := make(chan indexed, len(g.probes))

	for i, probe := range g.probes {
		go func(idx int, p Probe) {
			resultCh <- indexed{idx: idx, result: g.runProbe(gateCtx, p)}
		}(i, probe)
	}

	collected := make([]*types.CheckResult, len(g.probes))
	pending := len(g.probes)
	for pending > 0 {
		select {
		case r := <-resultCh:
			collected[r.idx] = &r.result
			pending--
		case <-gateCtx.Done():
			pending = 0
		}
	}

	// Probes that never finished inside the budget count as failed
	results := make([]types.CheckResult, len(g.probes))
	for i, probe := range g.probes {
		if collected[i] != nil {
			results[i] = *collected[i]
			continue
		}
		results[i] = types.CheckResult{
			CheckName:  probe.Name,
			Status:     types.CheckFailed,
			Mandatory:  probe.Mandatory,
			Message:    "check did not complete within gate deadline",
			ObservedAt: time.Now(),
		}
		g.logger.Warn().Str("check", probe.Name).Msg("check timed out at gate deadline")
	}

	verdict := &types.Verdict{
		OverallHealthy: true,
		Results:        results,
		StartedAt:      started,
		FinishedAt:     time.Now(),
	}
	for _, r := range results {
		if r.Mandatory && r.Status.Gating() {
			verdict.OverallHealthy = false
		}
	}

	g.logger.Info().
		Bool("healthy", verdict.OverallHealthy).
		Int("checks", len(results)).
		Dur("elapsed", verdict.FinishedAt.Sub(started)).
		Msg("health gate finished")

	return verdict
}

// runProbe executes one probe with its per-attempt timeout, retrying
// failed attempts with fixed backoff up to the probe's retry budget.
func (g *Gate) runProbe(ctx context.Context, probe Probe) types.CheckResult {
	var last Result

	attempts := probe.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, probe.Timeout)
		last = probe.Checker.Check(attemptCtx)
		cancel()

		if last.Status == types.CheckPassed {
			break
		}

		logEvent := g.logger.Debug()
		if last.Status == types.CheckError {
			// Errors mean the probe could not execute at all; keep them
			// visible for diagnosis even though gating treats them the
			// same as failures
			logEvent = g.logger.Warn()
		}
		logEvent.
			Str("check", probe.Name).
			Str("status", string(last.Status)).
			Int("attempt", attempt).
			Str("message", last.Message).
			Msg("health check attempt did not pass")

		if attempt < attempts {
			select {
			case <-time.After(g.backoff):
			case <-ctx.Done():
				attempt = attempts
			}
		}
	}

	return types.CheckResult{
		CheckName:  probe.Name,
		Status:     last.Status,
		Mandatory:  probe.Mandatory,
		Message:    last.Message,
		LatencyMs:  last.Duration.Milliseconds(),
		ObservedAt: last.CheckedAt,
	}
}
