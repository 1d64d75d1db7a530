package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/greenlight-sh/greenlight/pkg/ingress"
	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/metrics"
	"github.com/greenlight-sh/greenlight/pkg/storage"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

// ErrFatal is returned when rollback cannot restore a healthy state.
// It is an operator-escalation condition, never auto-retried.
var ErrFatal = errors.New("rollback could not restore a healthy environment")

// GateFunc runs a health gate against the named environment. The
// controller uses it to verify the environment left carrying traffic.
type GateFunc func(ctx context.Context, env types.EnvironmentName) (*types.Verdict, error)

// Controller restores the previous known-good state after a failed
// release. Automatic rollback (failed health gate) and operator-issued
// rollback both go through Rollback.
type Controller struct {
	store  storage.Store
	sw     *ingress.Switch
	gate   GateFunc
	logger zerolog.Logger
}

// Result describes a completed rollback
type Result struct {
	// FailedEnvironment is the slot whose release was rolled back
	FailedEnvironment types.EnvironmentName

	// ActiveEnvironment is the slot carrying traffic after rollback
	ActiveEnvironment types.EnvironmentName

	// RestoredRevision is the revision the failed slot was reset to
	// (empty when no prior switched release exists)
	RestoredRevision string

	// Verdict is the verification gate run against the active slot
	Verdict *types.Verdict
}

// NewController creates a rollback controller
func NewController(store storage.Store, sw *ingress.Switch, gate GateFunc) *Controller {
	return &Controller{
		store:  store,
		sw:     sw,
		gate:   gate,
		logger: log.WithComponent("rollback"),
	}
}

// Rollback restores the failed environment's spec to the last
// known-good revision and makes sure traffic points at a healthy slot.
// If the failed slot was already active, traffic is re-pointed at the
// other slot; otherwise the in-flight switch is simply abandoned. The
// slot left active is re-verified with a health gate; if that gate
// fails (both environments degraded) the store is marked fatal and
// ErrFatal is returned.
func (c *Controller) Rollback(ctx context.Context, failed types.EnvironmentName) (*Result, error) {
	c.logger.Warn().Str("environment", string(failed)).Msg("rolling back")

	// The most recent release that actually took traffic defines the
	// last known-good revision
	var restoredRevision string
	lastGood, err := c.store.LastSwitchedRecord()
	switch {
	case err == nil:
		if _, err := c.store.UpdateEnvironment(failed, lastGood.Request.ImageTag, lastGood.NewRevisionID); err != nil {
			return nil, c.fatal(fmt.Errorf("failed to restore spec for %s: %w", failed, err))
		}
		restoredRevision = lastGood.NewRevisionID
		c.logger.Info().
			Str("environment", string(failed)).
			Str("revision_id", restoredRevision).
			Msg("spec restored to last known-good revision")
	case errors.Is(err, storage.ErrNoSwitchedRecord):
		// Nothing to restore: no release has ever switched
		c.logger.Warn().Str("environment", string(failed)).Msg("no prior switched release, leaving spec as-is")
	default:
		return nil, c.fatal(fmt.Errorf("failed to read deployment history: %w", err))
	}

	active, err := c.store.ActiveEnvironment()
	if err != nil {
		return nil, c.fatal(fmt.Errorf("failed to read active environment: %w", err))
	}

	// If the bad slot took traffic, re-point at the other slot. If it
	// never activated, the in-flight switch is abandoned and the good
	// slot keeps serving.
	target := active.Name
	if active.Name == failed {
		target = failed.Other()
		if _, err := c.sw.SwitchTo(ctx, target); err != nil {
			return nil, c.fatal(fmt.Errorf("failed to re-point traffic at %s: %w", target, err))
		}
	}

	verdict, err := c.gate(ctx, target)
	if err != nil {
		return nil, c.fatal(fmt.Errorf("verification gate against %s failed to run: %w", target, err))
	}
	if !verdict.OverallHealthy {
		return nil, c.fatal(fmt.Errorf("environment %s is unhealthy after rollback: %s", target, verdict.Summary()))
	}

	if err := c.store.MarkHealthy(target); err != nil {
		c.logger.Warn().Err(err).Msg("failed to stamp last healthy time")
	}

	metrics.RollbacksTotal.Inc()
	c.logger.Info().
		Str("failed", string(failed)).
		Str("active", string(target)).
		Msg("rollback complete")

	return &Result{
		FailedEnvironment: failed,
		ActiveEnvironment: target,
		RestoredRevision:  restoredRevision,
		Verdict:           verdict,
	}, nil
}

// fatal records the fatal state and wraps the cause in ErrFatal
func (c *Controller) fatal(cause error) error {
	c.logger.Error().Err(cause).Msg("rollback failed, entering fatal state")
	if err := c.store.SetFatal(cause.Error()); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist fatal state")
	}
	metrics.FatalState.Set(1)
	return fmt.Errorf("%w: %v", ErrFatal, cause)
}
