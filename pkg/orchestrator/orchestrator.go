package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/greenlight-sh/greenlight/pkg/config"
	"github.com/greenlight-sh/greenlight/pkg/deploy"
	"github.com/greenlight-sh/greenlight/pkg/events"
	"github.com/greenlight-sh/greenlight/pkg/health"
	"github.com/greenlight-sh/greenlight/pkg/ingress"
	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/metrics"
	"github.com/greenlight-sh/greenlight/pkg/rollback"
	"github.com/greenlight-sh/greenlight/pkg/storage"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

var (
	// ErrReleaseInFlight is returned when a release is submitted while
	// another is being orchestrated. Requests are rejected, not queued.
	ErrReleaseInFlight = errors.New("orchestration in progress")

	// ErrFatalState is returned while the fatal circuit breaker is set;
	// it must be cleared manually before new releases are accepted.
	ErrFatalState = errors.New("system in fatal state")

	// ErrValidation wraps release request validation failures. The
	// aborted run is still recorded in the deployment log.
	ErrValidation = errors.New("invalid release request")
)

// Orchestrator drives the release state machine: spec update, deploy
// trigger, health gate, then traffic switch or rollback. It processes
// one release at a time and is the only writer of environment specs
// and deployment records.
type Orchestrator struct {
	cfg      *config.Config
	store    storage.Store
	trigger  deploy.Trigger
	sw       *ingress.Switch
	rollback *rollback.Controller
	broker   *events.Broker
	validate *validator.Validate
	logger   zerolog.Logger

	// busy is the single-flight guard; a release holds it from
	// acceptance to terminal state
	busy atomic.Bool

	stateMu sync.RWMutex
	state   types.State

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc
	cancelled atomic.Bool
}

// New creates an orchestrator over the given collaborators. The
// rollback controller is constructed internally so that its
// verification gate shares this orchestrator's check battery.
func New(cfg *config.Config, store storage.Store, trigger deploy.Trigger, router ingress.Router, broker *events.Broker) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		trigger:  trigger,
		sw:       ingress.NewSwitch(router, store),
		broker:   broker,
		validate: validator.New(),
		logger:   log.WithComponent("orchestrator"),
		state:    types.StateIdle,
	}
	o.rollback = rollback.NewController(store, o.sw, o.verificationGate)
	return o
}

// State returns the orchestrator's current state machine position
func (o *Orchestrator) State() types.State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s types.State) {
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
	o.logger.Debug().Str("state", string(s)).Msg("state transition")
}

// SubmitRelease runs one full orchestration cycle for req and returns
// the deployment record of its terminal outcome. A second submission
// while one is in flight returns ErrReleaseInFlight without touching
// any state; submissions while the fatal flag is set return
// ErrFatalState. Validation failures return ErrValidation alongside the
// recorded aborted run.
func (o *Orchestrator) SubmitRelease(ctx context.Context, req types.ReleaseRequest) (*types.DeploymentRecord, error) {
	if fatal, reason, err := o.store.Fatal(); err != nil {
		return nil, fmt.Errorf("failed to read fatal state: %w", err)
	} else if fatal {
		metrics.ReleasesRejected.WithLabelValues("fatal").Inc()
		return nil, fmt.Errorf("%w: %s", ErrFatalState, reason)
	}

	if !o.busy.CompareAndSwap(false, true) {
		metrics.ReleasesRejected.WithLabelValues("in_flight").Inc()
		return nil, ErrReleaseInFlight
	}
	defer func() {
		o.clearCancel()
		o.cancelled.Store(false)
		if o.State() != types.StateFatal {
			o.setState(types.StateIdle)
		}
		o.busy.Store(false)
	}()

	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	started := time.Now()
	defer func() {
		metrics.ReleaseDuration.Observe(time.Since(started).Seconds())
	}()

	runLogger := o.logger.With().
		Str("environment", string(req.TargetEnvironment)).
		Str("image_tag", req.ImageTag).
		Logger()
	runLogger.Info().Str("requested_by", req.RequestedBy).Msg("release accepted")
	o.publish(events.EventReleaseStarted, fmt.Sprintf("release of %s to %s", req.ImageTag, req.TargetEnvironment), req)

	// Idle -> SpecUpdated: validate, then persist the new spec
	prev, active, err := o.validateRequest(req)
	if err != nil {
		rec := o.finishAborted(req, started, err)
		return rec, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	previousRevision := prev.RevisionID

	o.setState(types.StateSpecUpdated)
	if _, err := o.store.UpdateEnvironment(req.TargetEnvironment, req.ImageTag, previousRevision); err != nil {
		rec := o.finishAborted(req, started, fmt.Errorf("failed to update spec: %v", err))
		return rec, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	o.publish(events.EventSpecUpdated, fmt.Sprintf("spec for %s set to %s", req.TargetEnvironment, req.ImageTag), req)

	// Every blocking call below runs under a cancellable context so an
	// operator cancel lands on the rollback path, never an abrupt stop
	runCtx, cancel := context.WithCancel(ctx)
	o.setCancel(cancel)
	defer cancel()

	// SpecUpdated -> Deploying
	o.setState(types.StateDeploying)
	target, err := o.store.GetEnvironment(req.TargetEnvironment)
	if err != nil {
		rec := o.finishAborted(req, started, fmt.Errorf("failed to load spec: %v", err))
		return rec, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	deployCtx, deployCancel := context.WithTimeout(runCtx, o.cfg.Deployer.Timeout.Std())
	revisionID, err := o.trigger.TriggerDeployment(deployCtx, target)
	deployCancel()
	if err != nil {
		runLogger.Error().Err(err).Msg("deployment trigger failed")
		return o.finishRollingBack(ctx, req, nil, previousRevision, started,
			fmt.Sprintf("deployment trigger failed: %v", err))
	}
	if _, err := o.store.UpdateEnvironment(req.TargetEnvironment, req.ImageTag, revisionID); err != nil {
		return o.finishRollingBack(ctx, req, nil, previousRevision, started,
			fmt.Sprintf("failed to persist new revision: %v", err))
	}
	o.publish(events.EventDeployTriggered, fmt.Sprintf("revision %s live on %s (unverified)", revisionID, req.TargetEnvironment), req)

	// Deploying -> HealthGating: gate the freshly deployed slot while
	// traffic still points at the active one
	o.setState(types.StateHealthGating)
	verdict, err := o.runGate(runCtx, req.TargetEnvironment, o.cfg.Gate.TimeoutBudget.Std())
	if err != nil {
		return o.finishRollingBack(ctx, req, nil, previousRevision, started,
			fmt.Sprintf("health gate could not run: %v", err))
	}
	if o.cancelled.Load() {
		// Cancellation is modeled as an unhealthy verdict
		verdict.OverallHealthy = false
		o.publish(events.EventReleaseCancelled, "release cancelled by operator", req)
	}
	if !verdict.OverallHealthy {
		o.publish(events.EventGateFailed, verdict.Summary(), req)
		return o.finishRollingBack(ctx, req, verdict, previousRevision, started, verdict.Summary())
	}
	o.publish(events.EventGatePassed, verdict.Summary(), req)

	// HealthGating -> Switching
	o.setState(types.StateSwitching)
	if _, err := o.sw.SwitchTo(runCtx, req.TargetEnvironment); err != nil {
		runLogger.Error().Err(err).Msg("traffic switch failed")
		return o.finishRollingBack(ctx, req, verdict, previousRevision, started,
			fmt.Sprintf("traffic switch failed: %v", err))
	}

	// Propagation is not assumed instantaneous: verify with a bounded
	// re-check now that the slot carries traffic
	postVerdict, err := o.runGate(runCtx, req.TargetEnvironment, o.cfg.Gate.PostSwitchBudget.Std())
	if err != nil || !postVerdict.OverallHealthy {
		summary := "post-switch verification could not run"
		if postVerdict != nil {
			summary = fmt.Sprintf("post-switch verification failed: %s", postVerdict.Summary())
		}
		return o.finishRollingBack(ctx, req, postVerdict, previousRevision, started, summary)
	}

	// Switching -> Switched
	o.setState(types.StateSwitched)
	if err := o.store.MarkHealthy(req.TargetEnvironment); err != nil {
		runLogger.Warn().Err(err).Msg("failed to stamp last healthy time")
	}
	metrics.SetActiveEnvironment(string(req.TargetEnvironment))

	rec := o.newRecord(req, started)
	rec.Verdict = verdict
	rec.Outcome = types.OutcomeSwitched
	rec.PreviousRevisionID = previousRevision
	rec.NewRevisionID = revisionID
	rec.Summary = fmt.Sprintf("switched traffic from %s to %s at revision %s; %s",
		active.Name, req.TargetEnvironment, revisionID, verdict.Summary())
	o.writeRecord(rec)

	o.publish(events.EventTrafficSwitched, rec.Summary, req)
	runLogger.Info().Str("revision_id", revisionID).Msg("release switched")
	return rec, nil
}

// Cancel requests cancellation of the in-flight release. It only has
// effect during the deploying and health-gating phases, where it lands
// the run on the rollback path.
func (o *Orchestrator) Cancel() bool {
	switch o.State() {
	case types.StateDeploying, types.StateHealthGating:
	default:
		return false
	}

	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	if o.cancelRun == nil {
		return false
	}
	o.cancelled.Store(true)
	o.cancelRun()
	o.logger.Warn().Msg("in-flight release cancelled by operator")
	return true
}

// ClearFatal clears the fatal circuit breaker after manual remediation
func (o *Orchestrator) ClearFatal() error {
	if err := o.store.ClearFatal(); err != nil {
		return fmt.Errorf("failed to clear fatal state: %w", err)
	}
	metrics.FatalState.Set(0)
	o.setState(types.StateIdle)
	o.publish(events.EventFatalCleared, "fatal state cleared by operator", types.ReleaseRequest{})
	o.logger.Info().Msg("fatal state cleared")
	return nil
}

// validateRequest checks the release request and returns the target's
// current spec and the active environment.
func (o *Orchestrator) validateRequest(req types.ReleaseRequest) (target, active *types.Environment, err error) {
	if err := o.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return nil, nil, fmt.Errorf("field %s failed %q validation", verrs[0].Field(), verrs[0].Tag())
		}
		return nil, nil, err
	}

	if _, ok := o.cfg.Environments[req.TargetEnvironment]; !ok {
		return nil, nil, fmt.Errorf("environment %s has no probe configuration", req.TargetEnvironment)
	}

	target, err = o.store.GetEnvironment(req.TargetEnvironment)
	if err != nil {
		return nil, nil, err
	}
	active, err = o.store.ActiveEnvironment()
	if err != nil {
		return nil, nil, err
	}
	if active.Name == req.TargetEnvironment {
		return nil, nil, fmt.Errorf("environment %s is currently active; release to the idle slot", req.TargetEnvironment)
	}
	return target, active, nil
}

// runGate builds the configured battery against env and runs it
func (o *Orchestrator) runGate(ctx context.Context, env types.EnvironmentName, budget time.Duration) (*types.Verdict, error) {
	targetCfg, ok := o.cfg.Environments[env]
	if !ok {
		return nil, fmt.Errorf("environment %s has no probe configuration", env)
	}

	probes, err := health.BuildBattery(o.cfg.Checks, targetCfg)
	if err != nil {
		return nil, err
	}

	verdict := health.NewGate(probes, budget, o.cfg.Gate.RetryBackoff.Std()).Run(ctx)

	outcome := "healthy"
	if !verdict.OverallHealthy {
		outcome = "unhealthy"
	}
	metrics.GateDuration.WithLabelValues(outcome).Observe(verdict.FinishedAt.Sub(verdict.StartedAt).Seconds())
	for _, r := range verdict.Results {
		if r.Status.Gating() {
			metrics.CheckFailures.WithLabelValues(r.CheckName, string(r.Status)).Inc()
		}
	}
	return verdict, nil
}

// verificationGate is the rollback controller's view of the gate
func (o *Orchestrator) verificationGate(ctx context.Context, env types.EnvironmentName) (*types.Verdict, error) {
	return o.runGate(ctx, env, o.cfg.Gate.PostSwitchBudget.Std())
}

// finishAborted records a run rejected on validation or precondition
// failure. No infrastructure was touched.
func (o *Orchestrator) finishAborted(req types.ReleaseRequest, started time.Time, cause error) *types.DeploymentRecord {
	o.setState(types.StateAborted)
	metrics.ReleasesTotal.WithLabelValues(string(types.OutcomeAborted)).Inc()

	rec := o.newRecord(req, started)
	rec.Outcome = types.OutcomeAborted
	rec.Summary = fmt.Sprintf("aborted: %v", cause)
	o.writeRecord(rec)

	o.publish(events.EventReleaseAborted, rec.Summary, req)
	o.logger.Warn().Str("environment", string(req.TargetEnvironment)).Msgf("release aborted: %v", cause)
	return rec
}

// finishRollingBack drives the rollback path to its terminal state and
// records the outcome. ctx is the caller's context, not the (possibly
// cancelled) run context: rollback must still run after a cancel.
func (o *Orchestrator) finishRollingBack(ctx context.Context, req types.ReleaseRequest, verdict *types.Verdict, previousRevision string, started time.Time, reason string) (*types.DeploymentRecord, error) {
	o.setState(types.StateRollingBack)

	rbResult, rbErr := o.rollback.Rollback(ctx, req.TargetEnvironment)

	rec := o.newRecord(req, started)
	rec.Verdict = verdict
	rec.PreviousRevisionID = previousRevision

	if rbErr != nil {
		// RollingBack -> Fatal: the circuit breaker is already set by
		// the rollback controller
		o.setState(types.StateFatal)
		metrics.ReleasesTotal.WithLabelValues(string(types.OutcomeFatal)).Inc()

		rec.Outcome = types.OutcomeFatal
		rec.Summary = fmt.Sprintf("%s; rollback failed: %v", reason, rbErr)
		o.writeRecord(rec)

		o.publish(events.EventFatalEntered, rec.Summary, req)
		o.logger.Error().Err(rbErr).Msg("entered fatal state, operator intervention required")
		return rec, rbErr
	}

	o.setState(types.StateRolledBack)
	metrics.ReleasesTotal.WithLabelValues(string(types.OutcomeRolledBack)).Inc()
	metrics.SetActiveEnvironment(string(rbResult.ActiveEnvironment))

	rec.Outcome = types.OutcomeRolledBack
	rec.NewRevisionID = rbResult.RestoredRevision
	rec.Summary = fmt.Sprintf("%s; rolled back, %s active at revision %s",
		reason, rbResult.ActiveEnvironment, o.revisionOf(rbResult.ActiveEnvironment))
	o.writeRecord(rec)

	o.publish(events.EventReleaseRolledBack, rec.Summary, req)
	o.logger.Warn().Str("active", string(rbResult.ActiveEnvironment)).Msg("release rolled back")
	return rec, nil
}

func (o *Orchestrator) newRecord(req types.ReleaseRequest, started time.Time) *types.DeploymentRecord {
	return &types.DeploymentRecord{
		ID:        uuid.New().String(),
		Request:   req,
		StartedAt: started,
	}
}

func (o *Orchestrator) writeRecord(rec *types.DeploymentRecord) {
	rec.FinishedAt = time.Now()
	if rec.Outcome == types.OutcomeSwitched {
		metrics.ReleasesTotal.WithLabelValues(string(types.OutcomeSwitched)).Inc()
	}
	if err := o.store.AppendRecord(rec); err != nil {
		o.logger.Error().Err(err).Msg("failed to append deployment record")
	}
}

func (o *Orchestrator) revisionOf(env types.EnvironmentName) string {
	e, err := o.store.GetEnvironment(env)
	if err != nil {
		return "unknown"
	}
	return e.RevisionID
}

func (o *Orchestrator) publish(t events.EventType, msg string, req types.ReleaseRequest) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    t,
		Message: msg,
		Metadata: map[string]string{
			"environment": string(req.TargetEnvironment),
			"image_tag":   req.ImageTag,
		},
	})
}

func (o *Orchestrator) setCancel(fn context.CancelFunc) {
	o.cancelMu.Lock()
	o.cancelRun = fn
	o.cancelMu.Unlock()
}

func (o *Orchestrator) clearCancel() {
	o.cancelMu.Lock()
	o.cancelRun = nil
	o.cancelMu.Unlock()
}
