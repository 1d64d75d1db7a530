package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlight-sh/greenlight/pkg/config"
	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/rollback"
	"github.com/greenlight-sh/greenlight/pkg/storage"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// envServer is a fake environment whose health can be toggled per test
type envServer struct {
	*httptest.Server
	healthy atomic.Bool
	delayMs atomic.Int64
}

func newEnvServer(t *testing.T) *envServer {
	t.Helper()
	es := &envServer{}
	es.healthy.Store(true)
	es.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d := es.delayMs.Load(); d > 0 {
			time.Sleep(time.Duration(d) * time.Millisecond)
		}
		if es.healthy.Load() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(es.Close)
	return es
}

// fakeTrigger returns a scripted revision, optionally blocking until
// released or the context ends
type fakeTrigger struct {
	revision string
	err      error
	block    chan struct{}
	calls    atomic.Int32
}

func (f *fakeTrigger) TriggerDeployment(ctx context.Context, env *types.Environment) (string, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.revision, nil
}

type nullRouter struct{}

func (nullRouter) SetRoutingWeight(ctx context.Context, env types.EnvironmentName, weight int) error {
	return nil
}

type fixture struct {
	orch    *Orchestrator
	store   storage.Store
	trigger *fakeTrigger
	blue    *envServer
	green   *envServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blue := newEnvServer(t)
	green := newEnvServer(t)

	cfg := &config.Config{
		Gate: config.GateConfig{
			TimeoutBudget:    config.Duration(3 * time.Second),
			RetryBackoff:     config.Duration(10 * time.Millisecond),
			PostSwitchBudget: config.Duration(3 * time.Second),
		},
		Deployer: config.DeployerConfig{Timeout: config.Duration(3 * time.Second)},
		Environments: map[types.EnvironmentName]config.EnvironmentTarget{
			types.EnvironmentBlue:  {BaseURL: blue.URL},
			types.EnvironmentGreen: {BaseURL: green.URL},
		},
		Checks: []config.CheckConfig{
			{
				Name:      "liveness",
				Type:      config.CheckHTTP,
				Path:      "/health",
				Mandatory: true,
				Timeout:   config.Duration(time.Second),
				StatusMin: 200,
				StatusMax: 299,
			},
		},
	}

	trigger := &fakeTrigger{revision: "rev-new"}
	return &fixture{
		orch:    New(cfg, store, trigger, nullRouter{}, nil),
		store:   store,
		trigger: trigger,
		blue:    blue,
		green:   green,
	}
}

func releaseTo(env types.EnvironmentName, tag string) types.ReleaseRequest {
	return types.ReleaseRequest{
		TargetEnvironment: env,
		ImageTag:          tag,
		RequestedBy:       "ci",
	}
}

func TestSubmitRelease_HealthyPathSwitches(t *testing.T) {
	f := newFixture(t)

	rec, err := f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v2"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSwitched, rec.Outcome)
	assert.Equal(t, "rev-new", rec.NewRevisionID)
	require.NotNil(t, rec.Verdict)
	assert.True(t, rec.Verdict.OverallHealthy)

	active, err := f.store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentGreen, active.Name)
	assert.Equal(t, "app:v2", active.ImageTag)
	assert.Equal(t, "rev-new", active.RevisionID)

	records, err := f.store.ListRecords(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)

	assert.Equal(t, types.StateIdle, f.orch.State())
}

func TestSubmitRelease_UnhealthyGateRollsBack(t *testing.T) {
	f := newFixture(t)
	f.green.healthy.Store(false)

	rec, err := f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v2"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRolledBack, rec.Outcome)
	require.NotNil(t, rec.Verdict)
	assert.False(t, rec.Verdict.OverallHealthy)
	assert.Equal(t, []string{"liveness"}, rec.Verdict.FailedChecks())

	// Traffic never moved
	active, err := f.store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentBlue, active.Name)
}

func TestSubmitRelease_DeployFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.trigger.err = context.DeadlineExceeded

	rec, err := f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v2"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRolledBack, rec.Outcome)
	assert.Contains(t, rec.Summary, "deployment trigger failed")

	active, err := f.store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentBlue, active.Name)
}

func TestSubmitRelease_ConcurrentSubmissionRejected(t *testing.T) {
	f := newFixture(t)
	f.trigger.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v2"))
	}()

	// Wait until the first release is holding the single-flight guard
	require.Eventually(t, func() bool {
		return f.orch.State() == types.StateDeploying
	}, 2*time.Second, 10*time.Millisecond)

	rec, err := f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v3"))
	assert.ErrorIs(t, err, ErrReleaseInFlight)
	assert.Nil(t, rec)

	close(f.trigger.block)
	<-done

	// The rejected submission left no trace in the deployment log
	records, err := f.store.ListRecords(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "app:v2", records[0].Request.ImageTag)
}

func TestSubmitRelease_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		req  types.ReleaseRequest
	}{
		{"unknown environment", releaseTo("purple", "app:v2")},
		{"missing image tag", releaseTo(types.EnvironmentGreen, "")},
		{"missing requester", types.ReleaseRequest{TargetEnvironment: types.EnvironmentGreen, ImageTag: "app:v2"}},
		{"target is active", releaseTo(types.EnvironmentBlue, "app:v2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec, err := f.orch.SubmitRelease(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrValidation)
			require.NotNil(t, rec, "aborted runs are still recorded")
			assert.Equal(t, types.OutcomeAborted, rec.Outcome)

			// Nothing was deployed or switched
			assert.Equal(t, int32(0), f.trigger.calls.Load())
			active, err := f.store.ActiveEnvironment()
			require.NoError(t, err)
			assert.Equal(t, types.EnvironmentBlue, active.Name)
		})
	}
}

func TestSubmitRelease_BothDegradedGoesFatal(t *testing.T) {
	f := newFixture(t)
	f.blue.healthy.Store(false)
	f.green.healthy.Store(false)

	rec, err := f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v2"))
	require.ErrorIs(t, err, rollback.ErrFatal)
	require.NotNil(t, rec)
	assert.Equal(t, types.OutcomeFatal, rec.Outcome)
	assert.Equal(t, types.StateFatal, f.orch.State())

	fatal, _, err := f.store.Fatal()
	require.NoError(t, err)
	assert.True(t, fatal)

	// The circuit breaker rejects new work until cleared
	_, err = f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v3"))
	assert.ErrorIs(t, err, ErrFatalState)

	f.blue.healthy.Store(true)
	f.green.healthy.Store(true)
	require.NoError(t, f.orch.ClearFatal())
	assert.Equal(t, types.StateIdle, f.orch.State())

	rec, err = f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v3"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSwitched, rec.Outcome)
}

func TestSubmitRelease_RollbackRestoresLastKnownGood(t *testing.T) {
	f := newFixture(t)

	// First release: green switched at rev-new
	f.trigger.revision = "rev-good"
	rec, err := f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v2"))
	require.NoError(t, err)
	require.Equal(t, types.OutcomeSwitched, rec.Outcome)

	// Second release targets blue and fails its gate
	f.blue.healthy.Store(false)
	f.trigger.revision = "rev-bad"
	rec, err = f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentBlue, "app:v3"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeRolledBack, rec.Outcome)

	// Green keeps traffic at the revision the switched record captured
	active, err := f.store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentGreen, active.Name)
	assert.Equal(t, "rev-good", active.RevisionID)
	assert.Equal(t, "app:v2", active.ImageTag)
}

func TestCancel_DuringHealthGateRollsBack(t *testing.T) {
	f := newFixture(t)

	// Slow the target's health endpoint so the gate is still running
	// when the cancel arrives
	f.green.delayMs.Store(500)

	type result struct {
		rec *types.DeploymentRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := f.orch.SubmitRelease(context.Background(), releaseTo(types.EnvironmentGreen, "app:v2"))
		done <- result{rec, err}
	}()

	require.Eventually(t, func() bool {
		return f.orch.State() == types.StateHealthGating
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, f.orch.Cancel())

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, types.OutcomeRolledBack, res.rec.Outcome)

	active, err := f.store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentBlue, active.Name)
}

func TestCancel_NoEffectWhenIdle(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.orch.Cancel())
}
