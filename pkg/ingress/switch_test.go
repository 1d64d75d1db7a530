package ingress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/storage"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

type weightCall struct {
	env    types.EnvironmentName
	weight int
}

// fakeRouter records weight changes and optionally fails
type fakeRouter struct {
	mu    sync.Mutex
	calls []weightCall
	err   error
}

func (r *fakeRouter) SetRoutingWeight(ctx context.Context, env types.EnvironmentName, weight int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, weightCall{env: env, weight: weight})
	return nil
}

func newSwitchFixture(t *testing.T) (*Switch, *fakeRouter, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	router := &fakeRouter{}
	return NewSwitch(router, store), router, store
}

func TestSwitch_FlipsActiveEnvironment(t *testing.T) {
	sw, router, store := newSwitchFixture(t)

	res, err := sw.SwitchTo(context.Background(), types.EnvironmentGreen)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, types.EnvironmentGreen, res.Target)

	// The new slot is weighted up before the old one drains
	require.Len(t, router.calls, 2)
	assert.Equal(t, weightCall{env: types.EnvironmentGreen, weight: 100}, router.calls[0])
	assert.Equal(t, weightCall{env: types.EnvironmentBlue, weight: 0}, router.calls[1])

	active, err := store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentGreen, active.Name)
}

func TestSwitch_NoOpWhenAlreadyActive(t *testing.T) {
	sw, router, store := newSwitchFixture(t)

	// Blue is active from bootstrap
	res, err := sw.SwitchTo(context.Background(), types.EnvironmentBlue)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, router.calls, "idempotent switch must not touch the router")

	active, err := store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentBlue, active.Name)
}

func TestSwitch_RouterFailureLeavesStateUntouched(t *testing.T) {
	sw, router, store := newSwitchFixture(t)
	router.err = errors.New("router unreachable")

	_, err := sw.SwitchTo(context.Background(), types.EnvironmentGreen)
	require.Error(t, err)

	active, err := store.ActiveEnvironment()
	require.NoError(t, err)
	assert.Equal(t, types.EnvironmentBlue, active.Name, "active flag must not advance past a failed routing update")
}

func TestSwitch_RejectsUnknownEnvironment(t *testing.T) {
	sw, router, _ := newSwitchFixture(t)

	_, err := sw.SwitchTo(context.Background(), "purple")
	require.Error(t, err)
	assert.Empty(t, router.calls)
}
