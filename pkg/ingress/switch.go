package ingress

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/storage"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

// Switch redirects live ingress between the two environments. It owns
// the live-routing weight: all weight changes go through SwitchTo.
type Switch struct {
	router Router
	store  storage.Store
	logger zerolog.Logger
}

// SwitchResult describes a completed switch
type SwitchResult struct {
	// Target is the environment now carrying traffic
	Target types.EnvironmentName

	// Changed is false when the system was already pointed at Target
	// and the call was a no-op
	Changed bool
}

// NewSwitch creates a traffic switch over the given router and store
func NewSwitch(router Router, store storage.Store) *Switch {
	return &Switch{
		router: router,
		store:  store,
		logger: log.WithComponent("switch"),
	}
}

// SwitchTo points all live traffic at name. Idempotent: if name is
// already active the router is not called again. On router failure the
// store's active flag is left untouched, so the caller must not advance
// state. The routing update is not assumed instantaneous; callers
// verify with a post-switch health re-check.
func (s *Switch) SwitchTo(ctx context.Context, name types.EnvironmentName) (*SwitchResult, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("unknown environment: %s", name)
	}

	active, err := s.store.ActiveEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to read active environment: %w", err)
	}

	if active.Name == name {
		s.logger.Info().Str("environment", string(name)).Msg("already active, switch is a no-op")
		return &SwitchResult{Target: name, Changed: false}, nil
	}

	// All-or-nothing weights: the new slot takes everything
	if err := s.router.SetRoutingWeight(ctx, name, 100); err != nil {
		return nil, fmt.Errorf("failed to route traffic to %s: %w", name, err)
	}
	if err := s.router.SetRoutingWeight(ctx, name.Other(), 0); err != nil {
		return nil, fmt.Errorf("failed to drain traffic from %s: %w", name.Other(), err)
	}

	if err := s.store.SetActive(name); err != nil {
		return nil, fmt.Errorf("failed to record active environment: %w", err)
	}

	s.logger.Info().
		Str("from", string(active.Name)).
		Str("to", string(name)).
		Msg("traffic switched")

	return &SwitchResult{Target: name, Changed: true}, nil
}
