/*
Package types defines the core data model shared across Greenlight's packages.

The model is small and deliberate:

  - Environment: one of the two permanent blue/green slots. Exactly one is
    active at any time; both are created at bootstrap and never destroyed.
  - ReleaseRequest: the transient input to a single orchestration run.
  - CheckResult / Verdict: per-probe outcomes aggregated into the health
    gate's pass/fail decision.
  - DeploymentRecord: the append-only audit trail. The most recent record
    with outcome "switched" is the rollback target.
  - State: the orchestrator's release state machine position.

All types marshal to JSON for persistence in the BoltDB store and for the
HTTP API. No business logic lives here beyond small helpers (Other, Gating,
Summary) that every layer needs.
*/
package types
