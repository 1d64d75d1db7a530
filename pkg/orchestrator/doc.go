/*
Package orchestrator implements the blue/green release control loop.

# State Machine

Every accepted release walks an explicit state machine; each failure
path has a named next state rather than an abort:

	Idle ──▶ SpecUpdated ──▶ Deploying ──▶ HealthGating ──▶ Switching ──▶ Switched ──▶ Idle
	              │               │              │               │
	              ▼               ▼              ▼               ▼
	           Aborted        RollingBack ◀──────┴───────────────┘
	                              │
	                    ┌─────────┴─────────┐
	                    ▼                   ▼
	                RolledBack            Fatal

Idle to SpecUpdated validates the request (non-empty tag, known slot,
not the active slot) and persists the new spec; invalid input aborts
with a record and no further side effects. SpecUpdated to Deploying
triggers the external deployment mechanism, which returns once the
revision is live but unverified. Deploying to HealthGating runs the
gate against the new slot while traffic still points at the old one.
HealthGating advances to Switching only on a healthy verdict; an
unhealthy verdict, a gate deadline, or an operator cancel all roll
back. Switching reaches Switched after the traffic switch and a
bounded post-switch re-check both succeed. RollingBack falls through
to Fatal when rollback cannot restore a healthy slot; Fatal persists
across restarts and rejects all new releases until an operator clears
it.

# Concurrency

One release at a time: a compare-and-swap guard rejects (never queues)
a second submission while the machine is outside Idle. Within the gate,
individual checks fan out concurrently; see package health.

Every blocking call (deploy trigger, gate, switch, rollback) runs
under an explicit timeout. An operator Cancel during Deploying or
HealthGating is modeled as an unhealthy verdict and lands on the
rollback path, never an ungoverned stop.
*/
package orchestrator
