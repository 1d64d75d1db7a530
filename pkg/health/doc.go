/*
Package health implements the health gate a newly deployed environment
must clear before receiving traffic.

# Architecture

Each probe implements the Checker interface:

	┌──────────────────────────────────────────────┐
	│                Checker Interface             │
	│  • Check(ctx) Result                         │
	│  • Type() CheckType                          │
	└──────┬───────┬─────────┬──────────┬──────────┘
	       ▼       ▼         ▼          ▼
	   ┌──────┐┌──────┐┌──────────┐┌─────────┐┌──────────┐
	   │ HTTP ││ TCP  ││Readiness ││ Latency ││ Resource │
	   └──────┘└──────┘└──────────┘└─────────┘└──────────┘
	    GET /   dial    modules     K samples   CPU/mem
	    health  db      loaded      P95 < T     ceilings

The Gate fans the battery out as goroutines and joins them at an
aggregate deadline:

 1. Every probe gets its own per-attempt timeout and up to two retries
    with fixed backoff.
 2. A probe that fails its threshold is recorded "failed"; one that
    cannot execute at all (network unreachable, bad payload) is recorded
    "error". Both gate identically but are logged distinctly.
 3. Probes still pending when the budget elapses are recorded "failed"
    with a deadline message; a timeout never defaults to healthy.
 4. The verdict is healthy iff every mandatory probe passed. Advisory
    probes are retained in the verdict for observability only.

Probes are read-only with respect to the target: no state anywhere is
mutated by running a gate, so a gate can be re-run freely (and is, after
every traffic switch).
*/
package health
