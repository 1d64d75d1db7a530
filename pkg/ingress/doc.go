/*
Package ingress implements the traffic switch between the blue and green
environments.

SwitchTo is a single logical operation from the caller's perspective:
route the new slot to 100, drain the old slot to 0, then record the new
active slot in the store. It is idempotent: switching to the already
active slot calls nothing. If the routing update fails, the store's
active flag is never touched, so the orchestrator cannot advance on a
failed switch.

The contract deliberately does not promise instantaneous propagation;
the orchestrator runs a post-switch health re-check instead of trusting
the router.
*/
package ingress
