// Package rollback restores the previous known-good deployment after a
// failed release. The controller reads the deployment log for the last
// release that took traffic, resets the failed slot's spec to that
// revision, re-points traffic if the failed slot was active, and
// verifies the surviving slot with a health gate. If no healthy state
// can be restored it sets the fatal circuit breaker and returns
// ErrFatal: operator territory, never auto-retried.
package rollback
