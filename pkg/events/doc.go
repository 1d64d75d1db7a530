// Package events provides an in-process broker for release lifecycle
// events. Subscribers receive every event published after they
// subscribe; slow subscribers are skipped rather than blocking the
// orchestrator.
package events
