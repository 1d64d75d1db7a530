// Package api exposes the release orchestrator over HTTP. CI systems
// submit releases with POST /v1/releases and block until the run
// reaches a terminal state; operators inspect state and history, cancel
// in-flight releases, and clear the fatal flag. Prometheus metrics are
// served on /metrics.
package api
