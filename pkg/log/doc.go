/*
Package log provides structured logging for Greenlight built on zerolog.

Call Init once at startup, then use the global Logger or the With* helpers
to create child loggers carrying standard fields:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	logger := log.WithComponent("orchestrator")
	logger.Info().Str("tag", "v2").Msg("release accepted")

Console output (human-readable, colored) is the default; JSON output is
intended for production where logs are shipped to an aggregator.
*/
package log
