package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/greenlight-sh/greenlight/pkg/api"
	"github.com/greenlight-sh/greenlight/pkg/deploy"
	"github.com/greenlight-sh/greenlight/pkg/events"
	"github.com/greenlight-sh/greenlight/pkg/ingress"
	"github.com/greenlight-sh/greenlight/pkg/log"
	"github.com/greenlight-sh/greenlight/pkg/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator API server",
	Long: `Run the Greenlight API server. CI systems submit releases over HTTP;
operators query state, cancel in-flight releases, and clear the fatal
flag through the same surface. Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := setup()
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		// Log every lifecycle event the orchestrator publishes
		sub := broker.Subscribe()
		go func() {
			logger := log.WithComponent("events")
			for event := range sub {
				logger.Info().
					Str("type", string(event.Type)).
					Str("environment", event.Metadata["environment"]).
					Msg(event.Message)
			}
		}()

		trigger := deploy.NewWebhookTrigger(cfg.Deployer.Endpoint, cfg.Deployer.Timeout.Std())
		router := ingress.NewHTTPRouter(cfg.Router.Endpoint, cfg.Router.Timeout.Std())
		orch := orchestrator.New(cfg, store, trigger, router, broker)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		server := api.NewServer(orch, store)
		return server.Start(ctx, cfg.ListenAddr)
	},
}
