package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenlight-sh/greenlight/pkg/config"
	"github.com/greenlight-sh/greenlight/pkg/deploy"
	"github.com/greenlight-sh/greenlight/pkg/events"
	"github.com/greenlight-sh/greenlight/pkg/ingress"
	"github.com/greenlight-sh/greenlight/pkg/orchestrator"
	"github.com/greenlight-sh/greenlight/pkg/types"
)

var releaseCmd = &cobra.Command{
	Use:   "release ENVIRONMENT",
	Short: "Submit a release to the given environment",
	Long: `Submit a release and block until it reaches a terminal state.

Examples:
  # Release v2 to the blue slot
  greenlight release blue --tag v2

  # Release on behalf of a CI pipeline
  greenlight release green --tag v3 --by ci-pipeline`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		by, _ := cmd.Flags().GetString("by")
		if by == "" {
			if u, err := user.Current(); err == nil {
				by = u.Username
			} else {
				by = "operator"
			}
		}

		cfg, store, err := setup()
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		trigger := deploy.NewWebhookTrigger(cfg.Deployer.Endpoint, cfg.Deployer.Timeout.Std())
		router := ingress.NewHTTPRouter(cfg.Router.Endpoint, cfg.Router.Timeout.Std())
		orch := orchestrator.New(cfg, store, trigger, router, broker)

		rec, err := orch.SubmitRelease(context.Background(), types.ReleaseRequest{
			TargetEnvironment: types.EnvironmentName(args[0]),
			ImageTag:          tag,
			RequestedBy:       by,
		})
		if rec != nil {
			fmt.Printf("Outcome: %s\n", rec.Outcome)
			fmt.Printf("  %s\n", rec.Summary)
		}
		if err != nil {
			return err
		}
		if rec.Outcome != types.OutcomeSwitched {
			return fmt.Errorf("release did not switch (outcome: %s)", rec.Outcome)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current environment state",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := setup()
		if err != nil {
			return err
		}
		defer store.Close()

		envs, err := store.ListEnvironments()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tIMAGE TAG\tREVISION\tACTIVE\tLAST HEALTHY")
		for _, env := range envs {
			lastHealthy := "-"
			if env.LastHealthyAt != nil {
				lastHealthy = env.LastHealthyAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
				env.Name, orDash(env.ImageTag), orDash(env.RevisionID), env.Active, lastHealthy)
		}
		w.Flush()

		if fatal, reason, err := store.Fatal(); err == nil && fatal {
			fmt.Printf("\nFATAL: %s\n", reason)
			fmt.Println("Run 'greenlight clear-fatal' after manual remediation.")
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show deployment history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		_, store, err := setup()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.ListRecords(limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FINISHED\tENVIRONMENT\tTAG\tOUTCOME\tSUMMARY")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.FinishedAt.Format(time.RFC3339),
				rec.Request.TargetEnvironment,
				rec.Request.ImageTag,
				rec.Outcome,
				rec.Summary)
		}
		return w.Flush()
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the in-flight release on a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		// Cancellation targets the serving process, not this one
		url := fmt.Sprintf("http://%s/v1/cancel", cfg.ListenAddr)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			return fmt.Errorf("failed to reach server at %s: %w", cfg.ListenAddr, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("no cancellable release in flight (HTTP %d)", resp.StatusCode)
		}
		fmt.Println("✓ Cancellation requested; the release will roll back")
		return nil
	},
}

var clearFatalCmd = &cobra.Command{
	Use:   "clear-fatal",
	Short: "Clear the fatal state after manual remediation",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := setup()
		if err != nil {
			return err
		}
		defer store.Close()

		fatal, reason, err := store.Fatal()
		if err != nil {
			return err
		}
		if !fatal {
			fmt.Println("System is not in fatal state; nothing to clear.")
			return nil
		}

		if err := store.ClearFatal(); err != nil {
			return err
		}
		fmt.Printf("✓ Fatal state cleared (was: %s)\n", reason)
		return nil
	},
}

func init() {
	releaseCmd.Flags().String("tag", "", "Image tag to release")
	releaseCmd.Flags().String("by", "", "Who requested the release (defaults to current user)")
	_ = releaseCmd.MarkFlagRequired("tag")

	historyCmd.Flags().Int("limit", 20, "Maximum number of records to show (0 = all)")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
