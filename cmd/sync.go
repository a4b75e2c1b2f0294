package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sfriedel/orgmirror/config"
	"github.com/sfriedel/orgmirror/internal/api"
	"github.com/sfriedel/orgmirror/internal/db"
	"github.com/sfriedel/orgmirror/internal/logging"
	"github.com/sfriedel/orgmirror/internal/sync"
)

var (
	syncOrg   string
	syncDB    string
	syncUntil string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one incremental collection pass",
	Long: `Run one collection pass: repositories first, then issues with their
comments, then pull requests with their comments, reviews, and review-request
timelines. Each resource resumes from its stored watermark.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if syncOrg != "" {
			cfg.Organization = syncOrg
		}
		if syncDB != "" {
			cfg.DatabasePath = syncDB
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger := logging.Setup(os.Stderr, cfg.LogLevel)
		ctx := cmd.Context()

		login, err := api.VerifyToken(ctx, cfg.GitHubToken)
		if err != nil {
			return err
		}
		logger.Info("authenticated", "login", login)

		database, err := db.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		if err := database.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		client := api.NewClient(api.NewExecutor(cfg.GitHubToken, logger))
		syncer := sync.New(database, client, cfg.TrackedProjects, logger)

		opts := sync.Options{}
		if syncUntil != "" {
			until, err := time.Parse(time.RFC3339, syncUntil)
			if err != nil {
				return fmt.Errorf("invalid --until value: %w", err)
			}
			opts.Until = until
		}

		start := time.Now()
		summary, err := syncer.RunCollection(ctx, cfg.Organization, opts)
		if err != nil {
			return err
		}

		logger.Info("sync completed",
			"org", cfg.Organization,
			"repositories", summary.Repositories,
			"issues", summary.Counts[sync.ResourceIssues],
			"pull_requests", summary.Counts[sync.ResourcePullRequests],
			"reviews", summary.Counts[sync.ResourceReviews],
			"comments", summary.Counts[sync.ResourceComments],
			"duration", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncOrg, "org", "o", "", "organization to mirror (overrides config)")
	syncCmd.Flags().StringVar(&syncDB, "db", "", "path to the SQLite database (overrides config)")
	syncCmd.Flags().StringVar(&syncUntil, "until", "", "upper bound on item timestamps, RFC 3339")
}
