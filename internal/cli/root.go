// Package cli provides the command-line interface for council.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/council-go/internal/config"
	"github.com/raphaelgruber/council-go/internal/council"
	"github.com/raphaelgruber/council-go/internal/db"
	"github.com/raphaelgruber/council-go/internal/editor"
	"github.com/raphaelgruber/council-go/internal/llm"
	"github.com/raphaelgruber/council-go/internal/metrics"
	"github.com/raphaelgruber/council-go/internal/publish"
	"github.com/raphaelgruber/council-go/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, logger and db client
	cfg        config.Config
	logger     *slog.Logger
	logCleanup func() error
	dbClient   *db.Client

	// Shared across pipeline commands
	collector = metrics.NewCollector()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "council",
	Short: "Multi-model drafting council with a human approval gate",
	Long: `Council orchestrates content-generation runs: several models draft in
parallel, critique each other's drafts, and a chair model synthesizes one
final document. Nothing reaches the target repository until a human claims
the run and approves it; approved output is committed atomically into a
versioned directory of the target git tree.

Runs are resumable: every stage is snapshotted, and a crashed or failed run
picks up where it left off.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)

		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCleanup != nil {
			_ = logCleanup()
		}
	},
}

// getOrchestrator wires the orchestrator from the loaded config. Commands
// that only decide on finished runs pass requireLLM=false and get a nil
// generator; they never reach a generation call.
func getOrchestrator(requireLLM bool, targetRoot string) (*council.Orchestrator, error) {
	ws, err := workspace.NewStore(cfg.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	var gen council.Generator
	if requireLLM {
		gen = llm.NewClient(cfg, logger)
	}

	pub := newWriter(targetRoot)
	ed := editor.New(cfg.Editor)

	return council.New(dbClient, gen, ws, pub, ed, collector, logger), nil
}

// newWriter builds the commit writer for the target repository, falling back
// to the configured target root.
func newWriter(targetRoot string) *publish.Writer {
	if targetRoot == "" {
		targetRoot = cfg.TargetRoot
	}
	return publish.NewWriter(targetRoot, publish.Git{}, dbClient, logger)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(deriveCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(usageCmd)
}
