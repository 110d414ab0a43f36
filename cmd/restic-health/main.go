// Package main is the entrypoint for the restic-health CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/MacJediWizard/restic-health/internal/check"
	"github.com/MacJediWizard/restic-health/internal/config"
	"github.com/MacJediWizard/restic-health/internal/restic"
	"github.com/MacJediWizard/restic-health/internal/state"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		verbose    bool
		skipStale  bool
	)

	cmd := &cobra.Command{
		Use:   "restic-health",
		Short: "Health checker for a fleet of restic repositories",
		Long: `restic-health drives the restic CLI to verify that every configured
repository is fresh and unlocked, then records diagnostic statistics as
timestamped state files for trend analysis and alerting.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, verbose, skipStale)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "/etc/restic-health.yml", "path to the configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVar(&skipStale, "skip-stale", false, "skip repositories without a fresh snapshot instead of failing")

	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("restic-health %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func run(configPath string, verbose, skipStale bool) error {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	client := restic.New(logger)
	store := state.New(cfg.StateDir, logger)
	policy := check.RetryPolicy{Retries: cfg.Retries(), Delay: cfg.RetryDelay()}
	orch := check.NewOrchestrator(client, store, policy, logger)
	fleet := check.NewFleet(orch, logger)

	if failed := fleet.Run(context.Background(), cfg.Targets(), skipStale); failed > 0 {
		return fmt.Errorf("%d repository check(s) failed", failed)
	}
	return nil
}
