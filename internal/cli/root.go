// Package cli implements ratingctl, the operator command line for the
// rating store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	service "github.com/okian/skillrank/internal/app"
	"github.com/okian/skillrank/internal/config"
	"github.com/okian/skillrank/pkg/logger"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	verbose     bool
	store       string
	sqlitePath  string
	postgresDSN string
	output      string
}

// Run executes ratingctl with args and reports the process exit code.
func Run(args []string, stdout, stderr io.Writer) ExitCode {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

// NewRootCmd builds the ratingctl command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:           "ratingctl",
		Short:         "Recalculate and inspect Glicko2 player ratings.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.InitWithWriter(cmd.ErrOrStderr(), logger.FormatPretty); err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			level := "warn"
			if g.verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "set debug logging level")
	flags.StringVar(&g.store, "store", "", "rating store driver (memory, sqlite, postgres); defaults to config")
	flags.StringVar(&g.sqlitePath, "sqlite-path", "", "SQLite database file; defaults to config")
	flags.StringVar(&g.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string; defaults to config")
	flags.StringVarP(&g.output, "output", "o", outputTable, "output format (table, json)")

	rootCmd.AddCommand(
		newRecalcCmd(g),
		newLeaderboardCmd(g),
		newHistoryCmd(g),
		newSeedCmd(g),
	)
	return rootCmd
}

// config loads the process configuration and applies flag overrides.
func (g *globals) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.store != "" {
		cfg.StoreDriver = g.store
	}
	if g.sqlitePath != "" {
		cfg.SQLitePath = g.sqlitePath
	}
	if g.postgresDSN != "" {
		cfg.PostgresDSN = g.postgresDSN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withService starts a service without the monthly scheduler, runs fn and
// stops it again.
func (g *globals) withService(ctx context.Context, fn func(*service.Service) error) (err error) {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	opts := append(service.OptionsFromConfig(cfg), service.WithScheduler(false, cfg.ScheduleHour))
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		if stopErr := svc.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = fmt.Errorf("failed to stop service: %w", stopErr)
		}
	}()
	return fn(svc)
}

func (g *globals) validateOutput() error {
	switch g.output {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("invalid output: %s", g.output)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
