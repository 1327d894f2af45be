// Command athier runs the sensitive-data enforcement service.
//
// Usage:
//
//	athier serve             start the HTTP API
//	athier migrate up        apply schema migrations
//	athier migrate down N    roll back N migrations
//	athier migrate version   print the schema version
//	athier seed [--file F]   create the default policies
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/config"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// cli carries the configuration and logger shared by every subcommand.
type cli struct {
	cfg    *config.Config
	logger *security.Logger
}

func rootCommand() *cobra.Command {
	rt := &cli{}
	cmd := &cobra.Command{
		Use:           "athier",
		Short:         "Policy-driven sensitive data enforcement service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			rt.cfg = cfg
			rt.logger = security.NewLoggerWithLevel(cfg.LogLevel)
			return nil
		},
	}
	cmd.AddCommand(serveCommand(rt))
	cmd.AddCommand(migrateCommand(rt))
	cmd.AddCommand(seedCommand(rt))
	return cmd
}
