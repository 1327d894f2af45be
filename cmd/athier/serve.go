package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/database"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/handlers"
)

const shutdownTimeout = 15 * time.Second

func serveCommand(rt *cli) *cobra.Command {
	var migrate, seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := rt.logger

			if migrate {
				if err := withMigrator(rt, func(mg *database.Migrator) error {
					version, err := mg.Up()
					if err == nil {
						logger.Info(fmt.Sprintf("Schema at version %d", version))
					}
					return err
				}); err != nil {
					return err
				}
			}

			st, err := buildStack(ctx, rt)
			if err != nil {
				return err
			}
			defer func() {
				if err := st.Close(); err != nil {
					logger.Error("Shutdown left resources open", err)
				}
			}()

			if seed {
				if _, _, err := seedPolicies(ctx, st.policies, rt.cfg.PolicySeedFile); err != nil {
					return err
				}
			}

			app, stopLimiter := handlers.NewApp(handlers.Deps{
				Analyzer:   st.pipeline,
				Policies:   st.policies,
				Alerts:     st.alerts,
				Audit:      st.audit,
				Reports:    st.alerts,
				DB:         st.pool,
				Gatherer:   st.registry,
				Logger:     logger,
				Config:     st.security,
				AdminToken: rt.cfg.AdminToken,
			})
			defer stopLimiter()
			if rt.cfg.AdminToken == "" {
				logger.Warn("ADMIN_TOKEN is not set; administrative routes are unauthenticated")
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info(fmt.Sprintf("Listening on :%s", rt.cfg.Port))
				errCh <- app.Listen(":" + rt.cfg.Port)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server stopped: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.ShutdownWithContext(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations before serving")
	cmd.Flags().BoolVar(&seed, "seed", true, "Create missing default policies before serving")
	return cmd
}
