package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/config"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/services"
)

func seedCommand(rt *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default policies that do not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = rt.cfg.PolicySeedFile
			}
			st, err := buildStack(cmd.Context(), rt)
			if err != nil {
				return err
			}
			defer st.Close()

			created, skipped, err := seedPolicies(cmd.Context(), st.policies, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, skipped %d\n", created, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed file (defaults to POLICY_SEED_FILE, then the built-in policies)")
	return cmd
}

func seedPolicies(ctx context.Context, policies *services.PolicyService, file string) (created, skipped int, err error) {
	inputs, err := config.LoadPolicies(file)
	if err != nil {
		return 0, 0, err
	}
	return policies.Seed(ctx, inputs, models.Actor{User: config.SeedUser})
}
