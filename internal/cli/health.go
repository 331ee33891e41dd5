package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raysh454/rivalscope/internal/inference"
)

func newHealthCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the configured inference backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.Backend()
			if err != nil {
				return err
			}
			report := inference.HealthCheck(cmd.Context(), b)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK {
				return fmt.Errorf("backend %s unhealthy: %s", report.Backend, report.Error)
			}
			return nil
		},
	}
}
