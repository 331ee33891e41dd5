package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raysh454/rivalscope/internal/eval"
)

func newEvalCommand(root *rootOptions) *cobra.Command {
	var (
		scenarioID    string
		scenariosPath string
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score the classifier against the evaluation scenarios",
		Long: `eval runs the built-in scenarios (plus any loaded with --scenarios)
through the configured classifier and exits non-zero when one fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.Classifier()
			if err != nil {
				return err
			}
			h := eval.New(c, a.Logger)
			if scenariosPath != "" {
				extra, err := eval.LoadScenarios(scenariosPath)
				if err != nil {
					return err
				}
				if err := h.Add(extra...); err != nil {
					return err
				}
			}

			var results []eval.TestResult
			if scenarioID != "" {
				res, err := h.RunScenario(cmd.Context(), scenarioID)
				if err != nil {
					return err
				}
				results = []eval.TestResult{res}
			} else {
				results = h.RunAll(cmd.Context())
			}
			report := eval.Summarize(results)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "backend: %s\n", c.Backend())
				for _, r := range report.Results {
					status := "PASS"
					if !r.Passed {
						status = "FAIL"
					}
					line := fmt.Sprintf("%s  %-28s %.2f", status, r.ScenarioID, r.Accuracy)
					if len(r.Mismatches) > 0 {
						line += "  " + strings.Join(r.Mismatches, "; ")
					}
					if r.Error != "" {
						line += "  error: " + r.Error
					}
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "%d/%d passed, average accuracy %.2f\n", report.Passed, report.Total, report.AverageAccuracy)
			}

			if report.Failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", report.Failed, report.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioID, "scenario", "", "run only this scenario id")
	cmd.Flags().StringVar(&scenariosPath, "scenarios", "", "YAML file with extra scenarios")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
