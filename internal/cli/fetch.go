package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raysh454/rivalscope/internal/normalizer"
	"github.com/raysh454/rivalscope/internal/webclient"
)

func newFetchCommand(root *rootOptions) *cobra.Command {
	var (
		engine       string
		ignoreRobots bool
		fingerprint  bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one page and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			f, opts, err := a.Fetcher()
			if err != nil {
				return err
			}
			if engine != "" {
				opts.Engine = webclient.Client(engine)
			}
			if ignoreRobots {
				opts.IgnoreRobots = true
			}

			res := f.FetchPage(cmd.Context(), args[0], opts)
			var out any = res
			if fingerprint && res.OK() {
				out = struct {
					URL         string `json:"url"`
					StatusCode  int    `json:"statusCode"`
					LoadTimeMs  int64  `json:"loadTimeMs"`
					Fingerprint any    `json:"fingerprint"`
				}{res.URL, res.StatusCode, res.LoadTimeMs, normalizer.Normalize(res.HTML, res.ExtractedText)}
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !res.OK() {
				return fmt.Errorf("fetch %s: %s", args[0], res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "web client engine (nethttp or chromedp)")
	cmd.Flags().BoolVar(&ignoreRobots, "ignore-robots", false, "skip the robots.txt check")
	cmd.Flags().BoolVar(&fingerprint, "fingerprint", false, "print the normalized fingerprint instead of the raw page")
	return cmd
}
