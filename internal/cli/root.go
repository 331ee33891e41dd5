// Package cli is the rivalscope command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raysh454/rivalscope/internal/app"
)

// DefaultConfigPath is read when --config is not given. A missing file
// means defaults plus environment.
const DefaultConfigPath = "rivalscope.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the command tree. Output goes to the command's
// out writer, logs to its err writer.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "rivalscope",
		Short: "Watch competitor pages and classify what changed",
		Long: `rivalscope fetches competitor pages politely, fingerprints them and
classifies differences between snapshots (pricing, features, messaging,
product, integration) with a hosted or local inference backend.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", DefaultConfigPath, "config file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newFetchCommand(opts),
		newCheckCommand(opts),
		newEvalCommand(opts),
		newHealthCommand(opts),
	)
	return root
}

// Execute runs the command tree against os.Args, cancelling on SIGINT or
// SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *rootOptions) application(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return app.NewApplication(cfg, cmd.ErrOrStderr())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
