package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawl-coordinator/internal/config"
	"github.com/JakeFAU/crawl-coordinator/internal/server"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP API and
// the embedded maintenance ticker until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}

			if err := app.Run(cmd.Context()); err != nil {
				return fmt.Errorf("run server: %w", err)
			}
			return nil
		},
	}
}
