// Package cmd defines and implements the CLI commands for the coordinator
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Control plane for a distributed web crawler",
		Long: `coordinator is the stateful control plane of a distributed crawler.
It owns the URL frontier, the visited index, per-domain politeness state,
and the run lifecycle. Stateless workers fetch pages and report back over
the HTTP API.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus COORDINATOR_* env)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
