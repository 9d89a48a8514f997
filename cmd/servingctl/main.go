// Package main is servingctl, the external command-line surface for
// publishing application packages: deploy, prepare, activate, prod
// init/submit, and status. It never talks to the serving daemon
// directly — it reads and writes the same on-disk configuration
// snapshot directory servingd's file config source polls.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags carries the persistent flags every subcommand shares.
type globalFlags struct {
	zone     string
	logLevel string
	target   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "servingctl",
		Short: "Publish and inspect serving-path application configuration",
		Long:  "servingctl prepares, activates, and inspects configuration generations for the serving-path daemon.",
	}

	root.PersistentFlags().StringVar(&flags.zone, "zone", "", "target deployment zone (e.g. prod.us-east-1)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.target, "target", envOr("SERVINGCTL_TARGET", "./data/config"), "config root the daemon polls")

	root.AddCommand(
		newDeployCommand(flags),
		newPrepareCommand(flags),
		newActivateCommand(flags),
		newStatusCommand(flags),
		newProdCommand(flags),
	)

	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
