package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vespacore/servingcore/internal/fileconfig"
)

// newDeployCommand combines prepare and activate into a single step,
// the common path for an interactive deploy of a local change.
func newDeployCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <application-directory>",
		Short: "Prepare and activate an application package in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := fileconfig.NewStore(flags.target)
			if err != nil {
				return fmt.Errorf("servingctl: open config root %q: %w", flags.target, err)
			}

			serial, err := nextSerial(store)
			if err != nil {
				return err
			}
			snap, err := loadApplicationDirectory(args[0], serial)
			if err != nil {
				return err
			}
			if err := store.Publish(snap); err != nil {
				return fmt.Errorf("servingctl: publish generation %d: %w", serial, err)
			}

			fmt.Printf("Generation %d deployed and activated\n", serial)
			return nil
		},
	}
	return cmd
}
