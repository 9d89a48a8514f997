package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vespacore/servingcore/internal/fileconfig"
)

// newPrepareCommand stages an application package without making it
// visible to servingd: the generation is written under the config
// root's pending directory, awaiting a matching activate.
func newPrepareCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare <application-directory>",
		Short: "Validate and stage an application package for activation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mainStore, err := fileconfig.NewStore(flags.target)
			if err != nil {
				return fmt.Errorf("servingctl: open config root %q: %w", flags.target, err)
			}
			pending, err := fileconfig.NewStore(pendingRoot(flags.target))
			if err != nil {
				return fmt.Errorf("servingctl: open pending root: %w", err)
			}

			serial, err := nextSerial(mainStore)
			if err != nil {
				return err
			}
			snap, err := loadApplicationDirectory(args[0], serial)
			if err != nil {
				return fmt.Errorf("servingctl: validation failed: %w", err)
			}
			if err := pending.Publish(snap); err != nil {
				return fmt.Errorf("servingctl: stage generation %d: %w", serial, err)
			}

			fmt.Printf("Generation %d prepared; activate with: servingctl activate %d\n", serial, serial)
			return nil
		},
	}
	return cmd
}
