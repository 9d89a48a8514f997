package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vespacore/servingcore/internal/fileconfig"
)

// newActivateCommand publishes a previously prepared generation into
// the config root servingd polls.
func newActivateCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate <generation>",
		Short: "Activate a previously prepared generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("servingctl: invalid generation %q: %w", args[0], err)
			}
			serial := fileconfig.SerialNum(n)

			pending, err := fileconfig.NewStore(pendingRoot(flags.target))
			if err != nil {
				return fmt.Errorf("servingctl: open pending root: %w", err)
			}
			snap, err := pending.Load(serial)
			if err != nil {
				return fmt.Errorf("servingctl: no prepared generation %d: %w", serial, err)
			}

			mainStore, err := fileconfig.NewStore(flags.target)
			if err != nil {
				return fmt.Errorf("servingctl: open config root %q: %w", flags.target, err)
			}
			if err := mainStore.Publish(snap); err != nil {
				return fmt.Errorf("servingctl: activate generation %d: %w", serial, err)
			}

			fmt.Printf("Generation %d activated\n", serial)
			return nil
		},
	}
	return cmd
}
