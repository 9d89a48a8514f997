package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vespacore/servingcore/internal/fileconfig"
)

// newStatusCommand lists every published generation and highlights
// the most recently activated one.
func newStatusCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show published configuration generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := fileconfig.NewStore(flags.target)
			if err != nil {
				return fmt.Errorf("servingctl: open config root %q: %w", flags.target, err)
			}
			serials, err := store.List()
			if err != nil {
				return fmt.Errorf("servingctl: list generations: %w", err)
			}
			if len(serials) == 0 {
				fmt.Println("No generations published")
				return nil
			}

			fmt.Printf("%-12s %s\n", "GENERATION", "PUBLISHED")
			for _, serial := range serials {
				snap, err := store.Load(serial)
				if err != nil {
					fmt.Printf("%-12d %s\n", serial, "unreadable")
					continue
				}
				fmt.Printf("%-12d %s\n", serial, snap.PublishedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("\nActive generation: %d\n", serials[len(serials)-1])
			return nil
		},
	}
	return cmd
}
