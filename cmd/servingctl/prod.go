package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vespacore/servingcore/internal/fileconfig"
)

// newProdCommand groups the production-specific subcommands: init
// scaffolds a new application directory, submit deploys one to a
// named zone.
func newProdCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prod",
		Short: "Production application package commands",
	}
	cmd.AddCommand(newProdInitCommand(), newProdSubmitCommand(flags))
	return cmd
}

func newProdInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init <application-directory>",
		Short: "Scaffold a new application directory with empty config files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("servingctl: create application directory: %w", err)
			}
			for _, name := range applicationFiles {
				path := filepath.Join(dir, string(name))
				if _, err := os.Stat(path); err == nil {
					continue
				}
				if err := os.WriteFile(path, []byte("# "+string(name)+"\n"), 0o644); err != nil {
					return fmt.Errorf("servingctl: write %s: %w", name, err)
				}
			}
			deploymentPath := filepath.Join(dir, "deployment.yaml")
			if _, err := os.Stat(deploymentPath); os.IsNotExist(err) {
				if err := os.WriteFile(deploymentPath, []byte("zones:\n  - prod.us-east-1\n"), 0o644); err != nil {
					return fmt.Errorf("servingctl: write deployment.yaml: %w", err)
				}
			}
			fmt.Printf("Initialized application directory: %s\n", dir)
			return nil
		},
	}
}

func newProdSubmitCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <application-directory>",
		Short: "Submit an application package to a production zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.zone == "" {
				return fmt.Errorf("servingctl: prod submit requires --zone")
			}

			desc, err := loadDeploymentDescriptor(args[0])
			if err != nil {
				return err
			}
			if !desc.allowsZone(flags.zone) {
				return fmt.Errorf("servingctl: zone %q is not listed in deployment.yaml", flags.zone)
			}

			zoneRoot := filepath.Join(flags.target, "zones", flags.zone)
			store, err := fileconfig.NewStore(zoneRoot)
			if err != nil {
				return fmt.Errorf("servingctl: open zone config root: %w", err)
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
				return fmt.Errorf("servingctl: submit generation %d to zone %s: %w", serial, flags.zone, err)
			}

			fmt.Printf("Generation %d submitted to zone %s\n", serial, flags.zone)
			return nil
		},
	}
}
