package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ckg/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a CKG workspace",
	Long:  "Creates a .ckg/ directory with the default configuration under --dir.",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := config.WriteDefault(dirFlag)
	if err != nil {
		if path != "" {
			// Already initialized is success: init stays idempotent.
			fmt.Printf("CKG already initialized, configuration at %s\n", path)
			return nil
		}
		return err
	}
	fmt.Printf("CKG initialized, configuration written to %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'ckg ingest --repo <ref> --root <path>' to build a snapshot")
	fmt.Println("  2. Run 'ckg search <query>' against it")
	return nil
}
