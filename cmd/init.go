package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/internal"
	"github.com/jopamo/tfs/internal/manifest"
)

var initOutPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter manifest file",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVar(&initOutPath, "out", internal.DefaultManifestFile, "path to write the starter manifest")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	if _, err := os.Stat(initOutPath); err == nil {
		return fmt.Errorf("%s already exists", initOutPath)
	}
	if err := os.WriteFile(initOutPath, []byte(manifest.Sample()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", initOutPath, err)
	}
	if !quiet {
		fmt.Printf("wrote starter manifest to %s\n", initOutPath)
	}
	return nil
}
