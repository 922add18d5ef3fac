// Package cmd implements the CLI commands for tfs.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/internal/reporter"
)

var (
	verbose bool
	quiet   bool
	version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:     "tfs",
	Short:   "Transactional filesystem operation engine",
	Long: "tfs executes a batch of filesystem mutations declared in a manifest\n" +
		"as a single transactional unit, producing a durable, replayable\n" +
		"journal that permits exact, ordered undo.",
	Version: version,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return lastExitCode
}

// lastExitCode is set by subcommands that need to report an exit code
// other than 0/1 (cobra's RunE only distinguishes error/no-error). Subcommands
// set it just before returning their RunE result.
var lastExitCode int

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all non-error output")
}

// logger prints a formatted message to stderr unless quiet mode is enabled.
func logger(format string, args ...interface{}) {
	reporter.Logger(quiet)(format, args...)
}
