package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/internal/exitcode"
	"github.com/jopamo/tfs/internal/reporter"
	"github.com/jopamo/tfs/internal/undo"
)

var (
	undoJournalPath string
	undoJSON        bool
	undoDryRun      bool
	undoForce       bool
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse a previously applied transaction using its journal",
	RunE:  runUndo,
}

func init() {
	undoCmd.Flags().StringVar(&undoJournalPath, "journal", "", "journal file path (required)")
	undoCmd.Flags().BoolVar(&undoJSON, "json", false, "emit one JSON event per line to stdout")
	undoCmd.Flags().BoolVar(&undoDryRun, "dry-run", false, "simulate undo without mutating files or the journal")
	undoCmd.Flags().BoolVar(&undoForce, "force", false, "replay even if the journal lacks a commit marker")
	_ = undoCmd.MarkFlagRequired("journal")
	rootCmd.AddCommand(undoCmd)
}

func runUndo(_ *cobra.Command, _ []string) error {
	code, err := doUndo()
	lastExitCode = code
	return err
}

func doUndo() (int, error) {
	rep := reporter.New(os.Stdout, undoJSON, quiet)
	sink := rep.Sink()

	outcome, err := undo.Replay(undoJournalPath, undo.Options{DryRun: undoDryRun, Force: undoForce}, sink)
	if err != nil {
		if err == undo.ErrNotCommitted {
			logger("error: %v (pass --force to replay anyway)", err)
			return exitcode.PolicyFailure, nil
		}
		logger("error: %v", err)
		return exitcode.OperationalFailure, nil
	}

	if !quiet && !undoJSON {
		verb := "Reversed"
		if undoDryRun {
			verb = "Would reverse"
		}
		fmt.Printf("%s %d operation(s)", verb, len(outcome.Reversed))
		if len(outcome.Errors) > 0 {
			fmt.Printf(", %d error(s)", len(outcome.Errors))
		}
		fmt.Println(".")
		for id, msg := range outcome.Errors {
			fmt.Printf("  %s: %s\n", id, msg)
		}
	}

	if len(outcome.Errors) > 0 {
		return exitcode.OperationalFailure, nil
	}
	return exitcode.Success, nil
}
