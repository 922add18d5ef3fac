package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/internal"
	"github.com/jopamo/tfs/internal/events"
	"github.com/jopamo/tfs/internal/exitcode"
	"github.com/jopamo/tfs/internal/journal"
	"github.com/jopamo/tfs/internal/manifest"
	"github.com/jopamo/tfs/internal/model"
	"github.com/jopamo/tfs/internal/plan"
	"github.com/jopamo/tfs/internal/reporter"
	"github.com/jopamo/tfs/internal/txn"
)

var (
	applyManifestPath string
	applyValidateOnly bool
	applyDryRun       bool
	applyJSON         bool
	applyJournalPath  string
	applyCollision    string
	applyRoot         string
	applyAllowOverw   bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Validate, preview, or execute a filesystem transaction",
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyManifestPath, "manifest", "", "path to manifest file (required)")
	applyCmd.Flags().BoolVar(&applyValidateOnly, "validate-only", false, "validate the manifest and exit without executing")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "simulate execution without mutating files or writing the journal")
	applyCmd.Flags().BoolVar(&applyJSON, "json", false, "emit one JSON event per line to stdout")
	applyCmd.Flags().StringVar(&applyJournalPath, "journal", "", "journal file path (default: <root>/.tfs/journal.ndjson)")
	applyCmd.Flags().StringVar(&applyCollision, "collision-policy", "", "override the manifest's collision policy")
	applyCmd.Flags().StringVar(&applyRoot, "root", "", "override the manifest's root directory")
	applyCmd.Flags().BoolVar(&applyAllowOverw, "allow-overwrite", false, "allow the overwrite_with_backup collision policy")
	_ = applyCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(applyCmd)
}

func runApply(_ *cobra.Command, _ []string) error {
	code, err := doApply()
	lastExitCode = code
	return err
}

func doApply() (int, error) {
	p, err := manifest.Load(applyManifestPath)
	if err != nil {
		logger("error: %v", err)
		return exitcode.PolicyFailure, nil
	}

	if applyRoot != "" {
		p.Root = applyRoot
	}
	if applyCollision != "" {
		p.CollisionPolicy = model.CollisionPolicy(applyCollision)
	}
	if applyAllowOverw {
		p.AllowOverwrite = true
	}

	if err := manifest.Validate(p); err != nil {
		logger("error: invalid manifest: %v", err)
		return exitcode.PolicyFailure, nil
	}

	rep := reporter.New(os.Stdout, applyJSON, quiet)
	sink := rep.Sink()

	normalized, err := plan.Normalize(p)
	if err != nil {
		logger("error: %v", err)
		return exitcode.PolicyFailure, nil
	}

	if err := plan.Preflight(p); err != nil {
		logger("error: %v", err)
		return exitcode.PolicyFailure, nil
	}

	if applyValidateOnly {
		events.Emit(sink, events.Event{Type: events.PlanValidated})
		logger("manifest is valid (%d operation(s))", len(normalized))
		return exitcode.Success, nil
	}

	if applyDryRun {
		rows := make([]reporter.OpRow, 0, len(normalized))
		for _, op := range normalized {
			events.Emit(sink, events.Event{Type: events.OpPlanned, OpID: op.ID, OpKind: op.Op.Kind, Src: op.ResolvedSrc, Dst: op.ResolvedDst})
			rows = append(rows, reporter.OpRow{ID: op.ID, Op: string(op.Op.Kind), Src: op.ResolvedSrc, Dst: op.ResolvedDst})
		}
		events.Emit(sink, events.Event{Type: events.TxnCommitted})
		if !quiet && !applyJSON {
			fmt.Println("--- Dry Run ---")
			reporter.PrintTable(os.Stdout, rows)
			fmt.Printf("\n%d operation(s) would be applied.\n", len(rows))
		}
		return exitcode.Success, nil
	}

	journalPath := applyJournalPath
	if journalPath == "" {
		journalPath = filepath.Join(p.Root, internal.DefaultJournalDir, internal.DefaultJournalFile)
	}
	if err := os.MkdirAll(filepath.Dir(journalPath), internal.DefaultDirPerms); err != nil {
		logger("error: creating journal directory: %v", err)
		return exitcode.OperationalFailure, nil
	}

	jw, err := journal.Open(journalPath)
	if err != nil {
		logger("error: opening journal: %v", err)
		return exitcode.OperationalFailure, nil
	}
	defer jw.Close()

	mgr := txn.New(p, jw, sink)
	result, runErr := mgr.Run(normalized)

	if !quiet && !applyJSON {
		rows := make([]reporter.OpRow, 0, len(result.Applied))
		for _, e := range result.Applied {
			rows = append(rows, reporter.OpRow{ID: e.ID, Op: string(e.Op), Src: e.Src, Dst: e.Dst})
		}
		reporter.PrintTable(os.Stdout, rows)
		fmt.Printf("\nApplied %d operation(s), %d failed.\n", len(result.Applied), len(result.Failed))
	}

	if runErr != nil {
		if result.RolledBack {
			logger("transaction failed, rolled back: %v", runErr)
			return exitcode.TransactionalFailure, nil
		}
		logger("error: %v", runErr)
		return exitcode.OperationalFailure, nil
	}

	if len(result.Failed) > 0 {
		logger("%d operation(s) failed in op mode; see journal/events for detail", len(result.Failed))
	}

	return exitcode.Success, nil
}
