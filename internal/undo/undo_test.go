package undo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jopamo/tfs/internal/journal"
	"github.com/jopamo/tfs/internal/model"
	"github.com/jopamo/tfs/internal/plan"
	"github.com/jopamo/tfs/internal/txn"
)

func runTransaction(t *testing.T, root string, ops ...model.Operation) string {
	t.Helper()
	p := &model.Plan{
		Root:            root,
		Transaction:     model.TransactionAll,
		CollisionPolicy: model.CollisionFail,
		SymlinkPolicy:   model.SymlinkError,
		Operations:      ops,
	}
	normalized, err := plan.Normalize(p)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	journalPath := filepath.Join(root, "journal.ndjson")
	jw, err := journal.Open(journalPath)
	if err != nil {
		t.Fatalf("journal.Open error: %v", err)
	}
	defer jw.Close()

	mgr := txn.New(p, jw, nil)
	if _, err := mgr.Run(normalized); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	return journalPath
}

func TestReplayReversesMove(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "in.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	journalPath := runTransaction(t, root, model.Operation{Kind: model.KindMove, Src: "in.txt", Dst: "out.txt"})

	outcome, err := Replay(journalPath, Options{}, nil)
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if len(outcome.Reversed) != 1 || len(outcome.Errors) != 0 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if _, err := os.Stat(filepath.Join(root, "in.txt")); err != nil {
		t.Errorf("undo did not restore in.txt: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "out.txt")); !os.IsNotExist(err) {
		t.Error("undo left out.txt in place")
	}
}

func TestReplayRefusesUncommittedJournalWithoutForce(t *testing.T) {
	root := t.TempDir()
	journalPath := filepath.Join(root, "journal.ndjson")
	jw, err := journal.Open(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := jw.Write(journal.Entry{ID: "1", Status: journal.StatusOk, Undo: &journal.Undo{Type: journal.UndoMove, OriginalSrc: "x"}}); err != nil {
		t.Fatal(err)
	}
	jw.Close()

	if _, err := Replay(journalPath, Options{}, nil); err != ErrNotCommitted {
		t.Errorf("Replay error = %v, want ErrNotCommitted", err)
	}

	if _, err := Replay(journalPath, Options{Force: true}, nil); err != nil {
		t.Errorf("Replay with Force returned error: %v", err)
	}
}

func TestReplayDryRunMutatesNothing(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "in.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	journalPath := runTransaction(t, root, model.Operation{Kind: model.KindMove, Src: "in.txt", Dst: "out.txt"})

	outcome, err := Replay(journalPath, Options{DryRun: true}, nil)
	if err != nil {
		t.Fatalf("Replay error: %v", err)
	}
	if len(outcome.Reversed) != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if _, err := os.Stat(filepath.Join(root, "out.txt")); err != nil {
		t.Error("dry-run undo mutated the filesystem")
	}

	entries, err := journal.Read(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Status == journal.StatusUndone {
			t.Error("dry-run undo wrote an undone record")
		}
	}
}

func TestReplaySkipsAlreadyUndone(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "in.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	journalPath := runTransaction(t, root, model.Operation{Kind: model.KindMove, Src: "in.txt", Dst: "out.txt"})

	if _, err := Replay(journalPath, Options{}, nil); err != nil {
		t.Fatalf("first Replay error: %v", err)
	}
	outcome, err := Replay(journalPath, Options{Force: true}, nil)
	if err != nil {
		t.Fatalf("second Replay error: %v", err)
	}
	if len(outcome.Reversed) != 0 {
		t.Errorf("second Replay re-reversed an already-undone entry: %+v", outcome)
	}
}
