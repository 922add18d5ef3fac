package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jopamo/tfs/internal/model"
)

func newPlan(root string, ops ...model.Operation) *model.Plan {
	return &model.Plan{
		Root:            root,
		Transaction:     model.TransactionAll,
		CollisionPolicy: model.CollisionFail,
		SymlinkPolicy:   model.SymlinkError,
		Operations:      ops,
	}
}

func TestNormalizeAssignsIDsAndResolvesPaths(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "in.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newPlan(root, model.Operation{Kind: model.KindMove, Src: "in.txt", Dst: "out.txt"})

	got, err := Normalize(p)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Normalize returned %d ops, want 1", len(got))
	}
	if got[0].ID == "" {
		t.Error("NormalizedOp has an empty id")
	}
	if got[0].ResolvedSrc == "" || got[0].ResolvedDst == "" {
		t.Errorf("unresolved paths: %+v", got[0])
	}
}

func TestNormalizeIsDeterministicAcrossCalls(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "in.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := newPlan(root, model.Operation{Kind: model.KindMove, Src: "in.txt", Dst: "out.txt"})

	first, err := Normalize(p)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Normalize(p)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].ResolvedSrc != second[0].ResolvedSrc || first[0].ResolvedDst != second[0].ResolvedDst {
		t.Error("resolved paths differ between calls")
	}
	if first[0].ID == second[0].ID {
		t.Error("ids should vary between calls")
	}
}

func TestNormalizeMissingAncestors(t *testing.T) {
	root := t.TempDir()
	p := newPlan(root, model.Operation{Kind: model.KindMkdir, Dst: "a/b/c", Parents: true})

	got, err := Normalize(p)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if len(got[0].Parents) != 2 {
		t.Fatalf("Parents = %v, want 2 missing ancestors (a, a/b)", got[0].Parents)
	}
	// Outermost first.
	if filepath.Base(got[0].Parents[0]) != "a" {
		t.Errorf("Parents[0] = %q, want basename \"a\"", got[0].Parents[0])
	}
}

func TestPreflightRejectsMissingSource(t *testing.T) {
	root := t.TempDir()
	p := newPlan(root, model.Operation{Kind: model.KindMove, Src: "missing.txt", Dst: "out.txt"})

	if err := Preflight(p); err == nil {
		t.Error("Preflight accepted a plan referencing a missing source")
	}
}

func TestPreflightRejectsSymlinkUnderErrorPolicy(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	p := newPlan(root, model.Operation{Kind: model.KindMove, Src: "link.txt", Dst: "out.txt"})
	p.SymlinkPolicy = model.SymlinkError

	if err := Preflight(p); err == nil {
		t.Error("Preflight accepted a symlink source under the error policy")
	}
}

func TestPreflightSkipsMkdir(t *testing.T) {
	root := t.TempDir()
	p := newPlan(root, model.Operation{Kind: model.KindMkdir, Dst: "newdir"})

	if err := Preflight(p); err != nil {
		t.Errorf("Preflight rejected a plan with only a Mkdir operation: %v", err)
	}
}
