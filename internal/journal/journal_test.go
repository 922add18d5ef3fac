package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jopamo/tfs/internal/model"
)

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	entries := []Entry{
		{ID: "1", Op: model.KindMove, Status: StatusStart},
		{ID: "1", Op: model.KindMove, Status: StatusOk, Undo: &Undo{Type: UndoMove, OriginalSrc: "/a"}},
	}
	for _, e := range entries {
		if err := w.Write(e); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Read returned %d entries, want 2", len(got))
	}
	if got[1].Undo == nil || got[1].Undo.Type != UndoMove {
		t.Errorf("round-tripped undo metadata lost: %+v", got[1])
	}
}

func TestReadToleratesBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	content := "{\"id\":\"1\",\"status\":\"start\"}\n\n{\"id\":\"1\",\"status\":\"ok\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}

	entries, err := Read(path)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Read returned %d entries, want 2", len(entries))
	}
}

func TestReadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	if err := os.WriteFile(path, []byte("not json\n"), 0o640); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); err == nil {
		t.Error("Read accepted a malformed line")
	}
}

func TestCommitMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	if err := os.WriteFile(path, nil, 0o640); err != nil {
		t.Fatal(err)
	}

	if IsCommitted(path) {
		t.Error("IsCommitted reported true before the marker was written")
	}
	if err := WriteCommitMarker(path); err != nil {
		t.Fatalf("WriteCommitMarker error: %v", err)
	}
	if !IsCommitted(path) {
		t.Error("IsCommitted reported false after the marker was written")
	}
}
