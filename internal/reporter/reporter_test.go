package reporter

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/jopamo/tfs/internal/events"
)

func TestSinkRecordsAndEmitsJSON(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, true, false)
	sink := r.Sink()

	sink(events.Event{Type: events.OpCompleted, OpID: "1"})

	if len(r.Events()) != 1 {
		t.Fatalf("Events() returned %d entries, want 1", len(r.Events()))
	}
	if !strings.Contains(out.String(), "op_completed") {
		t.Errorf("JSON output missing event type: %q", out.String())
	}
}

func TestSinkSuppressesJSONWhenDisabled(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, false, false)
	sink := r.Sink()
	sink(events.Event{Type: events.OpCompleted})

	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
	if len(r.Events()) != 1 {
		t.Error("event should still be recorded even without JSON mode")
	}
}

func TestPrintTableEmptyRows(t *testing.T) {
	var out bytes.Buffer
	PrintTable(&out, nil)
	if !strings.Contains(out.String(), "No operations.") {
		t.Errorf("expected placeholder text, got %q", out.String())
	}
}

func TestPrintTableRendersRows(t *testing.T) {
	var out bytes.Buffer
	PrintTable(&out, []OpRow{{ID: "1", Op: "move", Src: "/a", Dst: "/b"}})
	s := out.String()
	if !strings.Contains(s, "move") || !strings.Contains(s, "/a") || !strings.Contains(s, "/b") {
		t.Errorf("table missing expected content: %q", s)
	}
}

func TestLoggerQuietSuppressesOutput(t *testing.T) {
	// Logger writes to os.Stderr directly, so capture it through a pipe.
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stderr
	os.Stderr = w
	Logger(true)("unreachable %s", "message")
	Logger(false)("reachable %s", "message")
	os.Stderr = orig
	w.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if strings.Contains(got, "unreachable") {
		t.Errorf("quiet logger wrote output: %q", got)
	}
	if !strings.Contains(got, "reachable message") {
		t.Errorf("non-quiet logger output missing: %q", got)
	}
}
