// Package reporter renders the structured event stream for human or JSON
// consumption, following the teacher's logger/printReport/printTable split:
// a stderr progress logger for plain runs, one JSON line per event on
// stdout in --json mode, and a buffered tabular summary otherwise.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/jopamo/tfs/internal/events"
)

// Reporter aggregates events as they occur and renders them either as
// JSON lines (as they arrive) or as a buffered summary (on demand).
type Reporter struct {
	out    io.Writer
	json   bool
	quiet  bool
	events []events.Event
}

// New creates a Reporter. out receives JSON event lines when json is true;
// it is otherwise unused (summary tables are rendered separately via
// PrintTable).
func New(out io.Writer, jsonMode, quiet bool) *Reporter {
	return &Reporter{out: out, json: jsonMode, quiet: quiet}
}

// Sink returns an events.Sink bound to this Reporter, suitable for passing
// into txn.Manager or undo.Replay. Emission never fails the transaction:
// an event that fails to marshal is silently not written as JSON, but is
// still recorded.
func (r *Reporter) Sink() events.Sink {
	return func(e events.Event) {
		if r.json {
			if line, err := json.Marshal(e); err == nil {
				fmt.Fprintln(r.out, string(line))
			}
		}
		r.events = append(r.events, e)
	}
}

// Events returns every event recorded so far.
func (r *Reporter) Events() []events.Event {
	return r.events
}

// Logger returns a stderr progress-line function, silenced when quiet is
// true — the same shape as the teacher's root-command logger.
func Logger(quiet bool) func(string, ...interface{}) {
	return func(format string, args ...interface{}) {
		if !quiet {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
}

// OpRow is one row of the human-readable apply/undo table.
type OpRow struct {
	ID  string
	Op  string
	Src string
	Dst string
}

// PrintTable renders rows using the teacher's rune-width column sizing and
// Unicode box-drawing separators.
func PrintTable(w io.Writer, rows []OpRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No operations.")
		return
	}

	opHeader, srcHeader, dstHeader := "Op", "Source", "Destination"
	opWidth, srcWidth, dstWidth := len(opHeader), len(srcHeader), len(dstHeader)

	for _, row := range rows {
		if n := utf8.RuneCountInString(row.Op); n > opWidth {
			opWidth = n
		}
		if n := utf8.RuneCountInString(shortPath(row.Src)); n > srcWidth {
			srcWidth = n
		}
		if n := utf8.RuneCountInString(shortPath(row.Dst)); n > dstWidth {
			dstWidth = n
		}
	}

	format := fmt.Sprintf("  %%-%ds  %%-%ds  %%-%ds\n", opWidth, srcWidth, dstWidth)
	sep := fmt.Sprintf("  %s  %s  %s\n", repeat("─", opWidth), repeat("─", srcWidth), repeat("─", dstWidth))

	fmt.Fprintf(w, format, opHeader, srcHeader, dstHeader)
	fmt.Fprint(w, sep)
	for _, row := range rows {
		fmt.Fprintf(w, format, row.Op, shortPath(row.Src), shortPath(row.Dst))
	}
}

// shortPath replaces the user's home directory prefix with ~ for brevity.
func shortPath(path string) string {
	if path == "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(home, abs)
	if err != nil || len(rel) > 1 && rel[:2] == ".." {
		return path
	}
	return filepath.Join("~", rel)
}

// repeat returns s repeated n times.
func repeat(s string, n int) string {
	result := ""
	for i := 0; i < n; i++ {
		result += s
	}
	return result
}
