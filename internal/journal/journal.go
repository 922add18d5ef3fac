// Package journal implements the append-only, line-delimited record of
// operation lifecycles that makes rollback and later undo possible from
// durable state alone.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/jopamo/tfs/internal/model"
)

// Status is a lifecycle transition for a journal entry.
type Status string

const (
	StatusStart     Status = "start"
	StatusOk        Status = "ok"
	StatusFail      Status = "fail"
	StatusUndone    Status = "undone"
	// StatusCommitted is the status stored in a journal's commit marker file
	// (see WriteCommitMarker) once a transaction runs to completion. It is
	// never appended to the journal itself and carries no operation id.
	StatusCommitted Status = "committed"
)

// UndoType identifies the variant of inverse metadata attached to an Ok
// entry.
type UndoType string

const (
	UndoMove              UndoType = "move"
	UndoCopy              UndoType = "copy"
	UndoMkdir             UndoType = "mkdir"
	UndoMoveWithOverwrite UndoType = "move_with_overwrite"
	UndoCopyWithOverwrite UndoType = "copy_with_overwrite"
	UndoOverwrite         UndoType = "overwrite"
)

// Undo is the tagged inverse-metadata variant recorded on a successful
// operation; it is sufficient to reverse the mutation using only the FS
// primitives, without access to the original plan.
type Undo struct {
	Type         UndoType `json:"type"`
	OriginalSrc  string   `json:"original_src,omitempty"`
	CreatedDst   string   `json:"created_dst,omitempty"`
	CreatedDir   string   `json:"created_dir,omitempty"`
	BackupPath   string   `json:"backup_path,omitempty"`
	WasDirectory bool     `json:"was_directory,omitempty"`
}

// Collision records the policy applied to a destination collision and its
// outcome.
type Collision struct {
	Policy     model.CollisionPolicy `json:"policy"`
	FinalDst   string                `json:"final_dst"`
	BackupPath string                `json:"backup_path,omitempty"`
}

// Entry is a single journal line.
type Entry struct {
	ID        string     `json:"id"`
	TS        time.Time  `json:"ts"`
	Op        model.OpKind `json:"op,omitempty"`
	Src       string     `json:"src,omitempty"`
	Dst       string     `json:"dst,omitempty"`
	Collision *Collision `json:"collision,omitempty"`
	Status    Status     `json:"status"`
	Undo      *Undo      `json:"undo,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Writer appends entries to a journal file, flushing each one to durable
// storage before returning. It keeps no buffering beyond the single
// in-flight write: every Write is immediately followed by Sync.
type Writer struct {
	file *os.File
	path string
}

// Open opens path for appending, creating it if necessary.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	return &Writer{file: f, path: path}, nil
}

// Path returns the journal file path this Writer appends to.
func (w *Writer) Path() string { return w.path }

// Write appends entry as one JSON line and fsyncs before returning.
func (w *Writer) Write(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal entry %s: %w", entry.ID, err)
	}
	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("journal: write entry %s: %w", entry.ID, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("journal: fsync after entry %s: %w", entry.ID, err)
	}
	return nil
}

// Close releases the underlying file handle.
func (w *Writer) Close() error {
	return w.file.Close()
}

// Read loads every entry from a journal file in order. Blank lines are
// tolerated; a malformed non-blank line is a hard error rather than being
// silently skipped.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("journal: %q line %d: malformed record: %w", path, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: reading %q: %w", path, err)
	}
	return entries, nil
}

// commitMarker is the payload written to a journal's commit marker file.
// It carries nothing Undo Replay needs beyond its own existence, but a
// timestamp makes the file useful for a human inspecting it by hand.
type commitMarker struct {
	Status Status    `json:"status"`
	TS     time.Time `json:"ts"`
}

// CommitMarkerPath returns the sidecar file path that records whether the
// transaction that produced journalPath ran to completion.
func CommitMarkerPath(journalPath string) string {
	return journalPath + ".committed"
}

// WriteCommitMarker atomically writes the commit marker for journalPath.
// It is written through atomic.WriteFile (write-to-temp, rename into
// place) rather than through the Writer's append+fsync path: the marker
// is a single whole-file document, not an append-only log, and a crash
// mid-write must never leave Undo Replay looking at a half-written file.
func WriteCommitMarker(journalPath string) error {
	body, err := json.Marshal(commitMarker{Status: StatusCommitted, TS: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("journal: marshal commit marker: %w", err)
	}
	if err := atomic.WriteFile(CommitMarkerPath(journalPath), bytes.NewReader(body)); err != nil {
		return fmt.Errorf("journal: writing commit marker for %q: %w", journalPath, err)
	}
	return nil
}

// IsCommitted reports whether journalPath's commit marker exists, meaning
// the transaction that produced it ran to completion rather than being
// interrupted mid-batch.
func IsCommitted(journalPath string) bool {
	_, err := os.Stat(CommitMarkerPath(journalPath))
	return err == nil
}
