// Package undo implements Undo Replay: reading a committed journal and
// applying its recorded inverses in reverse order, appending new "undone"
// records to the same journal.
package undo

import (
	"fmt"

	"github.com/jopamo/tfs/internal/events"
	"github.com/jopamo/tfs/internal/fsops"
	"github.com/jopamo/tfs/internal/journal"
)

// ErrNotCommitted is returned when a journal has no commit marker file
// (see journal.CommitMarkerPath), meaning the transaction that produced it may have crashed
// mid-batch rather than completing. Pass Force to Replay to proceed anyway.
var ErrNotCommitted = fmt.Errorf("journal has no commit marker; transaction may be incomplete")

// Options controls a Replay invocation.
type Options struct {
	// DryRun performs no mutation and writes no new journal records; it
	// still reports, via sink, what each inverse would do.
	DryRun bool
	// Force proceeds even if the journal lacks a commit marker.
	Force bool
}

// Outcome summarizes what Replay did.
type Outcome struct {
	// Reversed holds the ids of every entry whose inverse was applied.
	Reversed []string
	// Errors maps an entry id to the error encountered reversing it; a
	// rollback continues past failures, so this may be non-empty even when
	// Reversed also has entries.
	Errors map[string]string
}

// Replay reads the journal at path and reverses every eligible entry — one
// with status "ok", a non-null undo, and not already "undone" — in reverse
// journal order. Entries with any other status are skipped.
func Replay(path string, opts Options, sink events.Sink) (*Outcome, error) {
	entries, err := journal.Read(path)
	if err != nil {
		return nil, err
	}

	if !journal.IsCommitted(path) && !opts.Force {
		return nil, ErrNotCommitted
	}

	events.Emit(sink, events.Event{Type: events.UndoStarted})

	undone := map[string]bool{}
	for _, e := range entries {
		if e.Status == journal.StatusUndone {
			undone[e.ID] = true
		}
	}

	outcome := &Outcome{Errors: map[string]string{}}

	var writer *journal.Writer
	if !opts.DryRun {
		writer, err = journal.Open(path)
		if err != nil {
			return nil, err
		}
		defer writer.Close()
	}

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Status != journal.StatusOk || entry.Undo == nil || undone[entry.ID] {
			continue
		}

		if opts.DryRun {
			events.Emit(sink, events.Event{Type: events.OpPlanned, OpID: entry.ID, OpKind: entry.Op, Src: entry.Dst, Dst: entry.Undo.OriginalSrc})
			outcome.Reversed = append(outcome.Reversed, entry.ID)
			continue
		}

		if err := applyInverse(entry.Undo, entry.Dst); err != nil {
			outcome.Errors[entry.ID] = err.Error()
			events.Emit(sink, events.Event{Type: events.OpFailed, OpID: entry.ID, OpKind: entry.Op, Error: err.Error()})
			continue
		}

		if err := writer.Write(journal.Entry{
			ID:     entry.ID,
			TS:     entry.TS,
			Op:     entry.Op,
			Src:    entry.Src,
			Dst:    entry.Dst,
			Status: journal.StatusUndone,
		}); err != nil {
			return outcome, err
		}

		outcome.Reversed = append(outcome.Reversed, entry.ID)
		events.Emit(sink, events.Event{Type: events.OpCompleted, OpID: entry.ID, OpKind: entry.Op})
	}

	events.Emit(sink, events.Event{Type: events.UndoCompleted})
	return outcome, nil
}

// applyInverse mirrors txn.applyUndo; it is duplicated rather than shared
// because undo replay works purely from journal data (no in-memory Manager
// state) while rollback works from the Manager's applied list — see
// DESIGN.md for why the two are kept as separate, equally small functions
// instead of forcing a shared abstraction across packages that otherwise
// have no reason to depend on each other.
func applyInverse(u *journal.Undo, dst string) error {
	switch u.Type {
	case journal.UndoMove:
		_, err := fsops.Mv(dst, u.OriginalSrc, false)
		return err
	case journal.UndoMoveWithOverwrite:
		if _, err := fsops.Mv(dst, u.OriginalSrc, false); err != nil {
			return err
		}
		_, err := fsops.Mv(u.BackupPath, dst, false)
		return err
	case journal.UndoCopy:
		return fsops.Remove(u.CreatedDst, u.WasDirectory)
	case journal.UndoCopyWithOverwrite:
		if err := fsops.Remove(u.CreatedDst, u.WasDirectory); err != nil {
			return err
		}
		_, err := fsops.Mv(u.BackupPath, u.CreatedDst, false)
		return err
	case journal.UndoMkdir:
		return fsops.Remove(u.CreatedDir, false)
	case journal.UndoOverwrite:
		_, err := fsops.Mv(u.BackupPath, dst, false)
		return err
	default:
		return fmt.Errorf("undo: unknown undo type %q", u.Type)
	}
}
