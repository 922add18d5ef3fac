// Package txn implements the Transaction Manager: it drives a normalized
// operation sequence, consulting the Collision Policy and FS Primitives for
// each step, appending lifecycle records to the Journal, and — in "all"
// mode — rolling back everything already applied the instant one operation
// fails.
package txn

import (
	"fmt"
	"os"
	"time"

	"github.com/jopamo/tfs/internal"
	"github.com/jopamo/tfs/internal/events"
	"github.com/jopamo/tfs/internal/fsops"
	"github.com/jopamo/tfs/internal/journal"
	"github.com/jopamo/tfs/internal/model"
	"github.com/jopamo/tfs/internal/policy"
)

func now() time.Time { return time.Now().UTC() }

// DirPerms is the permission mode used for directories this package
// creates.
const DirPerms os.FileMode = internal.DefaultDirPerms

// Manager executes a normalized operation sequence against a Plan.
type Manager struct {
	plan    *model.Plan
	journal *journal.Writer
	sink    events.Sink
	applied []journal.Entry
}

// New creates a Manager for plan, appending lifecycle records to jw (which
// may be nil to run without a durable journal) and emitting
// events to sink (which may be nil).
func New(plan *model.Plan, jw *journal.Writer, sink events.Sink) *Manager {
	return &Manager{plan: plan, journal: jw, sink: sink}
}

// Result summarizes the outcome of a Run.
type Result struct {
	// Applied is every operation that reached "ok", in execution order.
	Applied []journal.Entry
	// Failed is every operation that reached "fail", in execution order.
	Failed []journal.Entry
	// RolledBack is true if a failure in "all" mode triggered rollback.
	RolledBack bool
}

// Run drives ops in order, applying §4.5's per-operation protocol. In "all"
// mode the first failure rolls back every already-applied operation and
// Run returns immediately afterward; the caller is expected to map that to
// exit code 3. In "op" mode, Run continues past failures and always
// returns with RolledBack=false.
func (m *Manager) Run(ops []model.NormalizedOp) (*Result, error) {
	result := &Result{}

	for _, op := range ops {
		if err := m.writeJournal(journal.Entry{
			ID:     op.ID,
			TS:     now(),
			Op:     op.Op.Kind,
			Src:    op.ResolvedSrc,
			Dst:    op.ResolvedDst,
			Status: journal.StatusStart,
		}); err != nil {
			return result, err
		}
		events.Emit(m.sink, events.Event{Type: events.OpStarted, OpID: op.ID, OpKind: op.Op.Kind, Src: op.ResolvedSrc, Dst: op.ResolvedDst})

		entry, execErr := m.executeOne(op)
		if execErr != nil {
			failEntry := journal.Entry{
				ID:     op.ID,
				TS:     now(),
				Op:     op.Op.Kind,
				Src:    op.ResolvedSrc,
				Dst:    op.ResolvedDst,
				Status: journal.StatusFail,
				Error:  execErr.Error(),
			}
			if err := m.writeJournal(failEntry); err != nil {
				return result, err
			}
			events.Emit(m.sink, events.Event{Type: events.OpFailed, OpID: op.ID, OpKind: op.Op.Kind, Error: execErr.Error()})
			result.Failed = append(result.Failed, failEntry)

			if m.plan.Transaction == model.TransactionAll {
				m.rollback()
				result.RolledBack = true
				events.Emit(m.sink, events.Event{Type: events.TxnAborted})
				return result, execErr
			}
			continue
		}

		if err := m.writeJournal(entry); err != nil {
			return result, err
		}
		events.Emit(m.sink, events.Event{
			Type: events.OpCompleted, OpID: op.ID, OpKind: op.Op.Kind, Dst: entry.Dst,
		})
		m.applied = append(m.applied, entry)
		result.Applied = append(result.Applied, entry)
	}

	if m.journal != nil {
		if err := journal.WriteCommitMarker(m.journal.Path()); err != nil {
			return result, err
		}
	}
	events.Emit(m.sink, events.Event{Type: events.TxnCommitted})
	return result, nil
}

// executeOne performs steps 2-5 of §4.5 for a single operation and returns
// the "ok" journal entry to be recorded, or an error if any step failed
// (in which case nothing destructive beyond an already-completed backup
// move should remain — backups are taken only once the primitive is known
// about to run).
func (m *Manager) executeOne(op model.NormalizedOp) (journal.Entry, error) {
	switch op.Op.Kind {
	case model.KindMkdir:
		return m.executeMkdir(op)
	case model.KindMove, model.KindRename:
		crossDevice := op.Op.CrossDevice && op.Op.Kind == model.KindMove
		return m.executeMove(op, crossDevice)
	case model.KindCopy:
		return m.executeCopy(op)
	case model.KindTrash:
		return m.executeTrash(op)
	default:
		return journal.Entry{}, fmt.Errorf("txn: unknown op kind %q", op.Op.Kind)
	}
}

func (m *Manager) executeMkdir(op model.NormalizedOp) (journal.Entry, error) {
	res, collision, err := m.resolveDst(op, "")
	if err != nil {
		return journal.Entry{}, err
	}

	if _, err := fsops.Mkdir(res.FinalDst, op.Op.Parents, DirPerms); err != nil {
		return journal.Entry{}, err
	}

	return journal.Entry{
		ID:        op.ID,
		TS:        now(),
		Op:        op.Op.Kind,
		Dst:       res.FinalDst,
		Collision: collision,
		Status:    journal.StatusOk,
		Undo:      &journal.Undo{Type: journal.UndoMkdir, CreatedDir: res.FinalDst},
	}, nil
}

func (m *Manager) executeMove(op model.NormalizedOp, crossDevice bool) (journal.Entry, error) {
	res, collision, err := m.resolveDst(op, op.ResolvedSrc)
	if err != nil {
		return journal.Entry{}, err
	}

	if _, err := fsops.Mv(op.ResolvedSrc, res.FinalDst, crossDevice); err != nil {
		return journal.Entry{}, err
	}

	undo := &journal.Undo{Type: journal.UndoMove, OriginalSrc: op.ResolvedSrc}
	if res.Backup != "" {
		undo = &journal.Undo{Type: journal.UndoMoveWithOverwrite, OriginalSrc: op.ResolvedSrc, BackupPath: res.Backup}
	}

	return journal.Entry{
		ID:        op.ID,
		TS:        now(),
		Op:        op.Op.Kind,
		Src:       op.ResolvedSrc,
		Dst:       res.FinalDst,
		Collision: collision,
		Status:    journal.StatusOk,
		Undo:      undo,
	}, nil
}

func (m *Manager) executeCopy(op model.NormalizedOp) (journal.Entry, error) {
	res, collision, err := m.resolveDst(op, op.ResolvedSrc)
	if err != nil {
		return journal.Entry{}, err
	}

	result, err := fsops.Cp(op.ResolvedSrc, res.FinalDst, op.Op.Recursive)
	if err != nil {
		return journal.Entry{}, err
	}

	srcInfo, statErr := os.Lstat(op.ResolvedSrc)
	wasDir := statErr == nil && srcInfo.IsDir()

	undo := &journal.Undo{Type: journal.UndoCopy, CreatedDst: res.FinalDst, WasDirectory: wasDir}
	if res.Backup != "" {
		undo = &journal.Undo{Type: journal.UndoCopyWithOverwrite, CreatedDst: res.FinalDst, BackupPath: res.Backup, WasDirectory: wasDir}
	}

	events.Emit(m.sink, events.Event{Type: events.OpCompleted, OpID: op.ID, OpKind: op.Op.Kind, Dst: res.FinalDst, BytesCopied: result.BytesCopied})

	return journal.Entry{
		ID:        op.ID,
		TS:        now(),
		Op:        op.Op.Kind,
		Src:       op.ResolvedSrc,
		Dst:       res.FinalDst,
		Collision: collision,
		Status:    journal.StatusOk,
		Undo:      undo,
	}, nil
}

func (m *Manager) executeTrash(op model.NormalizedOp) (journal.Entry, error) {
	result, err := fsops.Trash(op.ResolvedSrc)
	if err != nil {
		return journal.Entry{}, err
	}

	return journal.Entry{
		ID:     op.ID,
		TS:     now(),
		Op:     op.Op.Kind,
		Src:    op.ResolvedSrc,
		Dst:    result.FinalDst,
		Status: journal.StatusOk,
		Undo:   &journal.Undo{Type: journal.UndoMove, OriginalSrc: op.ResolvedSrc},
	}, nil
}

// resolveDst applies the collision policy to op's destination and, when a
// backup is required, performs the backup move before returning. srcForHash
// is the source path to hash under the hash8 policy (empty for Mkdir).
func (m *Manager) resolveDst(op model.NormalizedOp, srcForHash string) (policy.Resolution, *journal.Collision, error) {
	res, err := policy.Resolve(m.plan.CollisionPolicy, op.ResolvedDst, srcForHash, m.plan.AllowOverwrite)
	if err != nil {
		return policy.Resolution{}, nil, err
	}

	if res.Backup != "" {
		if _, err := fsops.Mv(res.FinalDst, res.Backup, false); err != nil {
			return policy.Resolution{}, nil, fmt.Errorf("txn: backing up %q: %w", res.FinalDst, err)
		}
	}

	if res.FinalDst == op.ResolvedDst && res.Backup == "" {
		return res, nil, nil
	}

	return res, &journal.Collision{
		Policy:     m.plan.CollisionPolicy,
		FinalDst:   res.FinalDst,
		BackupPath: res.Backup,
	}, nil
}

// rollback reverses every applied operation in reverse order via the FS
// primitives. It is best-effort: every attempted inverse is journaled
// regardless of outcome, so a partial rollback is still fully auditable.
func (m *Manager) rollback() {
	applied := m.applied
	m.applied = nil

	for i := len(applied) - 1; i >= 0; i-- {
		entry := applied[i]
		if entry.Undo == nil {
			continue
		}

		applyErr := applyUndo(entry.Undo, entry.Dst)

		undone := journal.Entry{
			ID:     entry.ID,
			TS:     now(),
			Op:     entry.Op,
			Src:    entry.Src,
			Dst:    entry.Dst,
			Status: journal.StatusUndone,
		}
		if applyErr != nil {
			undone.Error = applyErr.Error()
		}
		_ = m.writeJournal(undone)
	}
}

// applyUndo reverses a single Ok entry's recorded inverse using only the FS
// primitives. dst is the entry's recorded destination (the post-operation
// location), needed because several inverse variants describe "restore the
// mover to source" relative to it.
func applyUndo(u *journal.Undo, dst string) error {
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
		return fmt.Errorf("txn: unknown undo type %q", u.Type)
	}
}

func (m *Manager) writeJournal(entry journal.Entry) error {
	if m.journal == nil {
		return nil
	}
	return m.journal.Write(entry)
}
