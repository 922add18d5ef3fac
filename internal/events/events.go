// Package events defines the structured lifecycle events emitted by plan
// execution and undo replay for external observers. Emission must never
// fail the underlying transaction: a Sink is a plain function, and callers
// are expected to make it side-effect-safe (buffering, println) themselves.
package events

import "github.com/jopamo/tfs/internal/model"

// Type discriminates an Event's shape.
type Type string

const (
	PlanValidated Type = "plan_validated"
	OpPlanned     Type = "op_planned"
	OpStarted     Type = "op_started"
	OpCompleted   Type = "op_completed"
	OpFailed      Type = "op_failed"
	TxnCommitted  Type = "txn_committed"
	TxnAborted    Type = "txn_aborted"
	UndoStarted   Type = "undo_started"
	UndoCompleted Type = "undo_completed"
)

// Event is one structured lifecycle transition.
type Event struct {
	Type        Type         `json:"type"`
	PlanID      string       `json:"plan_id,omitempty"`
	OpID        string       `json:"op_id,omitempty"`
	OpKind      model.OpKind `json:"op_kind,omitempty"`
	Src         string       `json:"src,omitempty"`
	Dst         string       `json:"dst,omitempty"`
	BytesCopied int64        `json:"bytes_copied,omitempty"`
	Error       string       `json:"error,omitempty"`
	JournalID   string       `json:"journal_id,omitempty"`
}

// Sink receives events as they occur. Nil sinks are never called; use
// Discard for a no-op.
type Sink func(Event)

// Discard is a Sink that does nothing.
func Discard(Event) {}

// Emit calls sink if it is non-nil.
func Emit(sink Sink, e Event) {
	if sink != nil {
		sink(e)
	}
}
