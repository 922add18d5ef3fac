package events

import "testing"

func TestEmitNilSinkIsNoop(t *testing.T) {
	Emit(nil, Event{Type: OpStarted})
}

func TestEmitCallsSink(t *testing.T) {
	var got Event
	sink := func(e Event) { got = e }
	Emit(sink, Event{Type: OpCompleted, OpID: "abc"})
	if got.Type != OpCompleted || got.OpID != "abc" {
		t.Errorf("sink received %+v", got)
	}
}

func TestDiscard(t *testing.T) {
	Discard(Event{Type: TxnAborted})
}
