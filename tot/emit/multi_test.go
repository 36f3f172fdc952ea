package emit

import "testing"

func TestMultiEmitter(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	m := NewMultiEmitter(a, nil, b)

	m.Emit(Event{RunID: "run-1", Depth: 0, Msg: MsgSearchStart})
	m.Emit(Event{RunID: "run-1", Depth: 0, Msg: MsgLevelStart})

	for name, buf := range map[string]*BufferedEmitter{"first": a, "second": b} {
		history := buf.GetHistory("run-1")
		if len(history) != 2 {
			t.Fatalf("%s: expected 2 events, got %d", name, len(history))
		}
		if history[1].Msg != MsgLevelStart {
			t.Errorf("%s: expected events in order, got %q last", name, history[1].Msg)
		}
	}
}
