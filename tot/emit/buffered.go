package emit

import "sync"

// BufferedEmitter keeps every event in memory, grouped by run ID.
//
// It backs tests and debugging endpoints that need to inspect how a search
// progressed. Events are never evicted; call Clear when a run is no longer
// needed.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, err := tot.New(gen, eval, synth, tot.WithEmitter(emitter))
//	_, trace, _ := engine.Search(ctx, goal, cfg)
//
//	pruned := emitter.GetHistoryWithFilter(trace.RunID, emit.HistoryFilter{Msg: emit.MsgFrontierPruned})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter selects events from a run's history. Zero-valued fields
// are ignored; set fields are combined with AND.
type HistoryFilter struct {
	Msg      string // event name
	MinDepth *int   // depth >= MinDepth
	MaxDepth *int   // depth <= MaxDepth
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit appends the event to its run's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory returns a copy of every event recorded for runID, in emission
// order. The result is never nil.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events for runID that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// RunIDs returns the run IDs that have recorded events.
func (b *BufferedEmitter) RunIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.events))
	for id := range b.events {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops the history for runID, or for every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}

func (f HistoryFilter) matches(event Event) bool {
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinDepth != nil && event.Depth < *f.MinDepth {
		return false
	}
	if f.MaxDepth != nil && event.Depth > *f.MaxDepth {
		return false
	}
	return true
}
