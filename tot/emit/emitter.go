package emit

// Emitter receives observability events from a running search.
//
// Implementations must be safe for concurrent use: several searches may
// share one emitter. Emit should not block the search for long and must
// not panic.
type Emitter interface {
	// Emit delivers one event to the backend.
	Emit(event Event)
}
