// Package emit carries observability events out of a tree search.
package emit

// Event is a single observability record produced while a search runs.
//
// Events describe the progress of one search invocation:
//   - Search start, finalization, synthesis and failure
//   - Level boundaries (generation, evaluation, pruning)
//   - Finalize checks and their verdicts
//
// Events are delivered to an Emitter, which may log them, buffer them for
// inspection, or export them as OpenTelemetry spans.
type Event struct {
	// RunID identifies the search invocation that produced the event.
	RunID string

	// Depth is the zero-based search level. Search-level events
	// (search_start, search_synthesized, ...) carry the depth reached so far.
	Depth int

	// Msg is the event name, e.g. "level_start" or "frontier_pruned".
	Msg string

	// Meta holds event-specific structured data.
	// Common keys:
	//   - "frontier": Number of nodes in the frontier
	//   - "candidates": Number of thoughts produced at the level
	//   - "kept": Number of candidates that passed retention
	//   - "duration_ms": Elapsed milliseconds for the phase
	//   - "error": Error text for failure events
	//   - "tokens_in", "tokens_out", "cost_usd", "model": Oracle usage
	//     totals carried by search_usage
	Meta map[string]interface{}
}

// Event names emitted by the search engine.
const (
	MsgSearchStart        = "search_start"
	MsgLevelStart         = "level_start"
	MsgGenerationComplete = "generation_complete"
	MsgEvaluationComplete = "evaluation_complete"
	MsgFrontierPruned     = "frontier_pruned"
	MsgFinalizeCheck      = "finalize_check"
	MsgSearchFinalized    = "search_finalized"
	MsgSearchSynthesized  = "search_synthesized"
	MsgSearchFailed       = "search_failed"
)

// MsgSearchUsage reports the oracle token and cost totals of a completed
// search. It is emitted by the chat workflow, which owns the cost tracker,
// after the engine returns.
const MsgSearchUsage = "search_usage"
