package tot

// TraceEntry records one candidate considered during a search.
type TraceEntry struct {
	Depth      int      `json:"depth"`
	ParentPath []string `json:"parent_path"`
	Candidate  Thought  `json:"candidate"`
	EvalReason string   `json:"eval_reason"`
	Kept       bool     `json:"kept"`

	// Score is the blended score the retention decision was made on.
	Score float64 `json:"score"`
}

// SearchTrace is the complete record of a search: every candidate at every
// level, kept or not, in generation order.
type SearchTrace struct {
	RunID    string         `json:"run_id"`
	Question string         `json:"question"`
	Levels   [][]TraceEntry `json:"levels"`
}

// Candidates returns the number of trace entries across all levels.
func (t SearchTrace) Candidates() int {
	n := 0
	for _, level := range t.Levels {
		n += len(level)
	}
	return n
}

// KeptAt returns the number of kept entries at depth, or 0 if the depth was
// never reached.
func (t SearchTrace) KeptAt(depth int) int {
	if depth < 0 || depth >= len(t.Levels) {
		return 0
	}
	n := 0
	for _, e := range t.Levels[depth] {
		if e.Kept {
			n++
		}
	}
	return n
}
