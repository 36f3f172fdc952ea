// Package tot implements a Tree-of-Thoughts search engine: a bounded-depth,
// bounded-width beam search whose expansion and scoring steps are delegated
// to generative oracles.
//
// A search starts from an empty root path. At every level the engine asks
// the Generator for candidate next thoughts for each frontier node, asks the
// Evaluator to judge each candidate, keeps the best children per parent and
// across parents, and then asks whether the best path is already good enough
// to answer. When the depth budget runs out the Synthesizer writes the final
// answer from the best surviving path.
//
// Example:
//
//	engine, err := tot.New(gen, eval, synth, tot.WithEmitter(emit.NewLogEmitter(os.Stderr, false)))
//	if err != nil {
//	    return err
//	}
//	answer, trace, err := engine.Search(ctx, "pick a vacation city", tot.DefaultSearchConfig())
package tot

import (
	"fmt"
	"math"
)

// Thought is one candidate reasoning step proposed by a Generator.
type Thought struct {
	// Text is the proposed step. Never empty.
	Text string `json:"text"`

	// Rationale explains why the step might help. May be empty.
	Rationale string `json:"rationale"`

	// Score is the generator's self-reported confidence in [0,1].
	Score float64 `json:"score"`
}

// ThoughtBatch is the ordered output of one generation call.
// A valid batch holds between 1 and MaxThoughtsPerBatch thoughts.
type ThoughtBatch []Thought

// MaxThoughtsPerBatch bounds the size of a ThoughtBatch.
const MaxThoughtsPerBatch = 10

// Validate reports whether the batch honors the generator contract.
// Violations wrap ErrContractViolation.
func (b ThoughtBatch) Validate() error {
	if len(b) == 0 || len(b) > MaxThoughtsPerBatch {
		return fmt.Errorf("%w: batch has %d thoughts, want 1..%d", ErrContractViolation, len(b), MaxThoughtsPerBatch)
	}
	for i, t := range b {
		if t.Text == "" {
			return fmt.Errorf("%w: thought %d has empty text", ErrContractViolation, i)
		}
		if !inUnitInterval(t.Score) {
			return fmt.Errorf("%w: thought %d score %v outside [0,1]", ErrContractViolation, i, t.Score)
		}
	}
	return nil
}

// Evaluation is the Evaluator's verdict on a single candidate thought.
type Evaluation struct {
	Keep          bool    `json:"keep"`
	Reason        string  `json:"reason"`
	AdjustedScore float64 `json:"adjusted_score"`
}

// Validate checks that AdjustedScore lies in [0,1].
func (e Evaluation) Validate() error {
	if !inUnitInterval(e.AdjustedScore) {
		return fmt.Errorf("%w: adjusted score %v outside [0,1]", ErrContractViolation, e.AdjustedScore)
	}
	return nil
}

// Finalization is the Evaluator's verdict on whether a path already
// answers the goal.
type Finalization struct {
	Finalized bool   `json:"finalized"`
	Reason    string `json:"reason"`
}

// Node is a reasoning path from the root plus its running score.
//
// Nodes are values owned by a single search invocation. Path slices are
// never shared between a parent and its children.
type Node struct {
	Path  []string               `json:"path"`
	Score float64                `json:"score"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// rootNode is the starting point of every search.
func rootNode() Node {
	return Node{Path: []string{}, Score: 0}
}

// child returns a new node extending n by text. The child score moves the
// parent score halfway toward blended.
func (n Node) child(text string, blended float64) Node {
	path := make([]string, len(n.Path), len(n.Path)+1)
	copy(path, n.Path)
	return Node{
		Path:  append(path, text),
		Score: (n.Score + blended) / 2,
	}
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
