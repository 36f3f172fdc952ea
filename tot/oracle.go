package tot

import "context"

// Generator proposes candidate next thoughts for a path.
//
// Generate must return between 1 and MaxThoughtsPerBatch thoughts; k is the
// requested count, not a guarantee.
type Generator interface {
	Generate(ctx context.Context, goal string, path []string, k int) (ThoughtBatch, error)
}

// Evaluator judges candidate thoughts and whole paths.
type Evaluator interface {
	// Evaluate decides whether candidate is a promising continuation of path.
	Evaluate(ctx context.Context, goal string, path []string, candidate string) (Evaluation, error)

	// FinalizeCheck decides whether bestPath already answers the goal.
	FinalizeCheck(ctx context.Context, goal string, bestPath []string) (Finalization, error)
}

// Synthesizer writes the final answer from a reasoning path.
type Synthesizer interface {
	Synthesize(ctx context.Context, goal string, path []string) (string, error)
}

// FrontierSynthesizer is implemented by synthesizers that can draw on
// runner-up paths. When the finalize check succeeds, the engine passes every
// frontier path, best first.
type FrontierSynthesizer interface {
	Synthesizer
	SynthesizeFrontier(ctx context.Context, goal string, paths [][]string) (string, error)
}
