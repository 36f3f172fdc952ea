package tot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// fakeGenerator answers Generate with fn and records every call.
type fakeGenerator struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(goal string, path []string, k int) (ThoughtBatch, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, goal string, path []string, k int) (ThoughtBatch, error) {
	g.mu.Lock()
	g.calls = append(g.calls, append([]string(nil), path...))
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fn(goal, path, k)
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// callsAtDepth counts generation calls whose parent path has the given length.
func (g *fakeGenerator) callsAtDepth(depth int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.calls {
		if len(p) == depth {
			n++
		}
	}
	return n
}

// fakeEvaluator answers Evaluate with evalFn and FinalizeCheck with finalizeFn.
// A nil finalizeFn never finalizes.
type fakeEvaluator struct {
	mu             sync.Mutex
	evalCalls      int
	finalizeCalls  int
	finalizedPaths [][]string
	evalFn         func(path []string, candidate string) (Evaluation, error)
	finalizeFn     func(bestPath []string) (Finalization, error)
}

func (e *fakeEvaluator) Evaluate(ctx context.Context, goal string, path []string, candidate string) (Evaluation, error) {
	e.mu.Lock()
	e.evalCalls++
	e.mu.Unlock()
	if e.evalFn == nil {
		return Evaluation{Keep: true, Reason: "fine", AdjustedScore: 0.5}, nil
	}
	return e.evalFn(path, candidate)
}

func (e *fakeEvaluator) FinalizeCheck(ctx context.Context, goal string, bestPath []string) (Finalization, error) {
	e.mu.Lock()
	e.finalizeCalls++
	e.finalizedPaths = append(e.finalizedPaths, append([]string(nil), bestPath...))
	e.mu.Unlock()
	if e.finalizeFn == nil {
		return Finalization{Finalized: false, Reason: "keep going"}, nil
	}
	return e.finalizeFn(bestPath)
}

func (e *fakeEvaluator) counts() (evals, finalizes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evalCalls, e.finalizeCalls
}

// fakeSynthesizer joins the path it is given into the answer.
type fakeSynthesizer struct {
	mu    sync.Mutex
	calls int
	paths [][]string
	err   error
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, goal string, path []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.paths = append(s.paths, append([]string(nil), path...))
	if s.err != nil {
		return "", s.err
	}
	return "answer: " + strings.Join(path, " > "), nil
}

func (s *fakeSynthesizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// frontierSynthesizer also implements FrontierSynthesizer.
type frontierSynthesizer struct {
	fakeSynthesizer
	frontierPaths [][]string
}

func (s *frontierSynthesizer) SynthesizeFrontier(ctx context.Context, goal string, paths [][]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frontierPaths = paths
	return fmt.Sprintf("merged %d paths", len(paths)), nil
}

// scoredThoughts builds a batch named after the parent path with the given scores.
func scoredThoughts(path []string, scores ...float64) ThoughtBatch {
	prefix := "root"
	if len(path) > 0 {
		prefix = path[len(path)-1]
	}
	batch := make(ThoughtBatch, len(scores))
	for i, s := range scores {
		batch[i] = Thought{
			Text:      fmt.Sprintf("%s.%d", prefix, i),
			Rationale: "because",
			Score:     s,
		}
	}
	return batch
}

func newTestEngine(t testing.TB, gen Generator, eval Evaluator, synth Synthesizer, opts ...Option) *Engine {
	opts = append([]Option{WithRunIDFunc(func() string { return "run-test" })}, opts...)
	t.Helper()
	e, err := New(gen, eval, synth, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return e
}
