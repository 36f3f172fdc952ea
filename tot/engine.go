package tot

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/branchchat/tot/emit"
	"github.com/google/uuid"
)

// Engine runs tree-of-thoughts searches against a fixed set of oracles.
//
// An Engine holds no per-search state and is safe for concurrent use:
// every Search call owns its own frontier and trace.
type Engine struct {
	gen   Generator
	eval  Evaluator
	synth Synthesizer

	emitter       emit.Emitter
	metrics       *PrometheusMetrics
	maxConcurrent int
	newRunID      func() string
}

// New creates an Engine. All three oracles are required: the evaluator
// answers the finalize check even when per-candidate evaluation is off.
func New(gen Generator, eval Evaluator, synth Synthesizer, opts ...Option) (*Engine, error) {
	if gen == nil || eval == nil || synth == nil {
		return nil, &EngineError{Message: "generator, evaluator and synthesizer are required", Code: "NIL_ORACLE"}
	}

	cfg := engineConfig{
		emitter:  emit.NewNullEmitter(),
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Engine{
		gen:           gen,
		eval:          eval,
		synth:         synth,
		emitter:       cfg.emitter,
		metrics:       cfg.metrics,
		maxConcurrent: cfg.maxConcurrent,
		newRunID:      cfg.newRunID,
	}, nil
}

// Search runs one tree-of-thoughts search for goal.
//
// The returned trace lists every candidate considered, level by level.
// Search is all-or-nothing: if cfg is invalid it returns an
// *InvalidConfigError before any oracle call, and if any oracle call fails
// it returns an *OracleError with an empty trace.
func (e *Engine) Search(ctx context.Context, goal string, cfg SearchConfig) (string, SearchTrace, error) {
	if err := cfg.Validate(); err != nil {
		return "", SearchTrace{}, err
	}

	s := &search{
		engine: e,
		goal:   goal,
		cfg:    cfg,
		trace: SearchTrace{
			RunID:    e.newRunID(),
			Question: goal,
			Levels:   [][]TraceEntry{},
		},
	}

	start := time.Now()
	s.emit(0, emit.MsgSearchStart, map[string]interface{}{
		"beam_width":        cfg.BeamWidth,
		"max_depth":         cfg.MaxDepth,
		"thoughts_per_step": cfg.ThoughtsPerStep,
		"eval_enabled":      cfg.EvalEnabled,
		"min_keep_score":    cfg.MinKeepScore,
	})

	answer, outcome, err := s.run(ctx)
	if err != nil {
		depth := 0
		var oe *OracleError
		if errors.As(err, &oe) {
			depth = oe.Depth
		}
		s.emit(depth, emit.MsgSearchFailed, map[string]interface{}{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		e.metrics.RecordSearch(OutcomeFailed)
		return "", SearchTrace{}, err
	}

	e.metrics.RecordSearch(outcome)
	return answer, s.trace, nil
}

// search is the state of one in-flight Search call.
type search struct {
	engine *Engine
	goal   string
	cfg    SearchConfig
	trace  SearchTrace
}

// candidate is a generated thought tied to the frontier index of its parent.
type candidate struct {
	parent  int
	thought Thought
}

func (s *search) run(ctx context.Context) (answer, outcome string, err error) {
	frontier := []Node{rootNode()}

	for depth := 0; depth < s.cfg.MaxDepth; depth++ {
		frontier, err = s.level(ctx, depth, frontier)
		if err != nil {
			return "", "", err
		}

		answer, err = s.tryFinalize(ctx, depth, frontier)
		if err != nil {
			return "", "", err
		}
		if answer != "" {
			s.emit(depth, emit.MsgSearchFinalized, map[string]interface{}{"frontier": len(frontier)})
			return answer, OutcomeFinalized, nil
		}
	}

	depth := s.cfg.MaxDepth - 1
	answer, err = s.synthesize(ctx, depth, frontier)
	if err != nil {
		return "", "", err
	}

	outcome = OutcomeSynthesized
	if len(frontier) == 0 {
		outcome = OutcomeNoSolution
	}
	s.emit(depth, emit.MsgSearchSynthesized, map[string]interface{}{
		"frontier": len(frontier),
		"outcome":  outcome,
	})
	return answer, outcome, nil
}

// level expands frontier by one depth and returns the pruned next frontier.
// Generation completes for every node before evaluation starts, and every
// evaluation completes before any retention decision is made.
func (s *search) level(ctx context.Context, depth int, frontier []Node) ([]Node, error) {
	start := time.Now()
	s.emit(depth, emit.MsgLevelStart, map[string]interface{}{"frontier": len(frontier)})

	batches, err := gather(ctx, len(frontier), s.engine.maxConcurrent, func(ctx context.Context, i int) (ThoughtBatch, error) {
		return s.generate(ctx, depth, frontier[i].Path)
	})
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for parent, batch := range batches {
		for _, t := range batch {
			candidates = append(candidates, candidate{parent: parent, thought: t})
		}
	}
	s.emit(depth, emit.MsgGenerationComplete, map[string]interface{}{
		"candidates":  len(candidates),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	var evals []Evaluation
	if s.cfg.EvalEnabled {
		evalStart := time.Now()
		evals, err = gather(ctx, len(candidates), s.engine.maxConcurrent, func(ctx context.Context, i int) (Evaluation, error) {
			c := candidates[i]
			return s.evaluate(ctx, depth, frontier[c.parent].Path, c.thought.Text)
		})
		if err != nil {
			return nil, err
		}
		s.emit(depth, emit.MsgEvaluationComplete, map[string]interface{}{
			"evaluations": len(evals),
			"duration_ms": time.Since(evalStart).Milliseconds(),
		})
	}

	groups := make([][]Node, len(frontier))
	entries := make([]TraceEntry, 0, len(candidates))
	kept := 0
	for i, c := range candidates {
		blended, keep, reason := s.decide(c.thought, evals, i)
		parent := frontier[c.parent]

		entries = append(entries, TraceEntry{
			Depth:      depth,
			ParentPath: clonePath(parent.Path),
			Candidate:  c.thought,
			EvalReason: reason,
			Kept:       keep,
			Score:      blended,
		})
		s.engine.metrics.RecordCandidate(keep)

		if keep {
			kept++
			child := parent.child(c.thought.Text, blended)
			child.Meta = map[string]interface{}{"depth": depth, "rationale": c.thought.Rationale}
			groups[c.parent] = append(groups[c.parent], child)
		}
	}
	s.trace.Levels = append(s.trace.Levels, entries)

	pool, next := pruneLevel(groups, s.cfg.BeamWidth)
	s.engine.metrics.ObserveFrontier(len(next))
	s.emit(depth, emit.MsgFrontierPruned, map[string]interface{}{
		"candidates":  len(candidates),
		"kept":        kept,
		"pool":        len(pool),
		"frontier":    len(next),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return next, nil
}

// decide blends the candidate's scores and applies the retention rule.
// evals is nil when evaluation is disabled; otherwise evals[i] belongs to
// the i-th candidate.
func (s *search) decide(t Thought, evals []Evaluation, i int) (blended float64, keep bool, reason string) {
	if evals == nil {
		blended = t.Score
		keep = blended >= s.cfg.MinKeepScore
		reason = "kept by initial score"
		if !keep {
			reason = "below minimum keep score"
		}
		return blended, keep, reason
	}

	ev := evals[i]
	blended = (ev.AdjustedScore + t.Score) / 2
	keep = ev.Keep && blended >= s.cfg.MinKeepScore
	return blended, keep, ev.Reason
}

func (s *search) generate(ctx context.Context, depth int, path []string) (ThoughtBatch, error) {
	var batch ThoughtBatch
	err := s.call(RoleGenerator, depth, func() (err error) {
		batch, err = s.engine.gen.Generate(ctx, s.goal, path, s.cfg.ThoughtsPerStep)
		if err != nil {
			return err
		}
		return batch.Validate()
	})
	return batch, err
}

func (s *search) evaluate(ctx context.Context, depth int, path []string, text string) (Evaluation, error) {
	var ev Evaluation
	err := s.call(RoleEvaluator, depth, func() (err error) {
		ev, err = s.engine.eval.Evaluate(ctx, s.goal, path, text)
		if err != nil {
			return err
		}
		return ev.Validate()
	})
	return ev, err
}

// call times fn, records it, and wraps any failure as an *OracleError.
func (s *search) call(role string, depth int, fn func() error) error {
	start := time.Now()
	err := fn()
	s.engine.metrics.RecordOracleCall(role, time.Since(start), err)
	if err != nil {
		return &OracleError{Role: role, Depth: depth, Err: err}
	}
	return nil
}

func (s *search) emit(depth int, msg string, meta map[string]interface{}) {
	s.engine.emitter.Emit(emit.Event{
		RunID: s.trace.RunID,
		Depth: depth,
		Msg:   msg,
		Meta:  meta,
	})
}

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}
