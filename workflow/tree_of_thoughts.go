package workflow

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dshills/branchchat/tot"
	"github.com/dshills/branchchat/tot/emit"
	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/oracle"
	"github.com/dshills/branchchat/tot/store"
)

// TreeOfThoughtsConfig wires the tree search workflow.
type TreeOfThoughtsConfig struct {
	// Reasoner, Evaluator and Synthesizer serve the three oracle roles.
	// They may be the same model.
	Reasoner    model.ChatModel
	Evaluator   model.ChatModel
	Synthesizer model.ChatModel

	// Search is used for chat turns. Zero value means tot.DefaultSearchConfig.
	Search tot.SearchConfig

	// Limits bounds every config passed to Search, including Search
	// itself. Zero fields are unlimited.
	Limits tot.SearchLimits

	// Store receives every completed search. Optional.
	Store store.Store

	// Emitter receives the engine's events and a search_usage event per
	// completed search. Optional.
	Emitter emit.Emitter

	// EngineOptions are applied to every engine after Emitter, so an
	// emitter set here replaces it for engine events.
	EngineOptions []tot.Option

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// TreeOfThoughts answers a query with a tree search. Conversation history
// is not used: the query alone is the search goal.
type TreeOfThoughts struct {
	cfg    TreeOfThoughtsConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTreeOfThoughts validates cfg and creates the workflow.
func NewTreeOfThoughts(cfg TreeOfThoughtsConfig) (*TreeOfThoughts, error) {
	if cfg.Reasoner == nil || cfg.Evaluator == nil || cfg.Synthesizer == nil {
		return nil, errors.New("tree of thoughts requires reasoner, evaluator and synthesizer models")
	}
	if cfg.Search == (tot.SearchConfig{}) {
		cfg.Search = tot.DefaultSearchConfig()
	}
	if err := cfg.Search.ValidateWithin(cfg.Limits); err != nil {
		return nil, err
	}
	if cfg.Emitter == nil {
		cfg.Emitter = emit.NewNullEmitter()
	}
	cfg.EngineOptions = append([]tot.Option{tot.WithEmitter(cfg.Emitter)}, cfg.EngineOptions...)

	// Surface option errors at construction instead of on the first search.
	if _, err := tot.New(oracle.NewGenerator(cfg.Reasoner), oracle.NewEvaluator(cfg.Evaluator), oracle.NewSynthesizer(cfg.Synthesizer), cfg.EngineOptions...); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeOfThoughts{cfg: cfg, logger: logger, now: time.Now}, nil
}

// DefaultConfig returns the search configuration used for chat turns.
func (w *TreeOfThoughts) DefaultConfig() tot.SearchConfig {
	return w.cfg.Search
}

// Limits returns the ceilings enforced by Search.
func (w *TreeOfThoughts) Limits() tot.SearchLimits {
	return w.cfg.Limits
}

// Execute implements Workflow.
func (w *TreeOfThoughts) Execute(ctx context.Context, req Request) (Result, error) {
	rec, err := w.Search(ctx, req.Query, w.cfg.Search)
	if err != nil {
		return Result{}, err
	}
	return Result{Answer: rec.Answer, RunID: rec.RunID, Trace: &rec.Trace}, nil
}

// Search runs one search for goal with cfg and persists the completed
// record. Each search gets its own cost tracker so CostUSD covers exactly
// its oracle calls. A cfg outside the configured limits fails with an
// *tot.InvalidConfigError before any oracle is called.
func (w *TreeOfThoughts) Search(ctx context.Context, goal string, cfg tot.SearchConfig) (store.SearchRecord, error) {
	if err := cfg.ValidateWithin(w.cfg.Limits); err != nil {
		return store.SearchRecord{}, err
	}

	costs := model.NewCostTracker("USD")
	engine, err := tot.New(
		oracle.NewGenerator(w.cfg.Reasoner, oracle.WithCostTracker(costs)),
		oracle.NewEvaluator(w.cfg.Evaluator, oracle.WithCostTracker(costs)),
		oracle.NewSynthesizer(w.cfg.Synthesizer, oracle.WithCostTracker(costs)),
		w.cfg.EngineOptions...,
	)
	if err != nil {
		return store.SearchRecord{}, err
	}

	start := w.now()
	answer, trace, err := engine.Search(ctx, goal, cfg)
	if err != nil {
		w.logger.Warn("tree search failed", "error", err, "duration", time.Since(start))
		return store.SearchRecord{}, err
	}

	rec := store.SearchRecord{
		RunID:     trace.RunID,
		Goal:      goal,
		Answer:    answer,
		Config:    cfg,
		Trace:     trace,
		CostUSD:   costs.TotalCost(),
		CreatedAt: start.UTC(),
	}
	inTokens, outTokens := costs.TokenUsage()
	w.logger.Info("tree search complete",
		"run_id", rec.RunID,
		"levels", len(trace.Levels),
		"candidates", trace.Candidates(),
		"tokens_in", inTokens,
		"tokens_out", outTokens,
		"cost_usd", rec.CostUSD,
		"duration", time.Since(start))
	w.cfg.Emitter.Emit(emit.Event{
		RunID: rec.RunID,
		Depth: len(trace.Levels) - 1,
		Msg:   emit.MsgSearchUsage,
		Meta: map[string]interface{}{
			"tokens_in":  inTokens,
			"tokens_out": outTokens,
			"cost_usd":   rec.CostUSD,
			"model":      strings.Join(slices.Sorted(maps.Keys(costs.CostByModel())), ","),
		},
	})

	if w.cfg.Store != nil {
		if err := w.cfg.Store.SaveSearch(ctx, rec); err != nil {
			w.logger.Error("failed to persist search", "run_id", rec.RunID, "error", err)
		}
	}
	return rec, nil
}
