package tot

import "github.com/dshills/branchchat/tot/emit"

// Option configures an Engine.
//
// Example:
//
//	engine, err := tot.New(gen, eval, synth,
//	    tot.WithEmitter(emit.NewLogEmitter(os.Stderr, true)),
//	    tot.WithMetrics(tot.NewPrometheusMetrics(registry)),
//	    tot.WithMaxConcurrentCalls(8),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	emitter       emit.Emitter
	metrics       *PrometheusMetrics
	maxConcurrent int
	newRunID      func() string
}

// WithEmitter sets the observability sink. Nil restores the NullEmitter.
func WithEmitter(emitter emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if emitter == nil {
			emitter = emit.NewNullEmitter()
		}
		cfg.emitter = emitter
		return nil
	}
}

// WithMetrics enables Prometheus metrics for every search run by the engine.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithMaxConcurrentCalls caps the number of oracle calls in flight during a
// single fan-out. Zero (the default) means no cap: every frontier node or
// candidate of a level is dispatched at once.
//
// Use a cap to stay under provider rate limits when beam width and
// thoughts per step are large.
func WithMaxConcurrentCalls(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "max concurrent calls must be >= 0", Code: "INVALID_OPTION"}
		}
		cfg.maxConcurrent = n
		return nil
	}
}

// WithRunIDFunc replaces the run ID generator (random UUIDs by default).
func WithRunIDFunc(fn func() string) Option {
	return func(cfg *engineConfig) error {
		if fn == nil {
			return &EngineError{Message: "run ID func cannot be nil", Code: "INVALID_OPTION"}
		}
		cfg.newRunID = fn
		return nil
	}
}
