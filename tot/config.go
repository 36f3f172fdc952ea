package tot

import (
	"fmt"
	"math"
)

// SearchConfig bounds one search invocation. It is passed by value and is
// never shared between concurrent searches.
type SearchConfig struct {
	// BeamWidth is the maximum number of nodes kept per level (>= 1).
	BeamWidth int `json:"beam_width" yaml:"beam_width"`

	// MaxDepth is the number of levels explored at most (>= 1).
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// ThoughtsPerStep is the batch size requested from the generator
	// (1..MaxThoughtsPerBatch).
	ThoughtsPerStep int `json:"thoughts_per_step" yaml:"thoughts_per_step"`

	// EvalEnabled turns on per-candidate evaluation. When false, candidates
	// are retained on their self-reported score alone.
	EvalEnabled bool `json:"eval_enabled" yaml:"eval_enabled"`

	// MinKeepScore is the absolute floor a blended score must reach for the
	// candidate to be kept. Values above 1 reject every candidate.
	MinKeepScore float64 `json:"min_keep_score" yaml:"min_keep_score"`
}

// DefaultSearchConfig returns the configuration used by the chat backend's
// tree-of-thoughts mode.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		BeamWidth:       1,
		MaxDepth:        3,
		ThoughtsPerStep: 3,
		EvalEnabled:     true,
		MinKeepScore:    0.35,
	}
}

// Validate checks every field against its bounds and returns an
// *InvalidConfigError for the first violation.
func (c SearchConfig) Validate() error {
	switch {
	case c.BeamWidth < 1:
		return &InvalidConfigError{Field: "beam_width", Reason: "must be at least 1"}
	case c.MaxDepth < 1:
		return &InvalidConfigError{Field: "max_depth", Reason: "must be at least 1"}
	case c.ThoughtsPerStep < 1 || c.ThoughtsPerStep > MaxThoughtsPerBatch:
		return &InvalidConfigError{Field: "thoughts_per_step", Reason: "must be between 1 and 10"}
	case math.IsNaN(c.MinKeepScore) || c.MinKeepScore < 0:
		return &InvalidConfigError{Field: "min_keep_score", Reason: "must be a non-negative number"}
	}
	return nil
}

// SearchLimits caps the size of a caller-supplied SearchConfig. A search
// issues up to BeamWidth*ThoughtsPerStep generation and evaluation calls per
// level, so servers accepting configs from clients must bound both axes.
// Zero fields are unlimited.
type SearchLimits struct {
	MaxBeamWidth int `json:"max_beam_width" yaml:"max_beam_width"`
	MaxDepth     int `json:"max_depth" yaml:"max_depth"`
}

// DefaultSearchLimits returns the ceilings applied by the chat server.
func DefaultSearchLimits() SearchLimits {
	return SearchLimits{MaxBeamWidth: 5, MaxDepth: 6}
}

// ValidateWithin validates c and then checks it against l.
func (c SearchConfig) ValidateWithin(l SearchLimits) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch {
	case l.MaxBeamWidth > 0 && c.BeamWidth > l.MaxBeamWidth:
		return &InvalidConfigError{Field: "beam_width", Reason: fmt.Sprintf("must be at most %d", l.MaxBeamWidth)}
	case l.MaxDepth > 0 && c.MaxDepth > l.MaxDepth:
		return &InvalidConfigError{Field: "max_depth", Reason: fmt.Sprintf("must be at most %d", l.MaxDepth)}
	}
	return nil
}
