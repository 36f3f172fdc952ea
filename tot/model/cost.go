package model

import (
	"fmt"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs for LLM models.
// Prices are in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Static pricing for the models the chat backend is usually configured with.
// Prices are in USD per 1M tokens and are subject to change.
var defaultModelPricing = map[string]ModelPricing{
	"gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":   {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4.1-mini":  {InputPer1M: 0.40, OutputPer1M: 1.60},
	"o3-mini":       {InputPer1M: 1.10, OutputPer1M: 4.40},
	"gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},

	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},

	"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.5-flash": {InputPer1M: 0.30, OutputPer1M: 2.50},

	"deepseek-chat":     {InputPer1M: 0.27, OutputPer1M: 1.10},
	"deepseek-reasoner": {InputPer1M: 0.55, OutputPer1M: 2.19},
}

// LLMCall represents a single LLM API invocation with token usage and cost.
type LLMCall struct {
	Model        string    // Model identifier (e.g., "gpt-4o-mini")
	Role         string    // Oracle role or workflow that made the call
	InputTokens  int       // Number of input tokens consumed
	OutputTokens int       // Number of output tokens generated
	CostUSD      float64   // Calculated cost in USD
	Timestamp    time.Time // When the call was made
}

// CostTracker tracks token usage and cost of LLM calls made while serving a
// search or a chat turn.
//
// A single tracker may be shared by the generator, evaluator and
// synthesizer oracles; recording is safe for concurrent use because one
// search level fans out many oracle calls at once.
//
// Usage:
//
//	tracker := NewCostTracker("USD")
//	gen := oracle.NewGenerator(m, oracle.WithCostTracker(tracker))
//	...
//	fmt.Printf("search cost: $%.4f\n", tracker.TotalCost())
type CostTracker struct {
	currency     string
	pricing      map[string]ModelPricing
	calls        []LLMCall
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64

	mu sync.RWMutex
}

// NewCostTracker creates a new cost tracker with the default pricing table.
func NewCostTracker(currency string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		currency:   currency,
		pricing:    pricing,
		calls:      make([]LLMCall, 0, 32),
		modelCosts: make(map[string]float64),
	}
}

// Record adds a call's usage to the tracker and returns its computed cost.
//
// Models missing from the pricing table are recorded with zero cost so
// token counts are still attributed.
func (ct *CostTracker) Record(modelName, role string, usage Usage) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing := ct.pricing[modelName]
	cost := (float64(usage.InputTokens)/1_000_000.0)*pricing.InputPer1M +
		(float64(usage.OutputTokens)/1_000_000.0)*pricing.OutputPer1M

	ct.calls = append(ct.calls, LLMCall{
		Model:        modelName,
		Role:         role,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	})
	ct.totalCost += cost
	ct.modelCosts[modelName] += cost
	ct.inputTokens += int64(usage.InputTokens)
	ct.outputTokens += int64(usage.OutputTokens)

	return cost
}

// TotalCost returns the cumulative cost across all recorded calls.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.modelCosts))
	for m, c := range ct.modelCosts {
		costs[m] = c
	}
	return costs
}

// Calls returns a copy of all recorded calls in recording order.
func (ct *CostTracker) Calls() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	calls := make([]LLMCall, len(ct.calls))
	copy(calls, ct.calls)
	return calls
}

// TokenUsage returns total input and output token counts.
func (ct *CostTracker) TokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// SetPricing overrides pricing for a model (enterprise rates, new models).
func (ct *CostTracker) SetPricing(modelName string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[modelName] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// String returns a human-readable summary of cost tracking.
func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	return fmt.Sprintf(
		"CostTracker{Calls: %d, TotalCost: %.4f %s, InputTokens: %d, OutputTokens: %d}",
		len(ct.calls),
		ct.totalCost,
		ct.currency,
		ct.inputTokens,
		ct.outputTokens,
	)
}
