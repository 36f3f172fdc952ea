// Package oracle implements the tree search oracles on top of a chat model.
//
// Each oracle sends a system instruction plus a task prompt to its
// model.ChatModel. The generator and evaluator ask for JSON and decode it;
// the synthesizer returns plain text.
//
// Example:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	tracker := model.NewCostTracker("USD")
//	engine, err := tot.New(
//	    oracle.NewGenerator(m, oracle.WithCostTracker(tracker)),
//	    oracle.NewEvaluator(m, oracle.WithCostTracker(tracker)),
//	    oracle.NewSynthesizer(m, oracle.WithCostTracker(tracker)),
//	)
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/branchchat/tot"
	"github.com/dshills/branchchat/tot/model"
)

// Default sampling temperatures per role.
const (
	ReasonerTemperature    = 0.7
	EvaluatorTemperature   = 0.2
	SynthesizerTemperature = 0.3
)

// Option configures an oracle.
type Option func(*caller)

// WithTemperature overrides the role's default temperature.
func WithTemperature(t float64) Option {
	return func(c *caller) {
		c.temperature = t
	}
}

// WithMaxTokens limits the length of each response.
func WithMaxTokens(n int) Option {
	return func(c *caller) {
		c.maxTokens = n
	}
}

// WithCostTracker records token usage and cost of every call.
func WithCostTracker(tracker *model.CostTracker) Option {
	return func(c *caller) {
		c.costs = tracker
	}
}

// WithInstruction replaces the role's system instruction.
func WithInstruction(instruction string) Option {
	return func(c *caller) {
		c.instruction = instruction
	}
}

// caller holds what every oracle needs to issue a chat call.
type caller struct {
	role        string
	model       model.ChatModel
	instruction string
	temperature float64
	maxTokens   int
	costs       *model.CostTracker
}

func newCaller(role string, m model.ChatModel, instruction string, temperature float64, opts []Option) caller {
	c := caller{role: role, model: m, instruction: instruction, temperature: temperature}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *caller) chat(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	out, err := c.model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: c.instruction},
		{Role: model.RoleUser, Content: prompt},
	}, model.CallOptions{
		Temperature: model.Float(c.temperature),
		MaxTokens:   c.maxTokens,
		JSON:        jsonMode,
	})
	if err != nil {
		return "", err
	}
	if c.costs != nil {
		c.costs.Record(out.Model, c.role, out.Usage)
	}
	return out.Text, nil
}

func (c *caller) chatJSON(ctx context.Context, prompt string, v interface{}) error {
	text, err := c.chat(ctx, prompt, true)
	if err != nil {
		return err
	}
	return DecodeJSON(text, v)
}

// DecodeJSON extracts the outermost JSON object from text into v,
// tolerating code fences and surrounding prose. Failures wrap
// tot.ErrContractViolation.
func DecodeJSON(text string, v interface{}) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object in response %q", tot.ErrContractViolation, truncate(text, 120))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: malformed JSON response: %v", tot.ErrContractViolation, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Generator proposes next thoughts with a chat model.
type Generator struct {
	caller
}

// NewGenerator creates a Generator at ReasonerTemperature.
func NewGenerator(m model.ChatModel, opts ...Option) *Generator {
	return &Generator{newCaller(tot.RoleGenerator, m, reasonerInstructions, ReasonerTemperature, opts)}
}

// Generate implements tot.Generator.
func (g *Generator) Generate(ctx context.Context, goal string, path []string, k int) (tot.ThoughtBatch, error) {
	var resp struct {
		Thoughts tot.ThoughtBatch `json:"thoughts"`
	}
	if err := g.chatJSON(ctx, generatePrompt(goal, path, k), &resp); err != nil {
		return nil, err
	}
	return resp.Thoughts, nil
}

// Evaluator judges thoughts and paths with a chat model.
type Evaluator struct {
	caller
}

// NewEvaluator creates an Evaluator at EvaluatorTemperature.
func NewEvaluator(m model.ChatModel, opts ...Option) *Evaluator {
	return &Evaluator{newCaller(tot.RoleEvaluator, m, evaluatorInstructions, EvaluatorTemperature, opts)}
}

// Evaluate implements tot.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, goal string, path []string, candidate string) (tot.Evaluation, error) {
	var ev tot.Evaluation
	err := e.chatJSON(ctx, evaluatePrompt(goal, path, candidate), &ev)
	return ev, err
}

// FinalizeCheck implements tot.Evaluator.
func (e *Evaluator) FinalizeCheck(ctx context.Context, goal string, bestPath []string) (tot.Finalization, error) {
	var fin tot.Finalization
	err := e.chatJSON(ctx, finalizePrompt(goal, bestPath), &fin)
	return fin, err
}

// Synthesizer writes final answers with a chat model.
type Synthesizer struct {
	caller
}

// NewSynthesizer creates a Synthesizer at SynthesizerTemperature using
// the shared answer instruction.
func NewSynthesizer(m model.ChatModel, opts ...Option) *Synthesizer {
	instruction := BuildInstruction("You produce the final answer.")
	return &Synthesizer{newCaller(tot.RoleSynthesizer, m, instruction, SynthesizerTemperature, opts)}
}

// Synthesize implements tot.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, goal string, path []string) (string, error) {
	return s.chat(ctx, synthesizePrompt(goal, path), false)
}

// SynthesizeFrontier implements tot.FrontierSynthesizer.
func (s *Synthesizer) SynthesizeFrontier(ctx context.Context, goal string, paths [][]string) (string, error) {
	if len(paths) == 1 {
		return s.Synthesize(ctx, goal, paths[0])
	}
	return s.chat(ctx, synthesizeFrontierPrompt(goal, paths), false)
}

var (
	_ tot.Generator           = (*Generator)(nil)
	_ tot.Evaluator           = (*Evaluator)(nil)
	_ tot.FrontierSynthesizer = (*Synthesizer)(nil)
)
