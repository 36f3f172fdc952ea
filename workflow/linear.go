package workflow

import (
	"context"

	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/oracle"
)

const (
	chainOfThoughtApproach = "You solve the problem step by step. You break down your reasoning into smaller steps before reaching the conclusion."
	thinkLongerApproach    = "You think carefully and reason step by step and be more detailed."
	summaryInstruction     = "You are an expert in summarizing. " +
		"You summarize the user query in a precise and concise way. " +
		"You try to use bullet point lists, stages or steps to capture the essence of the user query unless the user told you otherwise. " +
		"DO NOT address or solve the query."
)

// Linear sends a fixed system instruction, the history and the query to a
// chat model in a single call.
type Linear struct {
	model       model.ChatModel
	instruction string
	opts        model.CallOptions
}

// NewLinear creates a Linear workflow with a custom instruction.
func NewLinear(m model.ChatModel, instruction string, opts model.CallOptions) *Linear {
	return &Linear{model: m, instruction: instruction, opts: opts}
}

// NewDefault is the plain assistant.
func NewDefault(m model.ChatModel) *Linear {
	return NewLinear(m, oracle.BuildInstruction(""), model.CallOptions{})
}

// NewChainOfThought asks for step by step reasoning before the conclusion.
func NewChainOfThought(m model.ChatModel) *Linear {
	return NewLinear(m, oracle.BuildInstruction(chainOfThoughtApproach), model.CallOptions{})
}

// NewThinkLonger asks for more detailed reasoning. Pair it with a
// reasoning model such as openai/o3-mini.
func NewThinkLonger(m model.ChatModel) *Linear {
	return NewLinear(m, oracle.BuildInstruction(thinkLongerApproach), model.CallOptions{})
}

// NewSummary summarizes the conversation without answering it.
func NewSummary(m model.ChatModel) *Linear {
	return NewLinear(m, summaryInstruction, model.CallOptions{})
}

// Execute implements Workflow.
func (l *Linear) Execute(ctx context.Context, req Request) (Result, error) {
	msgs := append([]model.Message{{Role: model.RoleSystem, Content: l.instruction}}, conversation(req)...)
	out, err := l.model.Chat(ctx, msgs, l.opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Answer: out.Text}, nil
}
