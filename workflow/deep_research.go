package workflow

import (
	"context"
	"fmt"

	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/oracle"
)

const (
	triageInstruction = "Decide whether clarifications are required before researching the user's request.\n" +
		"Respond with JSON only: {\"need_clarify\": true} or {\"need_clarify\": false}."

	clarifyInstruction = "The user's research request is ambiguous. Ask up to three short, numbered clarifying questions " +
		"that would let a researcher produce a precise answer. Do not answer the request itself."

	researchBriefInstruction = "Rewrite the user's request as a detailed research brief for a researcher. " +
		"List the questions to answer, the dimensions to compare, the sources to prefer and the expected output format. " +
		"Write in the first person as the user. Do not answer the request."

	researchInstruction = "Perform deep empirical research based on the user's instructions. " +
		"State the evidence behind every claim and flag anything you could not verify."
)

// DeepResearch triages a request, then either asks clarifying questions or
// turns the request into a research brief and answers that brief.
type DeepResearch struct {
	model model.ChatModel
}

// NewDeepResearch creates a DeepResearch workflow that uses m for every step.
func NewDeepResearch(m model.ChatModel) *DeepResearch {
	return &DeepResearch{model: m}
}

// Execute implements Workflow.
func (d *DeepResearch) Execute(ctx context.Context, req Request) (Result, error) {
	conv := conversation(req)

	triage, err := d.ask(ctx, triageInstruction, conv, model.CallOptions{JSON: true, Temperature: model.Float(0)})
	if err != nil {
		return Result{}, fmt.Errorf("triage: %w", err)
	}
	var verdict struct {
		NeedClarify bool `json:"need_clarify"`
	}
	if err := oracle.DecodeJSON(triage, &verdict); err != nil {
		return Result{}, fmt.Errorf("triage: %w", err)
	}

	if verdict.NeedClarify {
		questions, err := d.ask(ctx, clarifyInstruction, conv, model.CallOptions{})
		if err != nil {
			return Result{}, fmt.Errorf("clarify: %w", err)
		}
		return Result{Answer: questions, NeedsClarification: true}, nil
	}

	brief, err := d.ask(ctx, researchBriefInstruction, conv, model.CallOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("research brief: %w", err)
	}
	report, err := d.ask(ctx, researchInstruction, []model.Message{{Role: model.RoleUser, Content: brief}}, model.CallOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("research: %w", err)
	}
	return Result{Answer: report}, nil
}

func (d *DeepResearch) ask(ctx context.Context, instruction string, conv []model.Message, opts model.CallOptions) (string, error) {
	msgs := append([]model.Message{{Role: model.RoleSystem, Content: instruction}}, conv...)
	out, err := d.model.Chat(ctx, msgs, opts)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}
