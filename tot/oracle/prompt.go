package oracle

import (
	"fmt"
	"strings"
)

const reasonerInstructions = "You are a careful reasoner that solves problems to reach the goal using a Tree-of-Thoughts process.\n" +
	"You reason the problems step by step.\n" +
	"When asked to GENERATE_THOUGHTS, produce diverse, non-overlapping, non-repetitive intermediate steps to reach the goal.\n" +
	"Be concise but precise."

const evaluatorInstructions = "You are a careful and competent evaluator that evaluates the quality of thoughts thoroughly and objectively to reach the goal.\n" +
	"You evaluate the quality of the thoughts step by step.\n" +
	"When asked to EVALUATE_THOUGHT, judge whether a thought is promising toward the goal.\n" +
	"When asked to FINALIZE_THOUGHT, judge whether the path is comprehensive and robust to reach the goal.\n" +
	"Be concise but precise."

// BuildInstruction returns the system instruction shared by every answer
// producing role. approach is inserted after the opening line when set.
func BuildInstruction(approach string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant.\n")
	if approach != "" {
		b.WriteString(approach)
		b.WriteString("\n")
	}
	b.WriteString("You try to give answers as precise as possible, in professional tone.\n")
	b.WriteString("You elaborate your answer using a systematic approach.\n")
	b.WriteString("You try to give examples to support your answer.\n")
	b.WriteString("You give the answers in markdown format, use bullet point lists with clear headers (e.g. #, ##) and separators between sections.\n")
	b.WriteString("At the end of your answer, you ask the user follow up questions, diving into topics or expanding the conversation.\n")
	b.WriteString("Be concise but precise.")
	return b.String()
}

func generatePrompt(goal string, path []string, k int) string {
	return "Task: GENERATE_THOUGHTS\n" +
		fmt.Sprintf("Goal: %s\n", goal) +
		fmt.Sprintf("Current path:\n%s\n", formatPath(path)) +
		fmt.Sprintf("Produce %d thoughtful next steps, which are non-repetitive, non-overlapping, with rationales and scores in [0,1].\n", k) +
		`Respond with JSON only: {"thoughts": [{"text": "...", "rationale": "...", "score": 0.0}]}`
}

func evaluatePrompt(goal string, path []string, candidate string) string {
	return "Task: EVALUATE_THOUGHT\n" +
		fmt.Sprintf("Goal: %s\n", goal) +
		fmt.Sprintf("Current path:\n%s\n", formatPath(path)) +
		fmt.Sprintf("Candidate thought: %s\n", candidate) +
		"Return whether to keep it and an adjusted score in [0,1].\n" +
		`Respond with JSON only: {"keep": true, "reason": "...", "adjusted_score": 0.0}`
}

func finalizePrompt(goal string, path []string) string {
	return "Task: FINALIZE_THOUGHT\n" +
		fmt.Sprintf("Goal: %s\n", goal) +
		fmt.Sprintf("Best path so far:\n%s\n", formatPath(path)) +
		"Decide whether the path is comprehensive and robust enough to reach the goal.\n" +
		`Respond with JSON only: {"finalized": false, "reason": "..."}`
}

func synthesizePrompt(goal string, path []string) string {
	return "Synthesize a high-quality final answer using the following steps.\n" +
		fmt.Sprintf("Goal: %s\n", goal) +
		fmt.Sprintf("Steps:\n%s\n", formatPath(path)) +
		"Be accurate and cite assumptions."
}

func synthesizeFrontierPrompt(goal string, paths [][]string) string {
	var b strings.Builder
	b.WriteString("Synthesize a high-quality final answer from the following reasoning paths.\n")
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	for i, path := range paths {
		label := "runner-up"
		if i == 0 {
			label = "best"
		}
		fmt.Fprintf(&b, "Path %d (%s):\n%s\n", i+1, label, formatPath(path))
	}
	b.WriteString("Build on the best path and borrow from the others only where they add something. Be accurate and cite assumptions.")
	return b.String()
}

func formatPath(path []string) string {
	if len(path) == 0 {
		return "(no steps yet)"
	}
	lines := make([]string, len(path))
	for i, step := range path {
		lines[i] = fmt.Sprintf("%d. %s", i+1, step)
	}
	return strings.Join(lines, "\n")
}
