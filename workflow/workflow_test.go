package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dshills/branchchat/tot"
	"github.com/dshills/branchchat/tot/emit"
	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/store"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", ModeDefault},
		{"  ", ModeDefault},
		{"TOT", ModeTreeOfThoughts},
		{" cot ", ModeChainOfThought},
		{"deep_research", ModeDeepResearch},
		{"bogus", Mode("bogus")},
	}
	for _, tt := range tests {
		if got := ParseMode(tt.in); got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	m := &model.MockChatModel{Responses: []model.ChatOut{{Text: "hello"}}}
	r := NewStandardRegistry(Models{Default: m}, nil)

	t.Run("lists modes in order", func(t *testing.T) {
		got := r.Modes()
		want := []Mode{ModeChainOfThought, ModeDeepResearch, ModeDefault, ModeSummary, ModeThinkLonger}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("mode %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	})

	t.Run("stamps mode on result", func(t *testing.T) {
		res, err := r.Run(context.Background(), ModeDefault, Request{Query: "hi"})
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if res.Mode != ModeDefault || res.Answer != "hello" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := r.Run(context.Background(), ModeTreeOfThoughts, Request{Query: "hi"})
		if !errors.Is(err, ErrUnknownMode) {
			t.Errorf("expected ErrUnknownMode, got %v", err)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		calls := m.CallCount()
		_, err := r.Run(context.Background(), ModeDefault, Request{Query: " \n"})
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("expected ErrEmptyQuery, got %v", err)
		}
		if m.CallCount() != calls {
			t.Errorf("expected no model call for empty query")
		}
	})
}

func TestLinear_Execute(t *testing.T) {
	m := &model.MockChatModel{Responses: []model.ChatOut{{Text: "step 1, step 2"}}}
	wf := NewChainOfThought(m)

	res, err := wf.Execute(context.Background(), Request{
		Query:   "and then?",
		History: []model.Message{{Role: model.RoleUser, Content: "first"}, {Role: model.RoleAssistant, Content: "ok"}},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Answer != "step 1, step 2" {
		t.Errorf("unexpected answer %q", res.Answer)
	}

	msgs := m.Calls[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("expected system, history and query, got %d messages", len(msgs))
	}
	if msgs[0].Role != model.RoleSystem || !strings.Contains(msgs[0].Content, "step by step") {
		t.Errorf("unexpected system message %+v", msgs[0])
	}
	if msgs[3].Role != model.RoleUser || msgs[3].Content != "and then?" {
		t.Errorf("expected query last, got %+v", msgs[3])
	}
}

func TestLinear_ModelError(t *testing.T) {
	wantErr := errors.New("rate limited")
	wf := NewSummary(&model.MockChatModel{Err: wantErr})

	_, err := wf.Execute(context.Background(), Request{Query: "summarize"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
}

func TestDeepResearch_Execute(t *testing.T) {
	t.Run("asks for clarification", func(t *testing.T) {
		m := &model.MockChatModel{Responses: []model.ChatOut{
			{Text: `{"need_clarify": true}`},
			{Text: "Which region?"},
		}}

		res, err := NewDeepResearch(m).Execute(context.Background(), Request{Query: "research housing"})
		if err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
		if !res.NeedsClarification || res.Answer != "Which region?" {
			t.Errorf("unexpected result %+v", res)
		}
		if m.CallCount() != 2 {
			t.Errorf("expected triage and clarify calls, got %d", m.CallCount())
		}
	})

	t.Run("researches the brief", func(t *testing.T) {
		m := &model.MockChatModel{Responses: []model.ChatOut{
			{Text: "```json\n{\"need_clarify\": false}\n```"},
			{Text: "I want a report on housing in Lisbon."},
			{Text: "Report."},
		}}

		res, err := NewDeepResearch(m).Execute(context.Background(), Request{Query: "research Lisbon housing"})
		if err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
		if res.NeedsClarification || res.Answer != "Report." {
			t.Errorf("unexpected result %+v", res)
		}
		research := m.Calls[2].Messages
		if last := research[len(research)-1]; last.Content != "I want a report on housing in Lisbon." {
			t.Errorf("expected the brief as research input, got %q", last.Content)
		}
	})

	t.Run("malformed triage", func(t *testing.T) {
		m := &model.MockChatModel{Responses: []model.ChatOut{{Text: "maybe"}}}

		_, err := NewDeepResearch(m).Execute(context.Background(), Request{Query: "x"})
		if !errors.Is(err, tot.ErrContractViolation) {
			t.Errorf("expected contract violation, got %v", err)
		}
	})
}

// vacationModel scripts every oracle role for a one level search.
func vacationModel() *model.MockChatModel {
	return &model.MockChatModel{Respond: func(messages []model.Message) (model.ChatOut, error) {
		prompt := messages[len(messages)-1].Content
		usage := model.Usage{InputTokens: 1000, OutputTokens: 1000}
		switch {
		case strings.Contains(prompt, "GENERATE_THOUGHTS"):
			return model.ChatOut{Model: "gpt-4o-mini", Usage: usage, Text: `{"thoughts": [{"text": "Lisbon", "rationale": "sunny", "score": 0.9}, {"text": "Oslo", "rationale": "cold", "score": 0.2}]}`}, nil
		case strings.Contains(prompt, "EVALUATE_THOUGHT"):
			if strings.Contains(prompt, "Candidate thought: Oslo") {
				return model.ChatOut{Model: "gpt-4o-mini", Usage: usage, Text: `{"keep": false, "reason": "too cold", "adjusted_score": 0.1}`}, nil
			}
			return model.ChatOut{Model: "gpt-4o-mini", Usage: usage, Text: `{"keep": true, "reason": "good fit", "adjusted_score": 0.9}`}, nil
		case strings.Contains(prompt, "FINALIZE_THOUGHT"):
			return model.ChatOut{Model: "gpt-4o-mini", Usage: usage, Text: `{"finalized": true, "reason": "done"}`}, nil
		default:
			return model.ChatOut{Model: "gpt-4o-mini", Usage: usage, Text: "Go to Lisbon."}, nil
		}
	}}
}

type failingStore struct {
	store.Store
	saves int
}

func (s *failingStore) SaveSearch(ctx context.Context, rec store.SearchRecord) error {
	s.saves++
	return errors.New("disk full")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTreeOfThoughts(t *testing.T) {
	t.Run("requires all models", func(t *testing.T) {
		_, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: vacationModel()})
		if err == nil {
			t.Fatal("expected error for missing models")
		}
	})

	t.Run("rejects invalid search config", func(t *testing.T) {
		m := vacationModel()
		cfg := tot.DefaultSearchConfig()
		cfg.BeamWidth = 0
		_, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: m, Evaluator: m, Synthesizer: m, Search: cfg})
		if !errors.Is(err, tot.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("zero search config uses defaults", func(t *testing.T) {
		m := vacationModel()
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: m, Evaluator: m, Synthesizer: m})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}
		if wf.DefaultConfig() != tot.DefaultSearchConfig() {
			t.Errorf("expected default config, got %+v", wf.DefaultConfig())
		}
	})

	t.Run("answers and persists the search", func(t *testing.T) {
		m := vacationModel()
		mem := store.NewMemStore()
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{
			Reasoner: m, Evaluator: m, Synthesizer: m,
			Store:  mem,
			Logger: quietLogger(),
		})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}

		res, err := wf.Execute(context.Background(), Request{Query: "pick a vacation city"})
		if err != nil {
			t.Fatalf("Execute returned error: %v", err)
		}
		if res.Answer != "Go to Lisbon." || res.RunID == "" || res.Trace == nil {
			t.Fatalf("unexpected result %+v", res)
		}
		if res.Trace.KeptAt(0) != 1 {
			t.Errorf("expected one kept candidate, got %d", res.Trace.KeptAt(0))
		}

		rec, err := mem.LoadSearch(context.Background(), res.RunID)
		if err != nil {
			t.Fatalf("LoadSearch returned error: %v", err)
		}
		if rec.Goal != "pick a vacation city" || rec.Answer != "Go to Lisbon." {
			t.Errorf("unexpected record %+v", rec)
		}
		if rec.CostUSD <= 0 {
			t.Errorf("expected positive cost, got %v", rec.CostUSD)
		}
		if rec.CreatedAt.IsZero() {
			t.Errorf("expected CreatedAt to be set")
		}
	})

	t.Run("costs are tracked per search", func(t *testing.T) {
		m := vacationModel()
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: m, Evaluator: m, Synthesizer: m, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}
		first, err := wf.Search(context.Background(), "pick a vacation city", wf.DefaultConfig())
		if err != nil {
			t.Fatalf("Search returned error: %v", err)
		}
		second, err := wf.Search(context.Background(), "pick a vacation city", wf.DefaultConfig())
		if err != nil {
			t.Fatalf("Search returned error: %v", err)
		}
		if first.CostUSD != second.CostUSD {
			t.Errorf("expected identical per-search cost, got %v and %v", first.CostUSD, second.CostUSD)
		}
		if first.RunID == second.RunID {
			t.Errorf("expected distinct run IDs")
		}
	})

	t.Run("emits search usage", func(t *testing.T) {
		m := vacationModel()
		events := emit.NewBufferedEmitter()
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: m, Evaluator: m, Synthesizer: m, Emitter: events, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}
		rec, err := wf.Search(context.Background(), "pick a vacation city", wf.DefaultConfig())
		if err != nil {
			t.Fatalf("Search returned error: %v", err)
		}

		usage := events.GetHistoryWithFilter(rec.RunID, emit.HistoryFilter{Msg: emit.MsgSearchUsage})
		if len(usage) != 1 {
			t.Fatalf("expected one search_usage event, got %d", len(usage))
		}
		meta := usage[0].Meta
		wantTokens := int64(len(m.Calls)) * 1000
		if meta["tokens_in"] != wantTokens || meta["tokens_out"] != wantTokens {
			t.Errorf("expected %d tokens each way, got %v", wantTokens, meta)
		}
		if meta["cost_usd"] != rec.CostUSD || meta["model"] != "gpt-4o-mini" {
			t.Errorf("unexpected usage meta %v", meta)
		}
		if len(events.GetHistoryWithFilter(rec.RunID, emit.HistoryFilter{Msg: emit.MsgSearchStart})) != 1 {
			t.Errorf("expected engine events on the same emitter")
		}
	})

	t.Run("rejects configs above the limits", func(t *testing.T) {
		m := vacationModel()
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{
			Reasoner: m, Evaluator: m, Synthesizer: m,
			Limits: tot.SearchLimits{MaxBeamWidth: 3, MaxDepth: 4},
			Logger: quietLogger(),
		})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}
		_, err = wf.Search(context.Background(), "x", tot.SearchConfig{BeamWidth: 1 << 30, MaxDepth: 1 << 30, ThoughtsPerStep: 10})
		if !errors.Is(err, tot.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		if len(m.Calls) != 0 {
			t.Errorf("expected no oracle calls, got %d", len(m.Calls))
		}
	})

	t.Run("default config must fit the limits", func(t *testing.T) {
		m := vacationModel()
		_, err := NewTreeOfThoughts(TreeOfThoughtsConfig{
			Reasoner: m, Evaluator: m, Synthesizer: m,
			Search: tot.SearchConfig{BeamWidth: 2, MaxDepth: 9, ThoughtsPerStep: 3},
			Limits: tot.SearchLimits{MaxDepth: 6},
		})
		if !errors.Is(err, tot.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("store failure does not fail the search", func(t *testing.T) {
		m := vacationModel()
		fs := &failingStore{}
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: m, Evaluator: m, Synthesizer: m, Store: fs, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}
		rec, err := wf.Search(context.Background(), "pick a vacation city", wf.DefaultConfig())
		if err != nil {
			t.Fatalf("Search returned error: %v", err)
		}
		if rec.Answer != "Go to Lisbon." || fs.saves != 1 {
			t.Errorf("expected answer with one save attempt, got %q and %d saves", rec.Answer, fs.saves)
		}
	})

	t.Run("oracle failure is returned", func(t *testing.T) {
		m := &model.MockChatModel{Err: errors.New("boom")}
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: m, Evaluator: m, Synthesizer: m, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}
		_, err = wf.Execute(context.Background(), Request{Query: "x"})
		if !errors.Is(err, tot.ErrOracle) {
			t.Errorf("expected ErrOracle, got %v", err)
		}
	})

	t.Run("registered under tot", func(t *testing.T) {
		m := vacationModel()
		wf, err := NewTreeOfThoughts(TreeOfThoughtsConfig{Reasoner: m, Evaluator: m, Synthesizer: m, Logger: quietLogger()})
		if err != nil {
			t.Fatalf("NewTreeOfThoughts returned error: %v", err)
		}
		r := NewStandardRegistry(Models{Default: m}, wf)
		res, err := r.Run(context.Background(), ParseMode("tot"), Request{Query: "pick a vacation city"})
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if res.Mode != ModeTreeOfThoughts || res.Trace == nil {
			t.Errorf("unexpected result %+v", res)
		}
	})
}
