package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dshills/branchchat/chat"
	"github.com/dshills/branchchat/tot"
	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/store"
	"github.com/dshills/branchchat/workflow"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedModel answers every oracle role for a one level search and
// echoes plain chat queries.
func scriptedModel() *model.MockChatModel {
	return &model.MockChatModel{Respond: func(messages []model.Message) (model.ChatOut, error) {
		prompt := messages[len(messages)-1].Content
		switch {
		case strings.Contains(prompt, "GENERATE_THOUGHTS"):
			return model.ChatOut{Text: `{"thoughts": [{"text": "Lisbon", "rationale": "sunny", "score": 0.9}]}`}, nil
		case strings.Contains(prompt, "EVALUATE_THOUGHT"):
			return model.ChatOut{Text: `{"keep": true, "reason": "good fit", "adjusted_score": 0.9}`}, nil
		case strings.Contains(prompt, "FINALIZE_THOUGHT"):
			return model.ChatOut{Text: `{"finalized": true, "reason": "done"}`}, nil
		case strings.HasPrefix(prompt, "Synthesize"):
			return model.ChatOut{Text: "Go to Lisbon."}, nil
		default:
			return model.ChatOut{Text: "echo: " + prompt}, nil
		}
	}}
}

type testServer struct {
	router *gin.Engine
	store  *store.MemStore
}

func newTestServer(t *testing.T, m model.ChatModel) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemStore()
	reg := prometheus.NewRegistry()

	tree, err := workflow.NewTreeOfThoughts(workflow.TreeOfThoughtsConfig{
		Reasoner: m, Evaluator: m, Synthesizer: m,
		Limits:        tot.SearchLimits{MaxBeamWidth: 4, MaxDepth: 5},
		Store:         mem,
		EngineOptions: []tot.Option{tot.WithMetrics(tot.NewPrometheusMetrics(reg))},
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewTreeOfThoughts returned error: %v", err)
	}
	registry := workflow.NewStandardRegistry(workflow.Models{Default: m}, tree)
	h := NewHandlers(registry, tree, mem).
		WithLogger(logger).
		WithConversations(chat.NewService(mem, registry).WithLogger(logger))
	return &testServer{router: NewRouter(h, reg), store: mem}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) {
	t.Helper()
	env := Envelope{Data: data}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if env.Code != CodeOK {
		t.Fatalf("expected code 0, got %d", env.Code)
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v", err)
	}
	if resp.Code != CodeError || resp.Error == "" {
		t.Errorf("unexpected error response %+v", resp)
	}
	return resp
}

func TestHandlers_HandleSearch(t *testing.T) {
	t.Run("runs and stores the search", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())

		w := s.do("POST", "/v1/search", SearchRequest{Goal: "pick a vacation city"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp SearchResponse
		decodeEnvelope(t, w, &resp)
		if resp.Answer != "Go to Lisbon." || resp.RunID == "" {
			t.Errorf("unexpected response %+v", resp)
		}
		if len(resp.Trace.Levels) != 1 || resp.Trace.KeptAt(0) != 1 {
			t.Errorf("unexpected trace %+v", resp.Trace)
		}
		if _, err := s.store.LoadSearch(context.Background(), resp.RunID); err != nil {
			t.Errorf("expected search to be stored: %v", err)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("expected X-Request-ID header")
		}
	})

	t.Run("missing goal", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())
		w := s.do("POST", "/v1/search", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
		decodeError(t, w)
	})

	t.Run("invalid config", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())
		cfg := tot.DefaultSearchConfig()
		cfg.ThoughtsPerStep = 11
		w := s.do("POST", "/v1/search", SearchRequest{Goal: "x", Config: &cfg})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
		if resp := decodeError(t, w); !strings.Contains(resp.Error, "thoughts_per_step") {
			t.Errorf("expected field name in error, got %q", resp.Error)
		}
	})

	t.Run("config above the server limits", func(t *testing.T) {
		m := scriptedModel()
		s := newTestServer(t, m)
		cfg := tot.SearchConfig{BeamWidth: 1 << 30, MaxDepth: 1 << 30, ThoughtsPerStep: 10}
		w := s.do("POST", "/v1/search", SearchRequest{Goal: "x", Config: &cfg})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
		if resp := decodeError(t, w); !strings.Contains(resp.Error, "beam_width must be at most 4") {
			t.Errorf("expected ceiling in error, got %q", resp.Error)
		}
		if len(m.Calls) != 0 {
			t.Errorf("expected no model calls, got %d", len(m.Calls))
		}

		cfg = tot.SearchConfig{BeamWidth: 2, MaxDepth: 50, ThoughtsPerStep: 3}
		w = s.do("POST", "/v1/search", SearchRequest{Goal: "x", Config: &cfg})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
		if resp := decodeError(t, w); !strings.Contains(resp.Error, "max_depth") {
			t.Errorf("expected field name in error, got %q", resp.Error)
		}
	})

	t.Run("oracle failure", func(t *testing.T) {
		s := newTestServer(t, &model.MockChatModel{Err: errors.New("upstream down")})
		w := s.do("POST", "/v1/search", SearchRequest{Goal: "x"})
		if w.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", w.Code)
		}
		decodeError(t, w)
	})

	t.Run("not configured", func(t *testing.T) {
		h := NewHandlers(workflow.NewRegistry(), nil, nil)
		router := NewRouter(h, nil)
		req, _ := http.NewRequest("POST", "/v1/search", strings.NewReader(`{"goal":"x"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})
}

func TestHandlers_HandleChat(t *testing.T) {
	s := newTestServer(t, scriptedModel())

	t.Run("default mode", func(t *testing.T) {
		w := s.do("POST", "/v1/chat", ChatRequest{Query: "hello"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var res workflow.Result
		decodeEnvelope(t, w, &res)
		if res.Mode != workflow.ModeDefault || res.Answer != "echo: hello" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("tree mode returns trace", func(t *testing.T) {
		w := s.do("POST", "/v1/chat", ChatRequest{Query: "pick a vacation city", Mode: "tot"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var res workflow.Result
		decodeEnvelope(t, w, &res)
		if res.Answer != "Go to Lisbon." || res.Trace == nil || res.RunID == "" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		w := s.do("POST", "/v1/chat", ChatRequest{Query: "hello", Mode: "psychic"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
		decodeError(t, w)
	})

	t.Run("empty query", func(t *testing.T) {
		w := s.do("POST", "/v1/chat", ChatRequest{Query: ""})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req, _ := http.NewRequest("POST", "/v1/chat", strings.NewReader("{"))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}

func TestHandlers_Searches(t *testing.T) {
	s := newTestServer(t, scriptedModel())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := s.store.SaveSearch(context.Background(), store.SearchRecord{
			RunID:     fmt.Sprintf("run-%d", i),
			Goal:      fmt.Sprintf("goal %d", i),
			Answer:    "answer",
			Config:    tot.DefaultSearchConfig(),
			Trace:     tot.SearchTrace{RunID: fmt.Sprintf("run-%d", i), Levels: [][]tot.TraceEntry{{}}},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveSearch returned error: %v", err)
		}
	}

	t.Run("get by id", func(t *testing.T) {
		w := s.do("GET", "/v1/searches/run-1", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var rec store.SearchRecord
		decodeEnvelope(t, w, &rec)
		if rec.RunID != "run-1" || rec.Goal != "goal 1" {
			t.Errorf("unexpected record %+v", rec)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		w := s.do("GET", "/v1/searches/nope", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
		decodeError(t, w)
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		w := s.do("GET", "/v1/searches?limit=2", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var items []SearchSummary
		decodeEnvelope(t, w, &items)
		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
		if items[0].RunID != "run-2" || items[1].RunID != "run-1" {
			t.Errorf("unexpected order %s, %s", items[0].RunID, items[1].RunID)
		}
		if items[0].Levels != 1 {
			t.Errorf("expected level count in summary, got %d", items[0].Levels)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, limit := range []string{"0", "-3", "many"} {
			w := s.do("GET", "/v1/searches?limit="+limit, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("limit %q: expected status 400, got %d", limit, w.Code)
			}
		}
	})
}

func TestHandlers_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, scriptedModel())

	w := s.do("GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var health HealthResponse
	decodeEnvelope(t, w, &health)
	if health.Status != "healthy" || health.Store != "ok" || len(health.Modes) != 6 {
		t.Errorf("unexpected health %+v", health)
	}

	if w := s.do("POST", "/v1/search", SearchRequest{Goal: "pick a vacation city"}); w.Code != http.StatusOK {
		t.Fatalf("search failed with %d", w.Code)
	}
	w = s.do("GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "branchchat_searches_total") {
		t.Errorf("expected search counter in metrics output")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&tot.InvalidConfigError{Field: "max_depth", Reason: "must be at least 1"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", workflow.ErrUnknownMode), http.StatusBadRequest},
		{workflow.ErrEmptyQuery, http.StatusBadRequest},
		{fmt.Errorf("%w: reply requires referred_message", workflow.ErrInvalidPrompt), http.StatusBadRequest},
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("conversation 7: %w", store.ErrNotFound), http.StatusNotFound},
		{&tot.OracleError{Role: tot.RoleGenerator, Err: errors.New("x")}, http.StatusBadGateway},
		{fmt.Errorf("triage: %w", tot.ErrContractViolation), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
