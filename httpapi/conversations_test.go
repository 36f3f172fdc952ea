package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dshills/branchchat/chat"
	"github.com/dshills/branchchat/workflow"
)

func decodeDeltas(t *testing.T, w *httptest.ResponseRecorder) []chat.Delta {
	t.Helper()
	var deltas []chat.Delta
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		var d chat.Delta
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			t.Fatalf("invalid NDJSON line %q: %v", scanner.Text(), err)
		}
		deltas = append(deltas, d)
	}
	return deltas
}

func (s *testServer) startConversation(t *testing.T, body CreateConversationRequest) ConversationResponse {
	t.Helper()
	w := s.do("POST", "/v1/conversations", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ConversationResponse
	decodeEnvelope(t, w, &resp)
	return resp
}

func TestHandlers_Conversations(t *testing.T) {
	t.Run("start, answer and read back", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())
		conv := s.startConversation(t, CreateConversationRequest{FirstMsg: "pick a city"}).Conversation
		if conv.ID == 0 || conv.Name != "echo: pick a city" {
			t.Fatalf("unexpected conversation %+v", conv)
		}

		w := s.do("POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID),
			CreateMessageRequest{UserMessage: "pick a city", IsNewConversation: true})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != ContentTypeNDJSON {
			t.Errorf("expected %s, got %q", ContentTypeNDJSON, ct)
		}
		deltas := decodeDeltas(t, w)
		if len(deltas) != 1 || deltas[0].Type != chat.DeltaContent || deltas[0].Content != "echo: pick a city" {
			t.Fatalf("unexpected stream %+v", deltas)
		}

		w = s.do("GET", fmt.Sprintf("/v1/conversations/%d", conv.ID), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var details chat.Details
		decodeEnvelope(t, w, &details)
		if len(details.Messages) != 2 || details.Messages[1].ID != deltas[0].MessageID || details.Messages[1].Content != "echo: pick a city" {
			t.Errorf("unexpected messages %+v", details.Messages)
		}
		if len(details.Path) != 1 || details.Path[0].ID != conv.ID {
			t.Errorf("unexpected path %+v", details.Path)
		}
	})

	t.Run("branch from an answer", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())
		root := s.startConversation(t, CreateConversationRequest{FirstMsg: "pick a city"}).Conversation
		w := s.do("POST", fmt.Sprintf("/v1/conversations/%d/messages", root.ID),
			CreateMessageRequest{UserMessage: "pick a city", IsNewConversation: true})
		answerID := decodeDeltas(t, w)[0].MessageID

		branch := s.startConversation(t, CreateConversationRequest{FirstMsg: "why?", MessageID: &answerID}).Conversation
		if branch.MessageID == nil || *branch.MessageID != answerID {
			t.Fatalf("expected branch from %d, got %+v", answerID, branch)
		}
		w = s.do("POST", fmt.Sprintf("/v1/conversations/%d/messages", branch.ID),
			CreateMessageRequest{UserMessage: "why?", IsNewConversation: true})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		w = s.do("GET", fmt.Sprintf("/v1/conversations/%d", root.ID), nil)
		var details chat.Details
		decodeEnvelope(t, w, &details)
		answer := details.Messages[1]
		if answer.NumOfChildren != 1 || len(answer.ChildConversations) != 1 || answer.ChildConversations[0].ID != branch.ID {
			t.Errorf("expected the branch under the answer, got %+v", answer)
		}

		w = s.do("GET", fmt.Sprintf("/v1/conversations/%d", branch.ID), nil)
		decodeEnvelope(t, w, &details)
		if len(details.Path) != 2 || details.Path[0].ID != root.ID || details.Path[1].ID != branch.ID {
			t.Errorf("unexpected path %+v", details.Path)
		}

		w = s.do("GET", "/v1/conversations?limit=1", nil)
		var list ConversationListResponse
		decodeEnvelope(t, w, &list)
		if len(list.Conversations) != 1 || list.Conversations[0].ID != branch.ID {
			t.Errorf("expected the newest conversation only, got %+v", list.Conversations)
		}
	})

	t.Run("tree mode streams the reasoning first", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())
		conv := s.startConversation(t, CreateConversationRequest{FirstMsg: "pick a vacation city"}).Conversation
		w := s.do("POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID),
			CreateMessageRequest{UserMessage: "pick a vacation city", IsNewConversation: true, AgenticMode: "tot"})
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		deltas := decodeDeltas(t, w)
		if len(deltas) != 2 || deltas[0].Type != chat.DeltaReasoning || !strings.HasPrefix(deltas[0].Content, "Step 1: Lisbon") {
			t.Fatalf("unexpected stream %+v", deltas)
		}
		if deltas[1].Type != chat.DeltaContent || deltas[1].Content != "Go to Lisbon." {
			t.Errorf("unexpected answer %+v", deltas[1])
		}
	})

	t.Run("reply records the referred message", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())
		conv := s.startConversation(t, CreateConversationRequest{FirstMsg: "pick a city"}).Conversation
		w := s.do("POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID),
			CreateMessageRequest{UserMessage: "pick a city", IsNewConversation: true})
		answerID := decodeDeltas(t, w)[0].MessageID

		w = s.do("POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID), CreateMessageRequest{
			UserMessage: "explain",
			PromptMode:  "reply",
			ExtraData: workflow.PromptData{
				ReferredMessage: &workflow.ReferredMessage{ID: answerID},
				SubStr:          "city",
			},
		})
		var answer strings.Builder
		for _, d := range decodeDeltas(t, w) {
			answer.WriteString(d.Content)
		}
		if !strings.Contains(answer.String(), `the sub text "city" of the message "echo: pick a city"`) {
			t.Fatalf("unexpected answer %q", answer.String())
		}
		reply, err := s.store.ListMessages(t.Context(), conv.ID)
		if err != nil {
			t.Fatalf("ListMessages returned error: %v", err)
		}
		if user := reply[2]; user.ReferredMessageID == nil || *user.ReferredMessageID != answerID || user.ReferredContent != "city" {
			t.Errorf("unexpected stored reply %+v", user)
		}
	})

	t.Run("errors", func(t *testing.T) {
		s := newTestServer(t, scriptedModel())
		conv := s.startConversation(t, CreateConversationRequest{FirstMsg: "pick a city"}).Conversation
		missing := int64(999)

		tests := []struct {
			name   string
			method string
			path   string
			body   interface{}
			want   int
		}{
			{"missing first message", "POST", "/v1/conversations", map[string]string{}, http.StatusBadRequest},
			{"branch from missing message", "POST", "/v1/conversations", CreateConversationRequest{FirstMsg: "x", MessageID: &missing}, http.StatusNotFound},
			{"bad id", "GET", "/v1/conversations/abc", nil, http.StatusBadRequest},
			{"missing conversation", "GET", "/v1/conversations/999", nil, http.StatusNotFound},
			{"bad limit", "GET", "/v1/conversations?limit=0", nil, http.StatusBadRequest},
			{"message to missing conversation", "POST", "/v1/conversations/999/messages", CreateMessageRequest{UserMessage: "x"}, http.StatusNotFound},
			{"unknown agentic mode", "POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID), CreateMessageRequest{UserMessage: "x", AgenticMode: "psychic"}, http.StatusBadRequest},
			{"unknown prompt mode", "POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID), CreateMessageRequest{UserMessage: "x", PromptMode: "quote"}, http.StatusBadRequest},
			{"select without messages", "POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID), CreateMessageRequest{UserMessage: "x", PromptMode: "select"}, http.StatusBadRequest},
			{"reply to missing message", "POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID), CreateMessageRequest{UserMessage: "x", PromptMode: "reply",
				ExtraData: workflow.PromptData{ReferredMessage: &workflow.ReferredMessage{ID: 999}}}, http.StatusNotFound},
			{"empty message", "POST", fmt.Sprintf("/v1/conversations/%d/messages", conv.ID), CreateMessageRequest{}, http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w := s.do(tt.method, tt.path, tt.body)
				if w.Code != tt.want {
					t.Fatalf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
				}
				decodeError(t, w)
			})
		}
	})

	t.Run("not configured", func(t *testing.T) {
		router := NewRouter(NewHandlers(workflow.NewRegistry(), nil, nil), nil)
		req, _ := http.NewRequest("GET", "/v1/conversations", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})
}
