package httpapi

import (
	"time"

	"github.com/dshills/branchchat/tot"
	"github.com/dshills/branchchat/tot/model"
	"github.com/dshills/branchchat/tot/store"
	"github.com/dshills/branchchat/workflow"
)

// Response envelope codes.
const (
	CodeOK    = 0
	CodeError = 1
)

// Envelope wraps every successful response.
type Envelope struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	// Goal is the question to search on. Required.
	Goal string `json:"goal" binding:"required"`

	// Config overrides the server's search configuration. Every field must
	// be set when present, and beam width and depth must lie within the
	// server's search limits.
	Config *tot.SearchConfig `json:"config,omitempty"`
}

// SearchResponse is the data of POST /v1/search.
type SearchResponse struct {
	RunID   string          `json:"run_id"`
	Answer  string          `json:"answer"`
	CostUSD float64         `json:"cost_usd"`
	Trace   tot.SearchTrace `json:"trace"`
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Query   string          `json:"query"`
	Mode    string          `json:"mode,omitempty"`
	History []model.Message `json:"history,omitempty"`
}

// SearchSummary is one item of GET /v1/searches.
type SearchSummary struct {
	RunID     string    `json:"run_id"`
	Goal      string    `json:"goal"`
	Answer    string    `json:"answer"`
	Levels    int       `json:"levels"`
	CostUSD   float64   `json:"cost_usd"`
	CreatedAt time.Time `json:"created_at"`
}

func summarize(rec store.SearchRecord) SearchSummary {
	return SearchSummary{
		RunID:     rec.RunID,
		Goal:      rec.Goal,
		Answer:    rec.Answer,
		Levels:    len(rec.Trace.Levels),
		CostUSD:   rec.CostUSD,
		CreatedAt: rec.CreatedAt,
	}
}

// CreateConversationRequest is the body of POST /v1/conversations.
type CreateConversationRequest struct {
	// FirstMsg is stored as the first user message and summarized into the
	// conversation name. Required.
	FirstMsg string `json:"first_msg" binding:"required"`

	// MessageID forks the new conversation from an existing message.
	MessageID *int64 `json:"message_id,omitempty"`
}

// ConversationResponse is the data of POST /v1/conversations.
type ConversationResponse struct {
	Conversation store.Conversation `json:"conversation"`
}

// ConversationListResponse is the data of GET /v1/conversations.
type ConversationListResponse struct {
	Conversations []store.Conversation `json:"conversations"`
}

// CreateMessageRequest is the body of POST /v1/conversations/:id/messages.
type CreateMessageRequest struct {
	UserMessage string `json:"user_message"`

	// IsNewConversation is set for the turn answering first_msg, which is
	// already stored.
	IsNewConversation bool `json:"is_new_conversation"`

	// AgenticMode selects the workflow; empty selects default.
	AgenticMode string `json:"agentic_mode,omitempty"`

	// PromptMode is one of reply, select or new_thread; empty sends the
	// message as written. ExtraData carries what reply and select refer to.
	PromptMode string              `json:"prompt_mode,omitempty"`
	ExtraData  workflow.PromptData `json:"extra_data"`
}

// HealthResponse is the data of GET /health.
type HealthResponse struct {
	Status string   `json:"status"`
	Modes  []string `json:"modes"`
	Store  string   `json:"store"`
}
