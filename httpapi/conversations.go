package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dshills/branchchat/chat"
	"github.com/dshills/branchchat/tot/store"
	"github.com/dshills/branchchat/workflow"
	"github.com/gin-gonic/gin"
)

// ContentTypeNDJSON is the content type of streamed message answers.
const ContentTypeNDJSON = "application/x-ndjson"

// WithConversations enables the /v1/conversations routes. Without it they
// answer 503.
func (h *Handlers) WithConversations(svc *chat.Service) *Handlers {
	h.chat = svc
	return h
}

// HandleCreateConversation handles POST /v1/conversations.
//
// Response:
//
//	200 OK: ConversationResponse
//	400 Bad Request: missing first_msg
//	404 Not Found: message_id does not exist
func (h *Handlers) HandleCreateConversation(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleCreateConversation")
	if h.chat == nil {
		abort(c, http.StatusServiceUnavailable, "conversations are not configured")
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		abort(c, http.StatusBadRequest, "invalid request body: first_msg is required")
		return
	}

	conv, err := h.chat.StartConversation(c.Request.Context(), req.FirstMsg, req.MessageID)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: ConversationResponse{Conversation: conv}})
}

// HandleListConversations handles GET /v1/conversations?limit=N, newest
// first. Branches are listed alongside root conversations.
func (h *Handlers) HandleListConversations(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleListConversations")
	if h.chat == nil {
		abort(c, http.StatusServiceUnavailable, "conversations are not configured")
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	convs, err := h.chat.ListConversations(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: ConversationListResponse{Conversations: convs}})
}

// HandleGetConversation handles GET /v1/conversations/:id. The data lists
// the messages with the conversations branched from each, and the path of
// conversations from the root.
func (h *Handlers) HandleGetConversation(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleGetConversation")
	if h.chat == nil {
		abort(c, http.StatusServiceUnavailable, "conversations are not configured")
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}
	details, err := h.chat.Details(c.Request.Context(), id)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: details})
}

// HandleCreateMessage handles POST /v1/conversations/:id/messages.
//
// The answer is streamed as newline-delimited JSON chat.Delta values:
// an optional reasoning_summary line, then real_content lines that
// concatenate to the stored answer. Failures before the first line are
// reported as an ErrorResponse with the usual status mapping.
func (h *Handlers) HandleCreateMessage(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleCreateMessage")
	if h.chat == nil {
		abort(c, http.StatusServiceUnavailable, "conversations are not configured")
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}
	promptMode, err := workflow.ParsePromptMode(req.PromptMode)
	if err != nil {
		h.fail(c, logger, err)
		return
	}

	started := false
	start := func() {
		if !started {
			c.Header("Content-Type", ContentTypeNDJSON)
			c.Header("Cache-Control", "no-cache")
			c.Status(http.StatusOK)
			started = true
		}
	}
	enc := json.NewEncoder(c.Writer)
	sink := func(d chat.Delta) error {
		start()
		if err := enc.Encode(d); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), chat.SendRequest{
		ConversationID:    id,
		Query:             req.UserMessage,
		IsNewConversation: req.IsNewConversation,
		Mode:              workflow.ParseMode(req.AgenticMode),
		PromptMode:        promptMode,
		PromptData:        req.ExtraData,
	}, sink)
	if err != nil {
		if !started {
			h.fail(c, logger, err)
			return
		}
		logger.Error("failed to store streamed answer", "conversation_id", id, "error", err)
		return
	}
	start()
	logger.Info("message answered", "conversation_id", id, "message_id", msg.ID)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		abort(c, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parseLimit(c *gin.Context) (int, bool) {
	limit := store.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abort(c, http.StatusBadRequest, "limit must be a positive integer")
			return 0, false
		}
		limit = min(n, MaxListLimit)
	}
	return limit, true
}
