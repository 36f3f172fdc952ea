// Package httpapi exposes the chat workflows and stored tree searches over
// HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dshills/branchchat/chat"
	"github.com/dshills/branchchat/tot"
	"github.com/dshills/branchchat/tot/store"
	"github.com/dshills/branchchat/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MaxListLimit caps the limit query parameter of list routes.
const MaxListLimit = 100

// Handlers serves the HTTP API.
type Handlers struct {
	registry *workflow.Registry
	tree     *workflow.TreeOfThoughts
	store    store.Store
	chat     *chat.Service
	logger   *slog.Logger
}

// NewHandlers creates handlers over registry. tree serves /v1/search and
// st serves /v1/searches; either may be nil, in which case those routes
// answer 503.
func NewHandlers(registry *workflow.Registry, tree *workflow.TreeOfThoughts, st store.Store) *Handlers {
	return &Handlers{registry: registry, tree: tree, store: st, logger: slog.Default()}
}

// WithLogger sets the request logger.
func (h *Handlers) WithLogger(logger *slog.Logger) *Handlers {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// HandleSearch handles POST /v1/search.
//
// Response:
//
//	200 OK: SearchResponse
//	400 Bad Request: missing goal, invalid config or config above the limits
//	502 Bad Gateway: an oracle failed or broke its contract
//	503 Service Unavailable: tree search is not configured
func (h *Handlers) HandleSearch(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleSearch")

	if h.tree == nil {
		abort(c, http.StatusServiceUnavailable, "tree search is not configured")
		return
	}

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		abort(c, http.StatusBadRequest, "invalid request body: goal is required")
		return
	}

	cfg := h.tree.DefaultConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	rec, err := h.tree.Search(c.Request.Context(), req.Goal, cfg)
	if err != nil {
		h.fail(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: SearchResponse{
		RunID:   rec.RunID,
		Answer:  rec.Answer,
		CostUSD: rec.CostUSD,
		Trace:   rec.Trace,
	}})
}

// HandleChat handles POST /v1/chat. An empty mode selects the default
// workflow.
func (h *Handlers) HandleChat(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleChat")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := workflow.ParseMode(req.Mode)
	logger.Info("chat turn", "mode", mode, "history", len(req.History))

	res, err := h.registry.Run(c.Request.Context(), mode, workflow.Request{Query: req.Query, History: req.History})
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: res})
}

// HandleGetSearch handles GET /v1/searches/:id.
func (h *Handlers) HandleGetSearch(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleGetSearch")

	if h.store == nil {
		abort(c, http.StatusServiceUnavailable, "search store is not configured")
		return
	}

	rec, err := h.store.LoadSearch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: rec})
}

// HandleListSearches handles GET /v1/searches?limit=N, newest first.
func (h *Handlers) HandleListSearches(c *gin.Context) {
	logger := h.logger.With("request_id", getOrCreateRequestID(c), "handler", "HandleListSearches")

	if h.store == nil {
		abort(c, http.StatusServiceUnavailable, "search store is not configured")
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	recs, err := h.store.ListSearches(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, logger, err)
		return
	}
	items := make([]SearchSummary, 0, len(recs))
	for _, rec := range recs {
		items = append(items, summarize(rec))
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: items})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	modes := h.registry.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}

	storeStatus := "disabled"
	if h.store != nil {
		storeStatus = "ok"
		if p, ok := h.store.(interface{ Ping(context.Context) error }); ok {
			if err := p.Ping(c.Request.Context()); err != nil {
				h.logger.Warn("store ping failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, Envelope{Code: CodeError, Data: HealthResponse{Status: "degraded", Modes: names, Store: "unreachable"}})
				return
			}
		}
	}
	c.JSON(http.StatusOK, Envelope{Code: CodeOK, Data: HealthResponse{Status: "healthy", Modes: names, Store: storeStatus}})
}

// fail maps err to a status code and writes the error response.
func (h *Handlers) fail(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}
	abort(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, tot.ErrInvalidConfig),
		errors.Is(err, workflow.ErrUnknownMode),
		errors.Is(err, workflow.ErrEmptyQuery),
		errors.Is(err, workflow.ErrInvalidPrompt):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tot.ErrOracle), errors.Is(err, tot.ErrContractViolation):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: CodeError, Error: msg})
}

// getOrCreateRequestID returns X-Request-ID, generating one when absent,
// and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
