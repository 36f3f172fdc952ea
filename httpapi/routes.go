package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the API on router.
//
// Endpoints:
//
//	POST /v1/search        - Run a tree search
//	POST /v1/chat          - Answer a chat turn with the selected mode
//	GET  /v1/searches      - List stored searches, newest first
//	GET  /v1/searches/:id  - Get a stored search with its trace
//	POST /v1/conversations              - Start a conversation or a branch
//	GET  /v1/conversations              - List conversations, newest first
//	GET  /v1/conversations/:id          - Messages, branches and path
//	POST /v1/conversations/:id/messages - Answer a turn as an NDJSON stream
//	GET  /health           - Liveness and store reachability
//	GET  /metrics          - Prometheus metrics from gatherer, if non-nil
func RegisterRoutes(router gin.IRouter, h *Handlers, gatherer prometheus.Gatherer) {
	v1 := router.Group("/v1")
	{
		v1.POST("/search", h.HandleSearch)
		v1.POST("/chat", h.HandleChat)
		v1.GET("/searches", h.HandleListSearches)
		v1.GET("/searches/:id", h.HandleGetSearch)
		v1.POST("/conversations", h.HandleCreateConversation)
		v1.GET("/conversations", h.HandleListConversations)
		v1.GET("/conversations/:id", h.HandleGetConversation)
		v1.POST("/conversations/:id/messages", h.HandleCreateMessage)
	}

	router.GET("/health", h.HandleHealth)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// NewRouter returns a gin engine with recovery middleware and every route
// registered.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, h, gatherer)
	return router
}
