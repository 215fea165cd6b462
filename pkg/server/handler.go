package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/research"
)

// StreamEvent is a single server-sent event of the streaming endpoint.
type StreamEvent struct {
	Type    string      `json:"type"` // "start", "progress", "log", "complete", "error"
	Payload interface{} `json:"payload,omitempty"`
}

// ProgressPayload summarises the state after a completed step.
type ProgressPayload struct {
	Phase          research.Phase `json:"phase"`
	LoopCount      int            `json:"loop_count"`
	QueriesRun     int            `json:"queries_run"`
	Findings       int            `json:"findings"`
	PendingQueries []string       `json:"pending_queries,omitempty"`
}

type Handler struct {
	Service *Service
	MCP     http.Handler
}

func NewHandler(s *Service, mcp http.Handler) *Handler {
	return &Handler{Service: s, MCP: mcp}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.MCP != nil {
		r.Any("/mcp", gin.WrapH(h.MCP))
	}

	api := r.Group("/api")
	{
		api.POST("/research", h.research)
		api.POST("/research/stream", h.researchStream)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) research(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}

	resp, err := h.Service.Research(c.Request.Context(), "research", req, Observer{})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) researchStream(c *gin.Context) {
	req, ok := bindRequest(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	// Web research logs from several goroutines at once.
	var mu sync.Mutex
	send := func(event StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		writeEvent(c, event)
	}

	send(StreamEvent{Type: "start"})

	logger := slog.New(NewStreamLogHandler(h.Service.Logger.Handler(), slog.LevelInfo, func(p LogPayload) {
		send(StreamEvent{Type: "log", Payload: p})
	}))

	resp, err := h.Service.Research(c.Request.Context(), "research_stream", req, Observer{
		Logger: logger,
		OnProgress: func(st research.ResearchState) {
			send(StreamEvent{Type: "progress", Payload: ProgressPayload{
				Phase:          st.Phase,
				LoopCount:      st.LoopCount,
				QueriesRun:     st.QueriesRun,
				Findings:       len(st.Findings),
				PendingQueries: st.PendingQueries,
			}})
		},
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			// client is gone
			return
		}
		send(StreamEvent{Type: "error", Payload: err.Error()})
		return
	}
	send(StreamEvent{Type: "complete", Payload: resp})
}

// requestBody is research.Request as decoded from JSON. The pointer fields tell an omitted count
// apart from an explicit 0.
type requestBody struct {
	research.Request
	MaxResearchLoops        *int `json:"max_research_loops,omitempty"`
	InitialSearchQueryCount *int `json:"initial_search_query_count,omitempty"`
}

// bindRequest decodes the request body and rejects it with 400 before any research starts.
// Omitted counts are left at 0 so the engine applies its configured defaults.
func bindRequest(c *gin.Context) (research.Request, bool) {
	var body requestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return research.Request{}, false
	}
	req := body.Request
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": research.ErrMissingMessage.Error()})
		return req, false
	}
	if n := body.MaxResearchLoops; n != nil {
		if *n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_research_loops must be >= 1"})
			return req, false
		}
		req.MaxResearchLoops = *n
	}
	if n := body.InitialSearchQueryCount; n != nil {
		if *n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "initial_search_query_count must be >= 1"})
			return req, false
		}
		req.InitialSearchQueryCount = *n
	}
	return req, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, research.ErrMissingMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEvent(c *gin.Context, event StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
