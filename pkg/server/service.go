package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/metrics"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/research"
)

// Service runs research requests against a shared, read-only engine.
type Service struct {
	Engine *research.Engine
	Logger *slog.Logger
}

func NewService(engine *research.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Engine: engine, Logger: logger}
}

// Observer receives what happens inside one request. Both fields are optional.
type Observer struct {
	// OnProgress receives the state after each completed step.
	OnProgress func(research.ResearchState)
	// Logger replaces the engine logger for this request.
	Logger *slog.Logger
}

// Research runs one request to completion.
func (s *Service) Research(ctx context.Context, endpoint string, req research.Request, obs Observer) (research.Response, error) {
	start := time.Now()
	defer func() {
		metrics.RequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	engine := s.Engine
	if obs.OnProgress != nil {
		engine = engine.WithProgress(obs.OnProgress)
	}
	if obs.Logger != nil {
		engine = engine.WithLogger(obs.Logger)
	}

	result, err := engine.Run(ctx, req)
	if err != nil {
		status := "error"
		switch {
		case errors.Is(err, research.ErrMissingMessage):
			status = "rejected"
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = "canceled"
		}
		metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
		return research.Response{}, err
	}

	status := "ok"
	if result.Error != "" {
		status = "degraded"
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	return result.Response(), nil
}
