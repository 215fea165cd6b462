package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/config"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/metrics"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/splitter"
)

// GenerateOptions selects the model and sampling temperature of one generation call.
// An empty Model means the generator's default.
type GenerateOptions struct {
	Model       string
	Temperature float64
}

// TextGenerator generates text from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Searcher runs a prompt against a search-grounded model and returns the raw response,
// grounding metadata included.
type Searcher interface {
	Search(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error)
}

// Phase is a state of the research state machine.
type Phase string

const (
	PhaseGeneratingQueries Phase = "generating_queries"
	PhaseResearchingWeb    Phase = "researching_web"
	PhaseReflecting        Phase = "reflecting"
	PhaseFinalizing        Phase = "finalizing"
	PhaseDone              Phase = "done"
)

type Engine struct {
	Config        *config.Config
	LLM           TextGenerator
	Search        Searcher
	Guard         *CallGuard
	Logger        *slog.Logger
	OnStateUpdate func(state ResearchState)
	Now           func() time.Time
}

func NewEngine(cfg *config.Config, llm TextGenerator, search Searcher, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Config: cfg,
		LLM:    llm,
		Search: search,
		Guard:  NewCallGuard(cfg.RetryAttempts, cfg.RetryBaseDelay, logger),
		Logger: logger,
		Now:    time.Now,
	}
}

// WithProgress returns a copy of the engine that reports state after every completed step.
func (e *Engine) WithProgress(fn func(state ResearchState)) *Engine {
	cp := *e
	cp.OnStateUpdate = fn
	return &cp
}

// WithLogger returns a copy of the engine logging to logger, retries included.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	cp := *e
	cp.Logger = logger
	if e.Guard != nil {
		g := *e.Guard
		g.Logger = logger
		cp.Guard = &g
	}
	return &cp
}

// NewState builds the initial state for a validated request.
func NewState(req Request) *ResearchState {
	return &ResearchState{
		Conversation:      req.Conversation(),
		LoopLimit:         max(req.MaxResearchLoops, 1),
		InitialQueryCount: max(req.InitialSearchQueryCount, 1),
		ReasoningModel:    req.ReasoningModel,
		Phase:             PhaseGeneratingQueries,
	}
}

// Run drives one request through the research state machine. It returns an error only when the
// request is invalid or ctx is cancelled; every other failure is folded into the Result.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(e.Config.MaxResearchLoops, e.Config.InitialQueryCount); err != nil {
		return Result{}, err
	}
	st := NewState(req)
	return e.run(ctx, st)
}

func (e *Engine) run(ctx context.Context, st *ResearchState) (result Result, err error) {
	requestLogger := e.logger().With("request_id", uuid.NewString())
	eng := e.WithLogger(requestLogger)
	requestLogger.Info("Starting research", "loop_limit", st.LoopLimit, "initial_queries", st.InitialQueryCount)

	defer func() {
		if r := recover(); r != nil {
			requestLogger.Error("Research aborted by unexpected error", "panic", r, "phase", st.Phase)
			result = Result{
				Answer:         fallbackAnswer(st.RunningSummary, fmt.Errorf("%v", r)),
				Sources:        DedupSources(st.Sources),
				LoopsCompleted: st.LoopCount,
				Error:          fmt.Sprintf("unexpected error: %v", r),
				Timestamp:      eng.now(),
			}
			err = nil
		}
		if err == nil {
			metrics.LoopsCompleted.Observe(float64(result.LoopsCompleted))
		}
	}()

	for st.Phase != PhaseDone {
		if err := ctx.Err(); err != nil {
			requestLogger.Warn("Research cancelled, no further steps scheduled", "phase", st.Phase)
			return Result{}, err
		}

		switch st.Phase {
		case PhaseGeneratingQueries:
			eng.generateQueries(ctx, st)
			st.Phase = PhaseResearchingWeb

		case PhaseResearchingWeb:
			if err := eng.researchPending(ctx, st); err != nil {
				requestLogger.Warn("Research cancelled during web research", "error", err)
				return Result{}, err
			}
			st.Phase = PhaseReflecting

		case PhaseReflecting:
			verdict := eng.reflect(ctx, st)
			switch {
			case st.LoopCount >= st.LoopLimit:
				requestLogger.Info("Research loop limit reached", "loops", st.LoopCount)
				st.Phase = PhaseFinalizing
			case verdict.Sufficient:
				st.Phase = PhaseFinalizing
			default:
				st.Phase = PhaseResearchingWeb
			}

		case PhaseFinalizing:
			result = eng.finalize(ctx, st)
			st.Phase = PhaseDone

		default:
			panic(fmt.Sprintf("unknown research phase %q", st.Phase))
		}

		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		eng.notify(st)
	}

	requestLogger.Info("Research complete", "loops", result.LoopsCompleted, "sources", len(result.Sources))
	return result, nil
}

// researchPending runs web research for every pending query and merges the results in
// submission order.
func (e *Engine) researchPending(ctx context.Context, st *ResearchState) error {
	queries := st.PendingQueries
	results := make([]webResult, len(queries))
	loop := st.LoopCount
	base := st.QueriesRun

	var g errgroup.Group
	if n := e.Config.SearchConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, q := range queries {
		g.Go(func() error {
			// A panicking search fails only its own query.
			defer func() {
				if r := recover(); r != nil {
					e.logger().Error("Web research aborted by unexpected error", "query", q, "panic", r)
					text := searchErrorPlaceholder(q, fmt.Errorf("%v", r))
					results[i] = webResult{
						Finding: Finding{Title: q, Snippet: splitter.Snippet(text, snippetLength), FullText: text},
						Summary: text,
					}
				}
			}()
			r, err := e.webResearch(ctx, q, loop, base+i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		st.Findings = append(st.Findings, r.Finding)
		st.Sources = append(st.Sources, r.Sources...)
		st.RunningSummary = append(st.RunningSummary, r.Summary)
	}
	st.QueriesRun += len(queries)
	st.PendingQueries = nil
	return nil
}

func (e *Engine) notify(st *ResearchState) {
	if e.OnStateUpdate != nil {
		e.OnStateUpdate(*st)
	}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) guard() *CallGuard {
	if e.Guard == nil {
		return NewCallGuard(e.Config.RetryAttempts, e.Config.RetryBaseDelay, e.logger())
	}
	return e.Guard
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
