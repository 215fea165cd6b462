package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/config"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/research"
)

// GoogleAi creates the langchaingo Gemini model used for plain text generation.
func GoogleAi(ctx context.Context, cfg *config.Config) (*googleai.GoogleAI, error) {
	// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.GeminiAPIKey),
		googleai.WithDefaultModel(cfg.AnswerModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init LLM: %w", err)
	}
	return llm, nil
}

// LangchainGenerator adapts a langchaingo model to research.TextGenerator.
type LangchainGenerator struct {
	LLM llms.Model
}

func NewLangchainGenerator(llm llms.Model) *LangchainGenerator {
	return &LangchainGenerator{LLM: llm}
}

func (g *LangchainGenerator) Generate(ctx context.Context, prompt string, opts research.GenerateOptions) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, g.LLM, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	return text, nil
}

// GeminiSearcher runs prompts through Gemini with the Google Search tool enabled. Calls are
// spaced by at least MinInterval when one is configured.
type GeminiSearcher struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

func NewGeminiSearcher(ctx context.Context, cfg *config.Config) (*GeminiSearcher, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}
	return &GeminiSearcher{
		client:  client,
		model:   cfg.QueryGeneratorModel,
		limiter: newSearchLimiter(cfg.SearchMinInterval),
	}, nil
}

func newSearchLimiter(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

func (s *GeminiSearcher) Search(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("grounded search failed: %w", err)
	}
	return resp, nil
}
