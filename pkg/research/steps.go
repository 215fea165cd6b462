package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/metrics"
	"github.com/trungnghia112/gemini-fullstack-langgraph-quickstart/pkg/splitter"
)

const (
	// FallbackRationale accompanies the single-query set used when query generation fails.
	FallbackRationale = "Falling back to the original research topic because query generation failed."

	snippetLength = 200
)

var errEmptyResponse = errors.New("empty response from search API")

// ResearchTopic renders the conversation as the topic handed to the prompts. A single message is
// used verbatim; longer conversations are rendered turn by turn with role labels.
func ResearchTopic(messages []Message) string {
	if len(messages) == 1 {
		return messages[0].Content
	}
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant, "ai", "model":
			fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
		default:
			fmt.Fprintf(&b, "User: %s\n", m.Content)
		}
	}
	return b.String()
}

func fallbackQuerySet(topic string) SearchQuerySet {
	return SearchQuerySet{Queries: []string{topic}, Rationale: FallbackRationale}
}

// generateQueries turns the conversation into search queries and replaces PendingQueries.
func (e *Engine) generateQueries(ctx context.Context, st *ResearchState) SearchQuerySet {
	topic := ResearchTopic(st.Conversation)
	logger := e.logger()
	logger.Info("Generating search queries", "topic", truncateRunes(topic, 100), "count", st.InitialQueryCount)

	prompt := queryWriterPrompt(CurrentDate(e.now()), topic, st.InitialQueryCount)
	qs := fallbackQuerySet(topic)

	text, err := e.LLM.Generate(context.WithoutCancel(ctx), prompt, GenerateOptions{
		Model:       e.Config.QueryGeneratorModel,
		Temperature: 1.0,
	})
	if err != nil {
		logger.Error("Query generation failed, using fallback query", "error", err)
		metrics.ParseFallbacks.WithLabelValues("query_generation").Inc()
	} else if decoded, err := DecodeFenced(text, validateQuerySet); err != nil {
		logger.Error("Could not parse generated queries, using fallback query", "error", err)
		metrics.ParseFallbacks.WithLabelValues("query_generation").Inc()
	} else {
		qs = decoded
		qs.Queries = cleanQueries(qs.Queries)
		if len(qs.Queries) > st.InitialQueryCount {
			qs.Queries = qs.Queries[:st.InitialQueryCount]
		}
		logger.Info("Generated search queries", "queries", qs.Queries)
	}

	st.PendingQueries = qs.Queries
	return qs
}

// webResult is the output of one grounded search, merged into the state by the orchestrator.
type webResult struct {
	Finding Finding
	Sources []Source
	Summary string
}

// webResearch runs one grounded search for query. seq is unique within the request and
// namespaces the short URLs of this call. It only returns an error when ctx is cancelled.
func (e *Engine) webResearch(ctx context.Context, query string, loop, seq int) (webResult, error) {
	logger := e.logger().With("query", query, "loop", loop, "query_id", seq)
	logger.Info("Starting web research")

	prompt := webSearcherPrompt(CurrentDate(e.now()), query)

	var resp *genai.GenerateContentResponse
	err := e.guard().Do(ctx, "web_research", func(ctx context.Context) error {
		r, err := e.Search.Search(ctx, prompt)
		if err != nil {
			return err
		}
		if r == nil || len(r.Candidates) == 0 || r.Candidates[0] == nil {
			return errEmptyResponse
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return webResult{}, ctx.Err()
		}
		text := Fallback(err, quotaPlaceholder(query), searchErrorPlaceholder(query, err))
		return webResult{
			Finding: Finding{Title: query, Snippet: splitter.Snippet(text, snippetLength), FullText: text},
			Summary: text,
		}, nil
	}

	text := resp.Text()
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		logger.Warn("No grounding metadata in response")
		if strings.TrimSpace(text) == "" {
			text = "No search results available."
		}
		return webResult{
			Finding: Finding{Title: query, Snippet: splitter.Snippet(text, snippetLength), FullText: text},
			Summary: text,
		}, nil
	}

	resolved := ResolveURLs(meta.GroundingChunks, seq)
	citations := ExtractCitations(resp, resolved)
	cited := InsertCitationMarkers(text, citations)
	sources := SourcesFromCitations(citations)

	finding := Finding{Title: query, Snippet: splitter.Snippet(cited, snippetLength), FullText: cited}
	if len(sources) > 0 {
		finding.URL = sources[0].URL
	}

	logger.Info("Completed web research", "citations", len(citations), "sources", len(sources))
	return webResult{Finding: finding, Sources: sources, Summary: cited}, nil
}

// reflect asks the model whether the gathered summaries answer the topic. LoopCount is always
// incremented. A verdict that cannot be read, or an insufficient verdict without follow-up
// queries, is treated as sufficient.
func (e *Engine) reflect(ctx context.Context, st *ResearchState) ReflectionVerdict {
	st.LoopCount++
	logger := e.logger().With("loop", st.LoopCount)
	logger.Info("Starting reflection")

	model := st.ReasoningModel
	if model == "" {
		model = e.Config.ReflectionModel
	}
	prompt := reflectionPrompt(
		CurrentDate(e.now()),
		ResearchTopic(st.Conversation),
		strings.Join(st.RunningSummary, "\n\n---\n\n"),
	)

	var verdict ReflectionVerdict
	text, err := e.LLM.Generate(context.WithoutCancel(ctx), prompt, GenerateOptions{Model: model, Temperature: 1.0})
	if err != nil {
		logger.Error("Reflection failed, assuming research is sufficient", "error", err)
		metrics.ParseFallbacks.WithLabelValues("reflection").Inc()
		verdict = ReflectionVerdict{Sufficient: true, Gap: fmt.Sprintf("Unable to perform reflection due to API error: %v", err)}
	} else if decoded, err := DecodeFenced[ReflectionVerdict](text, nil); err != nil {
		logger.Error("Could not parse reflection, assuming research is sufficient", "error", err)
		metrics.ParseFallbacks.WithLabelValues("reflection").Inc()
		verdict = ReflectionVerdict{Sufficient: true, Gap: fmt.Sprintf("Unable to parse reflection: %v", err)}
	} else {
		verdict = decoded
	}

	verdict.FollowUpQueries = cleanQueries(verdict.FollowUpQueries)
	if !verdict.Sufficient && len(verdict.FollowUpQueries) == 0 {
		logger.Warn("Reflection reported a gap without follow-up queries, treating as sufficient")
		verdict.Sufficient = true
	}
	if verdict.Sufficient {
		verdict.FollowUpQueries = nil
		st.PendingQueries = nil
	} else {
		st.PendingQueries = verdict.FollowUpQueries
	}
	st.KnowledgeGap = verdict.Gap

	logger.Info("Reflection completed", "sufficient", verdict.Sufficient, "follow_up", len(verdict.FollowUpQueries))
	return verdict
}

// finalize writes the cited answer. It never fails: any error produces a summary of the raw
// research results with the gathered sources still attached.
func (e *Engine) finalize(ctx context.Context, st *ResearchState) Result {
	logger := e.logger()
	logger.Info("Finalizing research answer", "loops", st.LoopCount, "sources", len(st.Sources))

	sources := DedupSources(st.Sources)
	model := st.ReasoningModel
	if model == "" {
		model = e.Config.AnswerModel
	}
	prompt := answerPrompt(
		CurrentDate(e.now()),
		ResearchTopic(st.Conversation),
		strings.Join(st.RunningSummary, "\n---\n\n"),
		FormatSources(sources),
	)

	result := Result{Sources: sources, LoopsCompleted: st.LoopCount, Timestamp: e.now()}

	answer, err := e.LLM.Generate(context.WithoutCancel(ctx), prompt, GenerateOptions{Model: model, Temperature: 0})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty answer from model")
	}
	if err != nil {
		logger.Error("Answer finalization failed, returning research summary", "error", err)
		result.Answer = fallbackAnswer(st.RunningSummary, err)
		result.Error = err.Error()
		return result
	}

	logger.Info("Finalized research answer", "length", len(answer))
	result.Answer = answer
	return result
}

// FormatSources renders sources as a numbered markdown list.
func FormatSources(sources []Source) string {
	if len(sources) == 0 {
		return "No sources were gathered."
	}
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "%d. [%s](%s) - %s\n", i+1, s.Title, s.ShortURL, s.URL)
	}
	return b.String()
}

func fallbackAnswer(summaries []string, cause error) string {
	var b strings.Builder
	b.WriteString("# Research Summary\n\n")
	if IsQuotaError(cause) {
		b.WriteString("⚠️ **Note**: Unable to generate final summary due to API quota exhaustion.\n\n")
	} else {
		fmt.Fprintf(&b, "⚠️ **Note**: Unable to generate final summary due to an error: %v\n\n", cause)
	}
	b.WriteString("## Available Research Results:\n\n")
	if len(summaries) == 0 {
		b.WriteString("No research results were gathered before the error occurred.\n")
	}
	for i, s := range summaries {
		fmt.Fprintf(&b, "### Research Result %d\n%s\n\n", i+1, s)
	}
	return b.String()
}

func quotaPlaceholder(query string) string {
	return fmt.Sprintf(`⚠️ **API Quota Exhausted**

The search API quota has been exceeded while researching: '%s'

- The research system has reached its API usage limit.
- This is a temporary limitation that resets automatically.
- The research will continue with available information from other queries.

Please try again later, or use fewer search queries or a lower research depth.`, query)
}

func searchErrorPlaceholder(query string, err error) string {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf(`⚠️ **Search API Error**

Search is unavailable for: '%s'

Error details: %s

The research will continue with available information from other queries.`, query, apiErr.Message)
	}
	return fmt.Sprintf(`⚠️ **Research Error**

Search is unavailable: an unexpected error occurred while researching '%s'.

The research will continue with available information from other queries.`, query)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
