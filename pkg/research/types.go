package research

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingMessage is returned when a request carries no question to research.
var ErrMissingMessage = errors.New("message is required")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn of the conversation being researched.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Finding is one unit of gathered web research output.
type Finding struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	FullText string `json:"full_text"`
}

// Source is a web document backing part of a finding.
type Source struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	ShortURL string `json:"short_url"`
}

// CitationSegment points one citation at one resolved source.
type CitationSegment struct {
	Label     string
	ShortURL  string
	SourceURI string
}

// Citation marks the span [StartOffset, EndOffset) of the original answer text.
type Citation struct {
	StartOffset int
	EndOffset   int
	Segments    []CitationSegment
}

type SearchQuerySet struct {
	Queries   []string `json:"query"`
	Rationale string   `json:"rationale"`
}

type ReflectionVerdict struct {
	Sufficient      bool     `json:"is_sufficient"`
	Gap             string   `json:"knowledge_gap"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// ResearchState is the record threaded through one research request.
type ResearchState struct {
	Conversation      []Message `json:"conversation"`
	PendingQueries    []string  `json:"pending_queries"`
	Findings          []Finding `json:"findings"`
	Sources           []Source  `json:"sources"`
	LoopCount         int       `json:"loop_count"`
	LoopLimit         int       `json:"loop_limit"`
	RunningSummary    []string  `json:"running_summary"`
	InitialQueryCount int       `json:"initial_query_count"`
	ReasoningModel    string    `json:"reasoning_model,omitempty"`
	QueriesRun        int       `json:"queries_run"`
	KnowledgeGap      string    `json:"knowledge_gap,omitempty"`
	Phase             Phase     `json:"phase"`
}

// Request is the inbound research request.
type Request struct {
	Message                 string    `json:"message"`
	History                 []Message `json:"history,omitempty"`
	MaxResearchLoops        int       `json:"max_research_loops,omitempty"`
	InitialSearchQueryCount int       `json:"initial_search_query_count,omitempty"`
	ReasoningModel          string    `json:"reasoning_model,omitempty"`
}

// Validate rejects requests without a message and fills unset or invalid counts with defaults.
func (r *Request) Validate(defaultLoops, defaultQueries int) error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrMissingMessage
	}
	if r.MaxResearchLoops < 1 {
		r.MaxResearchLoops = max(defaultLoops, 1)
	}
	if r.InitialSearchQueryCount < 1 {
		r.InitialSearchQueryCount = max(defaultQueries, 1)
	}
	return nil
}

// Conversation returns the history followed by the new user message.
func (r *Request) Conversation() []Message {
	msgs := make([]Message, 0, len(r.History)+1)
	for _, m := range r.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	return append(msgs, Message{Role: RoleUser, Content: r.Message})
}

// SourceRef is the public shape of a source in a response.
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is what one research run produces.
type Result struct {
	Answer         string
	Sources        []Source
	LoopsCompleted int
	Error          string
	Timestamp      time.Time
}

// Response is the outbound payload for both the plain and the streaming endpoints.
type Response struct {
	Answer                 string      `json:"answer"`
	Sources                []SourceRef `json:"sources"`
	ResearchLoopsCompleted int         `json:"research_loops_completed"`
	Timestamp              string      `json:"timestamp"`
	Error                  string      `json:"error,omitempty"`
}

// Response converts a Result into its wire shape.
func (r Result) Response() Response {
	refs := make([]SourceRef, 0, len(r.Sources))
	for _, s := range r.Sources {
		refs = append(refs, SourceRef{Title: s.Title, URL: s.URL})
	}
	return Response{
		Answer:                 r.Answer,
		Sources:                refs,
		ResearchLoopsCompleted: r.LoopsCompleted,
		Timestamp:              r.Timestamp.UTC().Format(time.RFC3339),
		Error:                  r.Error,
	}
}
