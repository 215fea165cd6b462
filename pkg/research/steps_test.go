package research

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGenerateQueriesFallsBackToTopic(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"api error", &fakeLLM{queries: func(string) (string, error) { return "", errors.New("unavailable") }}},
		{"unparseable", &fakeLLM{queries: func(string) (string, error) { return "no json here", nil }}},
		{"empty list", &fakeLLM{queries: func(string) (string, error) { return queriesJSON(), nil }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(tt.llm, &fakeSearcher{})
			st := NewState(Request{Message: "What is Go?", InitialSearchQueryCount: 3})

			qs := e.generateQueries(context.Background(), st)

			assert.Equal(t, []string{"What is Go?"}, qs.Queries)
			assert.Equal(t, FallbackRationale, qs.Rationale)
			assert.Equal(t, []string{"What is Go?"}, st.PendingQueries)
		})
	}
}

func TestGenerateQueriesCapsCount(t *testing.T) {
	llm := &fakeLLM{queries: func(string) (string, error) { return queriesJSON(" a ", "b", "", "c", "d"), nil }}
	e := newTestEngine(llm, &fakeSearcher{})
	st := NewState(Request{Message: "topic", InitialSearchQueryCount: 2})

	qs := e.generateQueries(context.Background(), st)

	assert.Equal(t, []string{"a", "b"}, qs.Queries)
	assert.Equal(t, []string{"a", "b"}, st.PendingQueries)
	assert.Equal(t, 1.0, llm.opts[kindQueries][0].Temperature)
}

func TestReflectFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		reply   func(int, string) (string, error)
		wantGap string
	}{
		{
			name:    "api error",
			reply:   func(int, string) (string, error) { return "", errors.New("boom") },
			wantGap: "Unable to perform reflection due to API error: boom",
		},
		{
			name:    "unparseable",
			reply:   func(int, string) (string, error) { return "I think we are done", nil },
			wantGap: "Unable to parse reflection",
		},
		{
			name: "gap without follow-ups",
			reply: func(int, string) (string, error) {
				return fenced(ReflectionVerdict{Sufficient: false, Gap: "dates", FollowUpQueries: []string{" "}}), nil
			},
			wantGap: "dates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(&fakeLLM{reflection: tt.reply}, &fakeSearcher{})
			st := NewState(Request{Message: "topic", MaxResearchLoops: 3})
			st.PendingQueries = []string{"stale"}

			verdict := e.reflect(context.Background(), st)

			assert.True(t, verdict.Sufficient)
			assert.Empty(t, verdict.FollowUpQueries)
			assert.Empty(t, st.PendingQueries)
			assert.Equal(t, 1, st.LoopCount)
			assert.Contains(t, st.KnowledgeGap, tt.wantGap)
		})
	}
}

func TestReflectSchedulesFollowUps(t *testing.T) {
	llm := &fakeLLM{reflection: func(int, string) (string, error) {
		return fenced(ReflectionVerdict{Gap: "numbers", FollowUpQueries: []string{"how many", "when"}}), nil
	}}
	e := newTestEngine(llm, &fakeSearcher{})
	st := NewState(Request{Message: "topic", MaxResearchLoops: 3})
	st.RunningSummary = []string{"one", "two"}

	verdict := e.reflect(context.Background(), st)

	assert.False(t, verdict.Sufficient)
	assert.Equal(t, []string{"how many", "when"}, st.PendingQueries)
	assert.Contains(t, llm.lastPrompt(kindReflection), "one\n\n---\n\ntwo")
	assert.Equal(t, "gemini-2.5-flash", llm.opts[kindReflection][0].Model)
}

func TestFinalizeFallsBackToSummary(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantNote string
	}{
		{"quota", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, "API quota exhaustion"},
		{"generic", errors.New("model overloaded"), "due to an error: model overloaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeLLM{answer: func(string) (string, error) { return "", tt.err }}
			e := newTestEngine(llm, &fakeSearcher{})
			st := NewState(Request{Message: "topic"})
			st.LoopCount = 2
			st.RunningSummary = []string{"first result", "second result"}
			st.Sources = []Source{
				{Title: "a", URL: "https://a", ShortURL: "s/0-0"},
				{Title: "a again", URL: "https://a", ShortURL: "s/1-0"},
			}

			result := e.finalize(context.Background(), st)

			assert.NotEmpty(t, result.Error)
			assert.Equal(t, 2, result.LoopsCompleted)
			assert.Contains(t, result.Answer, "# Research Summary")
			assert.Contains(t, result.Answer, tt.wantNote)
			assert.Contains(t, result.Answer, "### Research Result 2\nsecond result")
			assert.Equal(t, []Source{{Title: "a", URL: "https://a", ShortURL: "s/0-0"}}, result.Sources)
		})
	}
}

func TestFinalizeRejectsEmptyAnswer(t *testing.T) {
	llm := &fakeLLM{answer: func(string) (string, error) { return "  \n", nil }}
	e := newTestEngine(llm, &fakeSearcher{})

	result := e.finalize(context.Background(), NewState(Request{Message: "topic"}))

	assert.Contains(t, result.Error, "empty answer")
	assert.Contains(t, result.Answer, "No research results were gathered")
}

func TestWebResearchWithoutGrounding(t *testing.T) {
	search := &fakeSearcher{fn: func(string) (*genai.GenerateContentResponse, error) {
		return textResponse("   "), nil
	}}
	e := newTestEngine(&fakeLLM{}, search)

	r, err := e.webResearch(context.Background(), "query", 0, 4)

	require.NoError(t, err)
	assert.Equal(t, "No search results available.", r.Summary)
	assert.Empty(t, r.Sources)
	assert.Empty(t, r.Finding.URL)
}

func TestWebResearchNamespacesShortURLs(t *testing.T) {
	search := &fakeSearcher{fn: func(string) (*genai.GenerateContentResponse, error) {
		return groundedResponse("Fact one. Fact two.",
			[]*genai.GroundingChunk{webChunk("https://one.example", "one.example"), webChunk("https://two.example", "two.example")},
			[]*genai.GroundingSupport{support(0, 9, 0), support(10, 19, 1)},
		), nil
	}}
	e := newTestEngine(&fakeLLM{}, search)

	r, err := e.webResearch(context.Background(), "facts", 1, 5)

	require.NoError(t, err)
	assert.Equal(t, "Fact one. [one]("+shortURLPrefix+"5-0) Fact two. [two]("+shortURLPrefix+"5-1)", r.Summary)
	require.Len(t, r.Sources, 2)
	assert.Equal(t, "https://one.example", r.Finding.URL)
}

func TestWebResearchReturnsOnCancellation(t *testing.T) {
	search := &fakeSearcher{fn: func(string) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("down")
	}}
	e := newTestEngine(&fakeLLM{}, search)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.webResearch(ctx, "q", 0, 0)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestResearchTopic(t *testing.T) {
	assert.Equal(t, "single question", ResearchTopic([]Message{{Role: RoleUser, Content: "single question"}}))

	got := ResearchTopic([]Message{
		{Role: RoleUser, Content: "What is Go?"},
		{Role: "ai", Content: "A language."},
		{Role: RoleUser, Content: "Who made it?"},
	})
	assert.Equal(t, "User: What is Go?\nAssistant: A language.\nUser: Who made it?\n", got)
}

func TestRequestValidate(t *testing.T) {
	req := Request{Message: "q"}
	require.NoError(t, req.Validate(2, 3))
	assert.Equal(t, 2, req.MaxResearchLoops)
	assert.Equal(t, 3, req.InitialSearchQueryCount)

	req = Request{Message: "q", MaxResearchLoops: 5, InitialSearchQueryCount: 1}
	require.NoError(t, req.Validate(2, 3))
	assert.Equal(t, 5, req.MaxResearchLoops)
	assert.Equal(t, 1, req.InitialSearchQueryCount)

	req = Request{Message: "q"}
	require.NoError(t, req.Validate(0, 0))
	assert.Equal(t, 1, req.MaxResearchLoops)

	req = Request{Message: "\n\t"}
	assert.ErrorIs(t, req.Validate(2, 3), ErrMissingMessage)
}

func TestRequestConversation(t *testing.T) {
	req := Request{
		Message: "follow up",
		History: []Message{{Role: RoleUser, Content: "first"}, {Role: RoleAssistant, Content: ""}},
	}

	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "follow up"},
	}, req.Conversation())
}

func TestFormatSources(t *testing.T) {
	assert.Equal(t, "No sources were gathered.", FormatSources(nil))
	assert.Equal(t,
		"1. [a](s/0-0) - https://a\n2. [b](s/0-1) - https://b\n",
		FormatSources([]Source{{Title: "a", URL: "https://a", ShortURL: "s/0-0"}, {Title: "b", URL: "https://b", ShortURL: "s/0-1"}}),
	)
}
