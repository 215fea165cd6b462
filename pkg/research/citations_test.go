package research

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func webChunk(uri, title string) *genai.GroundingChunk {
	return &genai.GroundingChunk{Web: &genai.GroundingChunkWeb{URI: uri, Title: title}}
}

func support(start, end int32, chunks ...int32) *genai.GroundingSupport {
	return &genai.GroundingSupport{
		Segment:               &genai.Segment{StartIndex: start, EndIndex: end},
		GroundingChunkIndices: chunks,
	}
}

func groundedResponse(text string, chunks []*genai.GroundingChunk, supports []*genai.GroundingSupport) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
			GroundingMetadata: &genai.GroundingMetadata{
				GroundingChunks:   chunks,
				GroundingSupports: supports,
			},
		}},
	}
}

func TestResolveURLsFirstOccurrence(t *testing.T) {
	chunks := []*genai.GroundingChunk{
		webChunk("https://a.example/1", "a.example"),
		webChunk("https://b.example/2", "b.example"),
		webChunk("https://a.example/1", "a.example"),
		{Web: nil},
		webChunk("https://c.example/3", "c.example"),
	}

	got := ResolveURLs(chunks, 7)

	assert.Equal(t, map[string]string{
		"https://a.example/1": shortURLPrefix + "7-0",
		"https://b.example/2": shortURLPrefix + "7-1",
		"https://c.example/3": shortURLPrefix + "7-4",
	}, got)
}

func TestResolveURLsDeterministicAndNamespaced(t *testing.T) {
	chunks := []*genai.GroundingChunk{
		webChunk("https://a.example/1", "a"),
		webChunk("https://b.example/2", "b"),
	}
	other := []*genai.GroundingChunk{
		webChunk("https://x.example/9", "x"),
		webChunk("https://y.example/8", "y"),
	}

	first := ResolveURLs(chunks, 1)
	again := ResolveURLs(chunks, 1)
	assert.Equal(t, first, again)

	second := ResolveURLs(other, 2)
	seen := make(map[string]string)
	for uri, short := range first {
		seen[short] = uri
	}
	for uri, short := range second {
		if prev, ok := seen[short]; ok {
			assert.Equal(t, prev, uri, "short id %s reused for a different URI", short)
		}
	}
}

func TestExtractCitations(t *testing.T) {
	text := "Spain won Euro 2024. The final was in Berlin."
	chunks := []*genai.GroundingChunk{
		webChunk("https://uefa.example/final", "uefa.com"),
		webChunk("https://news.example/berlin", "news.example.org"),
		{Web: &genai.GroundingChunkWeb{Title: "no-uri.com"}},
	}
	resolved := ResolveURLs(chunks, 0)
	resp := groundedResponse(text, chunks, []*genai.GroundingSupport{
		support(0, 20, 0),
		support(21, 45, 1, 2, 9), // unresolvable segments are skipped individually
		support(5, 0, 0),         // no end index
		{Segment: nil, GroundingChunkIndices: []int32{0}},
		support(0, 10, 2), // nothing resolves, citation dropped
	})

	citations := ExtractCitations(resp, resolved)

	require.Len(t, citations, 2)
	assert.Equal(t, 0, citations[0].StartOffset)
	assert.Equal(t, 20, citations[0].EndOffset)
	assert.Equal(t, []CitationSegment{{
		Label:     "uefa",
		ShortURL:  shortURLPrefix + "0-0",
		SourceURI: "https://uefa.example/final",
	}}, citations[0].Segments)

	assert.Equal(t, 21, citations[1].StartOffset)
	assert.Equal(t, 45, citations[1].EndOffset)
	require.Len(t, citations[1].Segments, 1)
	assert.Equal(t, "news.example", citations[1].Segments[0].Label)
}

func TestExtractCitationsClampsOffsets(t *testing.T) {
	chunks := []*genai.GroundingChunk{webChunk("https://a.example", "a.example")}
	resp := groundedResponse("short", chunks, []*genai.GroundingSupport{support(3, 99, 0)})

	citations := ExtractCitations(resp, ResolveURLs(chunks, 0))

	require.Len(t, citations, 1)
	assert.Equal(t, 3, citations[0].StartOffset)
	assert.Equal(t, 5, citations[0].EndOffset)
}

func TestExtractCitationsWithoutMetadata(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "plain"}}},
	}}}

	assert.Empty(t, ExtractCitations(resp, nil))
	assert.Empty(t, ExtractCitations(nil, nil))
}

func TestInsertCitationMarkersEmpty(t *testing.T) {
	text := "nothing to cite here"
	assert.Equal(t, text, InsertCitationMarkers(text, nil))
	assert.Equal(t, text, InsertCitationMarkers(text, []Citation{}))
}

func TestInsertCitationMarkers(t *testing.T) {
	text := "Alpha. Beta. Gamma."
	citations := []Citation{
		{StartOffset: 0, EndOffset: 6, Segments: []CitationSegment{{Label: "a", ShortURL: "s/0"}}},
		{StartOffset: 13, EndOffset: 19, Segments: []CitationSegment{{Label: "g", ShortURL: "s/2"}, {Label: "h", ShortURL: "s/3"}}},
		{StartOffset: 7, EndOffset: 12, Segments: []CitationSegment{{Label: "b", ShortURL: "s/1"}}},
	}

	got := InsertCitationMarkers(text, citations)

	assert.Equal(t, "Alpha. [a](s/0) Beta. [b](s/1) Gamma. [g](s/2) [h](s/3)", got)
}

func TestInsertCitationMarkersTiesKeepOrder(t *testing.T) {
	text := "Same end."
	citations := []Citation{
		{EndOffset: 9, Segments: []CitationSegment{{Label: "first", ShortURL: "1"}}},
		{EndOffset: 9, Segments: []CitationSegment{{Label: "second", ShortURL: "2"}}},
	}

	got := InsertCitationMarkers(text, citations)

	// The first citation is inserted first, then the second lands at the same offset ahead of it.
	assert.Equal(t, "Same end. [second](2) [first](1)", got)
	assert.Equal(t, got, InsertCitationMarkers(text, citations))
}

func TestInsertCitationMarkersIsNonDestructive(t *testing.T) {
	text := "Grounded answers need citations that do not corrupt the text around them."
	citations := []Citation{
		{StartOffset: 0, EndOffset: 16, Segments: []CitationSegment{{Label: "one", ShortURL: "https://s/0-0"}}},
		{StartOffset: 17, EndOffset: 41, Segments: []CitationSegment{{Label: "two", ShortURL: "https://s/0-1"}}},
		{StartOffset: 42, EndOffset: len(text), Segments: []CitationSegment{{Label: "three", ShortURL: "https://s/0-2"}, {Label: "four", ShortURL: "https://s/0-3"}}},
	}

	got := InsertCitationMarkers(text, citations)

	markerLen := 0
	stripped := got
	for _, c := range citations {
		m := citationMarker(c.Segments)
		markerLen += len(m)
		require.Contains(t, stripped, m)
		stripped = strings.Replace(stripped, m, "", 1)
	}
	assert.Equal(t, len(text)+markerLen, len(got))
	assert.Equal(t, text, stripped)
}

func TestCitationLabel(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"wikipedia.org", "wikipedia"},
		{"bbc.co.uk", "bbc.co"},
		{"localhost", "localhost"},
		{"", "source"},
		{".hidden", ".hidden"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, citationLabel(tt.title))
		})
	}
}

func TestDedupSourcesKeepsFirstSeen(t *testing.T) {
	sources := []Source{
		{Title: "first", URL: "https://a", ShortURL: "s/0-0"},
		{Title: "other", URL: "https://b", ShortURL: "s/0-1"},
		{Title: "second title", URL: "https://a", ShortURL: "s/1-0"},
	}

	got := DedupSources(sources)

	assert.Equal(t, []Source{
		{Title: "first", URL: "https://a", ShortURL: "s/0-0"},
		{Title: "other", URL: "https://b", ShortURL: "s/0-1"},
	}, got)
}

func TestSourcesFromCitationsKeepsDuplicates(t *testing.T) {
	seg := CitationSegment{Label: "a", ShortURL: "s/0-0", SourceURI: "https://a"}
	got := SourcesFromCitations([]Citation{{Segments: []CitationSegment{seg}}, {Segments: []CitationSegment{seg}}})

	assert.Len(t, got, 2)
	assert.Len(t, DedupSources(got), 1)
}

func TestExtractCitationsAcrossParts(t *testing.T) {
	chunks := []*genai.GroundingChunk{
		webChunk("https://a.example", "a.example"),
		webChunk("https://b.example", "b.example"),
	}
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{
			{Text: "Spain won. "},
			{Text: "Checking the bracket first.", Thought: true},
			{Text: "Final in Berlin."},
		}},
		GroundingMetadata: &genai.GroundingMetadata{
			GroundingChunks: chunks,
			GroundingSupports: []*genai.GroundingSupport{
				{Segment: &genai.Segment{PartIndex: 0, StartIndex: 0, EndIndex: 10}, GroundingChunkIndices: []int32{0}},
				{Segment: &genai.Segment{PartIndex: 2, StartIndex: 0, EndIndex: 16}, GroundingChunkIndices: []int32{1}},
				{Segment: &genai.Segment{PartIndex: 1, StartIndex: 0, EndIndex: 8}, GroundingChunkIndices: []int32{0}},
				{Segment: &genai.Segment{PartIndex: 7, StartIndex: 0, EndIndex: 3}, GroundingChunkIndices: []int32{0}},
			},
		},
	}}}
	resolved := ResolveURLs(chunks, 0)

	citations := ExtractCitations(resp, resolved)

	require.Len(t, citations, 2)
	assert.Equal(t, 0, citations[0].StartOffset)
	assert.Equal(t, 10, citations[0].EndOffset)
	assert.Equal(t, 11, citations[1].StartOffset)
	assert.Equal(t, 27, citations[1].EndOffset)

	text := resp.Text()
	require.Equal(t, "Spain won. Final in Berlin.", text)
	assert.Equal(t,
		"Spain won. [a]("+shortURLPrefix+"0-0) Final in Berlin. [b]("+shortURLPrefix+"0-1)",
		InsertCitationMarkers(text, citations),
	)
}
