package research

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// shortURLPrefix is the base for the compact identifiers handed to the model instead of the
// long grounding redirect URIs.
const shortURLPrefix = "https://vertexaisearch.cloud.google.com/id/"

// ResolveURLs maps each distinct web URI in chunks to a short identifier. The identifier embeds
// namespace and the index of the URI's first occurrence, so maps built for different namespaces
// never share identifiers.
func ResolveURLs(chunks []*genai.GroundingChunk, namespace int) map[string]string {
	resolved := make(map[string]string)
	for idx, chunk := range chunks {
		uri := chunkURI(chunk)
		if uri == "" {
			continue
		}
		if _, ok := resolved[uri]; ok {
			continue
		}
		resolved[uri] = fmt.Sprintf("%s%d-%d", shortURLPrefix, namespace, idx)
	}
	return resolved
}

// ExtractCitations reads the grounding supports of the first candidate and turns each one into a
// Citation whose segments point at resolved short URLs. Segment offsets are relative to their
// part; citation offsets are relative to resp.Text(), which joins the non-thought text parts.
func ExtractCitations(resp *genai.GenerateContentResponse, resolved map[string]string) []Citation {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	spans := textPartSpans(resp.Candidates[0].Content)

	var citations []Citation
	for _, support := range meta.GroundingSupports {
		if support == nil || support.Segment == nil {
			continue
		}
		// The API omits zero-valued fields, so a missing end index decodes as 0.
		end := int(support.Segment.EndIndex)
		if end <= 0 {
			continue
		}
		part := int(support.Segment.PartIndex)
		if part < 0 || part >= len(spans) || spans[part].length == 0 {
			continue
		}
		span := spans[part]
		end = min(end, span.length)
		start := max(0, min(int(support.Segment.StartIndex), end))

		citation := Citation{StartOffset: span.start + start, EndOffset: span.start + end}
		for _, ind := range support.GroundingChunkIndices {
			if ind < 0 || int(ind) >= len(meta.GroundingChunks) {
				continue
			}
			chunk := meta.GroundingChunks[ind]
			uri := chunkURI(chunk)
			if uri == "" {
				continue
			}
			short, ok := resolved[uri]
			if !ok {
				continue
			}
			citation.Segments = append(citation.Segments, CitationSegment{
				Label:     citationLabel(chunk.Web.Title),
				ShortURL:  short,
				SourceURI: uri,
			})
		}
		if len(citation.Segments) == 0 {
			continue
		}
		citations = append(citations, citation)
	}
	return citations
}

// InsertCitationMarkers splices "[label](shortUrl)" markers into text at each citation's end
// offset. Citations are applied end-most first so pending offsets stay valid.
func InsertCitationMarkers(text string, citations []Citation) string {
	if len(citations) == 0 {
		return text
	}

	ordered := make([]Citation, len(citations))
	copy(ordered, citations)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EndOffset > ordered[j].EndOffset
	})

	out := text
	for _, c := range ordered {
		marker := citationMarker(c.Segments)
		if marker == "" {
			continue
		}
		at := max(0, min(c.EndOffset, len(out)))
		out = out[:at] + marker + out[at:]
	}
	return out
}

// citationMarker renders segments as " [a](x) [b](y)".
func citationMarker(segments []CitationSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&b, " [%s](%s)", seg.Label, seg.ShortURL)
	}
	return b.String()
}

// SourcesFromCitations flattens citation segments into sources in citation order. Duplicates are
// kept; DedupSources removes them before the answer is written.
func SourcesFromCitations(citations []Citation) []Source {
	var sources []Source
	for _, c := range citations {
		for _, seg := range c.Segments {
			sources = append(sources, Source{
				Title:    seg.Label,
				URL:      seg.SourceURI,
				ShortURL: seg.ShortURL,
			})
		}
	}
	return sources
}

// DedupSources keeps the first source seen for each URL, preserving order.
func DedupSources(sources []Source) []Source {
	seen := make(map[string]bool, len(sources))
	unique := make([]Source, 0, len(sources))
	for _, s := range sources {
		if seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		unique = append(unique, s)
	}
	return unique
}

// partSpan locates one content part inside the joined response text.
type partSpan struct {
	start  int
	length int
}

// textPartSpans mirrors GenerateContentResponse.Text: thought parts and non-text parts add no
// text and get a zero length.
func textPartSpans(content *genai.Content) []partSpan {
	if content == nil {
		return nil
	}
	spans := make([]partSpan, len(content.Parts))
	offset := 0
	for i, p := range content.Parts {
		spans[i].start = offset
		if p == nil || p.Text == "" || p.Thought {
			continue
		}
		spans[i].length = len(p.Text)
		offset += len(p.Text)
	}
	return spans
}

func chunkURI(chunk *genai.GroundingChunk) string {
	if chunk == nil || chunk.Web == nil {
		return ""
	}
	return strings.TrimSpace(chunk.Web.URI)
}

// citationLabel drops the final dot-suffix of a grounding title ("wikipedia.org" -> "wikipedia").
func citationLabel(title string) string {
	title = strings.TrimSpace(title)
	if i := strings.LastIndex(title, "."); i > 0 {
		return title[:i]
	}
	if title == "" {
		return "source"
	}
	return title
}
