// Package splitter cuts research text at natural boundaries.
package splitter

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

var snippetSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// piecesPerSnippet sets how finely text is split before pieces are joined back into a snippet.
const piecesPerSnippet = 8

// Snippet returns the longest leading part of text that fits in size runes and ends where a
// splitter piece ends. Pieces are a fraction of size long, so a short heading does not end the
// snippet on its own.
func Snippet(text string, size int) string {
	text = strings.TrimSpace(text)
	if size <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= size {
		return text
	}

	ts := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(max(size/piecesPerSnippet, 1)),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(snippetSeparators),
	)
	pieces, err := ts.SplitText(text)
	if err != nil {
		return truncate(text, size)
	}

	end, cursor := 0, 0
	for _, piece := range pieces {
		at := strings.Index(text[cursor:], piece)
		if at < 0 {
			break
		}
		next := cursor + at + len(piece)
		if utf8.RuneCountInString(text[:next]) > size {
			break
		}
		end, cursor = next, next
	}
	if snippet := strings.TrimSpace(text[:end]); snippet != "" {
		return snippet
	}
	return truncate(text, size)
}

func truncate(text string, size int) string {
	return string([]rune(text)[:size])
}
