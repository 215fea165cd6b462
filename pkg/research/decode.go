package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONBlock is returned when model output carries no JSON payload at all.
var ErrNoJSONBlock = errors.New("no JSON block in model output")

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// DecodeFenced decodes the JSON payload of a model response into T and runs validate on it.
// The payload is the first fenced block, or the outermost {...} object when the model skipped
// the fence.
func DecodeFenced[T any](text string, validate func(T) error) (T, error) {
	var out T

	payload, err := extractJSON(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, fmt.Errorf("json parse error: %w", err)
	}
	if validate != nil {
		if err := validate(out); err != nil {
			return out, fmt.Errorf("validation failed: %w", err)
		}
	}
	return out, nil
}

func extractJSON(text string) (string, error) {
	for _, m := range fencedBlockRegex.FindAllStringSubmatch(text, -1) {
		if body := strings.TrimSpace(m[1]); body != "" {
			return body, nil
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSONBlock
	}
	return text[start : end+1], nil
}

func validateQuerySet(qs SearchQuerySet) error {
	if len(cleanQueries(qs.Queries)) == 0 {
		return errors.New("empty query list")
	}
	return nil
}

// cleanQueries trims every query and drops blanks.
func cleanQueries(queries []string) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
