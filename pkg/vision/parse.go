package vision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StripCodeFences removes markdown code fences the model sometimes wraps
// around its JSON answer.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ParseResult decodes the model's text answer into a Result.
// The answer must be a single JSON object; missing fields decode as empty.
func ParseResult(provider, text string) (*Result, error) {
	clean := StripCodeFences(text)
	if clean == "" {
		return nil, &ShapeError{Provider: provider, Raw: text, Err: errors.New("empty model answer")}
	}
	if !strings.HasPrefix(clean, "{") {
		return nil, &ShapeError{Provider: provider, Raw: text, Err: errors.New("model answer is not a JSON object")}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(clean)))
	var res Result
	if err := dec.Decode(&res); err != nil {
		return nil, &ShapeError{Provider: provider, Raw: text, Err: fmt.Errorf("decode result: %w", err)}
	}
	if res.Objects == nil {
		res.Objects = []DetectedObject{}
	}
	if res.Text == nil {
		res.Text = []string{}
	}
	return &res, nil
}

// truncate shortens a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
