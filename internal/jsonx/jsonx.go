// Package jsonx decodes JSON-shaped LLM output defensively. Model output is
// inherently unreliable, so a parse failure is part of the contract rather
// than an error path: callers receive a tagged Result holding either the
// parsed value or the documented fallback.
package jsonx

import (
	"encoding/json"
	"strings"
)

// Result is the outcome of a defensive decode. Fallback is true when the raw
// text could not be parsed and Value holds the caller-supplied default.
type Result[T any] struct {
	Value    T
	Fallback bool
}

// Decode parses raw model output into T, tolerating markdown code fences and
// leading prose before the first JSON object. On any parse failure it returns
// the fallback value tagged accordingly.
func Decode[T any](raw string, fallback T) Result[T] {
	cleaned := extractObject(raw)
	if cleaned == "" {
		return Result[T]{Value: fallback, Fallback: true}
	}
	var v T
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return Result[T]{Value: fallback, Fallback: true}
	}
	return Result[T]{Value: v}
}

// extractObject strips code fences and returns the first balanced top-level
// JSON object in the text, or "" when none exists.
func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
