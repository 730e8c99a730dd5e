package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrInvalidJSON   = errors.New("model response has no JSON object")
)

// ParseJSONObject pulls one JSON object out of free-form model output.
// It strips a surrounding ``` / ```json fence, tries a direct decode, and otherwise
// decodes the first balanced {...} span. Numbers come back as json.Number.
func ParseJSONObject(text string) (map[string]any, error) {
	s := stripFence(text)
	if s == "" {
		return nil, ErrEmptyResponse
	}

	if m, err := decodeObject(s); err == nil {
		return m, nil
	}

	span, ok := firstBalancedObject(s)
	if !ok {
		return nil, fmt.Errorf("%w: no balanced object in %d bytes", ErrInvalidJSON, len(s))
	}
	m, err := decodeObject(span)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return m, nil
}

func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// drop an info string such as "json" up to the end of the line
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("top-level value is not an object")
	}
	if rest := strings.TrimSpace(s[dec.InputOffset():]); rest != "" {
		return nil, errors.New("trailing data after object")
	}
	return m, nil
}

// firstBalancedObject returns the substring from the first '{' to its matching '}',
// skipping braces inside string literals.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
