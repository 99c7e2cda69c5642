package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseJSON parses an LLM answer as a JSON object. It tries the raw text
// first, then repairs common quirks: code fences, text before or after the
// object, and trailing commas. Errors wrap ErrInvalidJSON.
func ParseJSON(raw string) (map[string]any, error) {
	obj, err := decodeObject(raw)
	if err == nil {
		return obj, nil
	}
	firstErr := err

	candidate := raw
	if m := codeBlockRe.FindStringSubmatch(candidate); len(m) > 1 {
		candidate = m[1]
	}
	candidate = strings.TrimSpace(candidate)

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found in response: %v", ErrInvalidJSON, firstErr)
	}
	candidate = candidate[start : end+1]

	if obj, err := decodeObject(candidate); err == nil {
		return obj, nil
	}
	obj, err = decodeObject(removeTrailingCommas(candidate))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return obj, nil
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("response is null, not an object")
	}
	return obj, nil
}

// removeTrailingCommas drops commas that directly precede a closing brace
// or bracket, leaving string contents untouched.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\n' || s[j] == '\r' || s[j] == '\t') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
