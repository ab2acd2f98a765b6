// Package response recovers the JSON document from a free-form completion.
//
// Models wrap their answer in markdown fences or surround it with prose even
// when told not to. Extract strips the fences, then takes the object that
// starts at the first '{', skipping braces inside quoted strings while looking
// for its end. An object that never closes is tried as the slice from the
// first '{' to the last '}'. Text with no braces at all is parsed as is, so
// bare arrays and scalars still come through.
package response

import (
	"encoding/json"
	"strings"

	"github.com/bryanwahyu/solaudit/internal/domain/ai"
)

const (
	fenceJSON = "```json"
	fence     = "```"
)

// Extract returns the embedded JSON document unchanged, or an *ai.ParseError.
func Extract(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, fenceJSON)
	s = strings.TrimPrefix(s, fence)
	s = strings.TrimSuffix(s, fence)
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return decode(s)
	}

	if obj, ok := balancedObject(s[start:]); ok {
		return decode(obj)
	}
	return decode(s[start : end+1])
}

// balancedObject returns the prefix of s (which starts with '{') up to the
// brace that closes it. ok is false when the object never closes.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
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
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func decode(s string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, &ai.ParseError{Err: err}
	}
	return raw, nil
}
