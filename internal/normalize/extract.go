// Package normalize recovers structured values from free-form model output.
package normalize

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no JSON object could be recovered.
var ErrNoJSON = errors.New("no JSON object in response")

var (
	fencedObject  = regexp.MustCompile("```(?:json|JSON)?\\s*(\\{[\\s\\S]*?\\})\\s*```")
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	tripleQuoteRe = regexp.MustCompile(`"""`)
)

// Extract returns the JSON object embedded in raw. Several top-level
// objects are shallow-merged in order, later keys winning; fragments that
// do not parse are skipped.
func Extract(raw string) (map[string]any, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}
	// A fence counts only when it wraps the object; one opening later sits
	// inside a string value.
	if loc := fencedObject.FindStringSubmatchIndex(raw); loc != nil && loc[0] < start {
		if v, err := extractFrom(raw[loc[2]:loc[3]]); err == nil {
			return v, nil
		}
	}
	return extractFrom(raw[start:])
}

func extractFrom(text string) (map[string]any, error) {
	objects := topLevelObjects(text)
	switch len(objects) {
	case 0:
		// Unbalanced output: try everything up to the last brace.
		if end := strings.LastIndexByte(text, '}'); end > 0 {
			if v, err := parseObject(text[:end+1]); err == nil {
				return v, nil
			}
		}
		return nil, ErrNoJSON
	case 1:
		v, err := parseObject(objects[0])
		if err != nil {
			return nil, ErrNoJSON
		}
		return v, nil
	}

	merged := make(map[string]any)
	parsed := 0
	for _, obj := range objects {
		v, err := parseObject(obj)
		if err != nil {
			continue
		}
		for k, val := range v {
			merged[k] = val
		}
		parsed++
	}
	if parsed == 0 {
		return nil, ErrNoJSON
	}
	return merged, nil
}

// parseObject decodes s, retrying once after collapsing triple quotes and
// stripping control characters.
func parseObject(s string) (map[string]any, error) {
	var v map[string]any
	err := json.Unmarshal([]byte(s), &v)
	if err == nil && v != nil {
		return v, nil
	}

	cleaned := strings.TrimSpace(controlChars.ReplaceAllString(tripleQuoteRe.ReplaceAllString(s, `"`), ""))
	v = nil
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNoJSON
	}
	return v, nil
}

// topLevelObjects returns every balanced {...} substring that is not nested
// in another. Braces inside strings are ignored.
func topLevelObjects(s string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	return out
}
