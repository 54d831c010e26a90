package discovery

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoPayload is returned when a model reply contains no parseable JSON.
var ErrNoPayload = eris.New("discovery: no JSON payload in reply")

// envelopeKeys are probed in order when a reply wraps its payload.
var envelopeKeys = []string{"response", "result", "results", "sources", "data"}

const maxEnvelopeDepth = 8

// UnwrapPayload extracts the JSON payload from a model reply. Code fences are
// stripped, known envelope keys are followed recursively, and when the reply
// is not JSON as a whole the first embedded object or array that parses is
// used.
func UnwrapPayload(raw string) (any, error) {
	text := stripFences(raw)

	var tree any
	if err := json.Unmarshal([]byte(text), &tree); err != nil {
		var ok bool
		if tree, ok = firstEmbeddedJSON(text); !ok {
			return nil, ErrNoPayload
		}
	}
	switch tree.(type) {
	case map[string]any, []any:
		return unwrap(tree, 0), nil
	default:
		return nil, ErrNoPayload
	}
}

func unwrap(v any, depth int) any {
	m, ok := v.(map[string]any)
	if !ok || depth >= maxEnvelopeDepth {
		return v
	}
	for _, k := range envelopeKeys {
		switch inner := m[k].(type) {
		case map[string]any, []any:
			return unwrap(inner, depth+1)
		}
	}
	return m
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		if tag := strings.TrimSpace(text[:nl]); !strings.ContainsAny(tag, "{[") {
			text = text[nl+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// firstEmbeddedJSON scans for the first '{' or '[' from which a complete JSON
// value decodes.
func firstEmbeddedJSON(text string) (any, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var v any
		if err := dec.Decode(&v); err == nil {
			switch v.(type) {
			case map[string]any, []any:
				return v, true
			}
		}
	}
	return nil, false
}

// placeholders are values models emit for unknown fields.
var placeholders = map[string]bool{
	"": true, "null": true, "none": true, "n/a": true, "na": true, "unknown": true, "not available": true, "not provided": true,
}

// str returns v as a trimmed string, or "" for non-strings and placeholders.
func str(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if placeholders[strings.ToLower(s)] {
		return ""
	}
	return s
}

func strList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, it := range items {
		if s := str(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	default:
		return false
	}
}
