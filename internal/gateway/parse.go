package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls the first JSON object or array out of a model reply, tolerating
// code fences and prose around it.
func extractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", fmt.Errorf("no json in reply")
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return "", fmt.Errorf("unterminated json in reply")
	}
	return s[start : end+1], nil
}

// decodeList accepts either a bare array or an object wrapping one array under key.
func decodeList[T any](text, key string) ([]T, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var out []T
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return out, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	inner, ok := wrapped[key]
	if !ok {
		return nil, fmt.Errorf("reply has no %q list", key)
	}
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}

func decodeObject[T any](text string) (T, error) {
	var out T
	raw, err := extractJSON(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}
