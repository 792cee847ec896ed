package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a response holds nothing that parses as JSON.
var ErrNoJSON = errors.New("no JSON found in LLM response")

// ErrUnexpectedShape is returned when the JSON parses but holds no list of
// the requested items.
var ErrUnexpectedShape = errors.New("unexpected LLM response shape")

var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

// RemoveThinkTags removes <think> tags and everything in between them from a string.
func RemoveThinkTags(input string) string {
	return thinkTags.ReplaceAllString(input, "")
}

// ExtractJSONFromResponse attempts to extract JSON from LLM responses that may contain
// markdown code blocks or other surrounding text.
func ExtractJSONFromResponse(response string) string {
	response = strings.TrimSpace(RemoveThinkTags(response))

	if start := strings.Index(response, "```json"); start != -1 {
		if end := strings.Index(response[start+7:], "```"); end != -1 {
			return strings.TrimSpace(response[start+7 : start+7+end])
		}
	}

	if strings.HasPrefix(response, "```") {
		lines := strings.Split(response, "\n")
		if len(lines) > 2 {
			return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	// Whichever bracket opens first decides between object and array.
	objStart := strings.Index(response, "{")
	arrStart := strings.Index(response, "[")
	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		if end := strings.LastIndex(response, "]"); end > arrStart {
			return response[arrStart : end+1]
		}
	}
	if objStart != -1 {
		if end := strings.LastIndex(response, "}"); end > objStart {
			return response[objStart : end+1]
		}
	}

	return response
}

// RepairJSON extracts the JSON part of response and repairs common LLM
// damage such as trailing commas, single quotes or a truncated tail.
func RepairJSON(response string) (string, error) {
	candidate := ExtractJSONFromResponse(response)
	if candidate == "" {
		return "", ErrNoJSON
	}
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", ErrNoJSON
	}
	return repaired, nil
}

// ParseJSONArray decodes a list of T from an LLM response. The list may be
// the top-level value, the value under key, or the only array-valued field
// of a top-level object. A lone object counts as a list of one only when
// every itemKeys field holds a non-empty string; any other object, and a
// null list, is ErrUnexpectedShape.
func ParseJSONArray[T any](response, key string, itemKeys ...string) ([]T, error) {
	clean, err := RepairJSON(response)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage = []byte(clean)
	switch firstNonSpace(clean) {
	case '[':
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode LLM response object: %w", err)
		}
		if v, ok := obj[key]; ok {
			raw = v
		} else if v, ok := onlyArrayField(obj); ok {
			raw = v
		} else if isItem(obj, itemKeys) {
			var one T
			if err := json.Unmarshal(raw, &one); err != nil {
				return nil, fmt.Errorf("failed to decode LLM response item: %w", err)
			}
			return []T{one}, nil
		} else {
			return nil, fmt.Errorf("%w: object has no %q list", ErrUnexpectedShape, key)
		}
	default:
		return nil, ErrNoJSON
	}

	if firstNonSpace(string(raw)) != '[' {
		return nil, fmt.Errorf("%w: %q is not a list", ErrUnexpectedShape, key)
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode LLM response list: %w", err)
	}
	return items, nil
}

func isItem(obj map[string]json.RawMessage, itemKeys []string) bool {
	if len(itemKeys) == 0 {
		return false
	}
	for _, k := range itemKeys {
		var s string
		if err := json.Unmarshal(obj[k], &s); err != nil || strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

func onlyArrayField(obj map[string]json.RawMessage) (json.RawMessage, bool) {
	var found json.RawMessage
	for _, v := range obj {
		if firstNonSpace(string(v)) != '[' {
			continue
		}
		if found != nil {
			return nil, false
		}
		found = v
	}
	return found, found != nil
}

func firstNonSpace(s string) byte {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return s[0]
}
