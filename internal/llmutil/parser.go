// internal/llmutil/parser.go

// Package llmutil decodes structured JSON out of model responses. Models
// routinely ignore a JSON-only instruction and wrap the payload in a
// markdown fence or bury it in conversational text; every model-facing
// package shares this one recovery path.
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Go raw strings cannot contain backticks, so the fence regexes spell
	// them as \x60.
	fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	fencedArrayRegex  = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse decodes a model response into T, recovering the payload
// from a markdown code fence or surrounding prose when necessary.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := extractPayload(strings.TrimSpace(response))

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decoding model JSON: %w (extracted: %s)", err, truncateString(payload, 500))
	}
	return &result, nil
}

// extractPayload narrows a response down to the JSON document it carries.
// An intact fenced block wins; otherwise the widest bracket span is taken,
// which also rescues payloads behind an unterminated fence.
func extractPayload(response string) string {
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	if strings.HasPrefix(response, "```") {
		if m := fencedObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
		if m := fencedArrayRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
	}

	if fb, lb := strings.Index(response, "{"), strings.LastIndex(response, "}"); fb != -1 && lb > fb {
		return response[fb : lb+1]
	}
	if fb, lb := strings.Index(response, "["), strings.LastIndex(response, "]"); fb != -1 && lb > fb {
		return response[fb : lb+1]
	}
	return response
}

// truncateString cuts s on a byte boundary; the snippet only feeds error
// text.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
