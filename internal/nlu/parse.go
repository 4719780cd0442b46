package nlu

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseSuggestion decodes the model's reply. Models occasionally wrap JSON in
// markdown fences or lead with prose, so the parser trims to the outermost
// object before decoding.
func parseSuggestion(raw string) (*Suggestion, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("nlu: response contains no JSON object: %.120q", raw)
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &s); err != nil {
		return nil, fmt.Errorf("nlu: decode suggestion: %w", err)
	}
	if strings.TrimSpace(s.Reply) == "" {
		return nil, fmt.Errorf("nlu: suggestion missing reply")
	}
	return &s, nil
}
