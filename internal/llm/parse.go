package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanMarkdownWrapper strips a ```json fence if the model wrapped its
// response in one.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}

// parseClassification extracts the account, confidence, and rationale from a
// model response in the JSON protocol both providers are prompted with.
func parseClassification(content string) (ClassificationResponse, error) {
	var resp struct {
		Account    string  `json:"account"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}

	content = cleanMarkdownWrapper(content)
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return ClassificationResponse{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if resp.Account == "" {
		return ClassificationResponse{}, fmt.Errorf("response has no account")
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return ClassificationResponse{}, fmt.Errorf("confidence %v is outside [0,1]", resp.Confidence)
	}

	return ClassificationResponse{
		Account:    resp.Account,
		Confidence: resp.Confidence,
		Rationale:  resp.Rationale,
	}, nil
}
