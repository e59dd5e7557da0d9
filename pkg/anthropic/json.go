package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Text joins every text block of a response.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, block := range r.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// DecodeJSON unmarshals the JSON object in a model reply into v, tolerating
// markdown fences and surrounding prose.
func DecodeJSON(resp *MessageResponse, v any) error {
	raw := CleanJSON(resp.Text())
	if raw == "" {
		return eris.New("anthropic: empty response")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return eris.Wrap(err, "anthropic: decode json reply")
	}
	return nil
}

// CleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// First { to last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
