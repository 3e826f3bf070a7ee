package nl2sql

import (
	"encoding/json"
	"strings"
)

const interpretationMarker = "This is our interpretation of your question:"

// parseReply accepts either the requested JSON object or a bare SQL reply,
// optionally followed by an interpretation sentence.
func parseReply(content string) (sql, interpretation string) {
	body := stripFence(content)
	if strings.HasPrefix(body, "{") {
		var structured struct {
			SQL            string `json:"sql"`
			Interpretation string `json:"interpretation"`
		}
		if err := json.Unmarshal([]byte(body), &structured); err == nil && strings.TrimSpace(structured.SQL) != "" {
			return stripFence(structured.SQL), strings.TrimSpace(structured.Interpretation)
		}
	}
	if before, _, found := strings.Cut(body, interpretationMarker); found {
		interpretation, _ = ExtractInterpretation(body)
		return stripFence(before), interpretation
	}
	return body, ""
}

// ExtractInterpretation returns the text following the interpretation marker
// with surrounding quotes removed.
func ExtractInterpretation(text string) (string, bool) {
	_, after, found := strings.Cut(text, interpretationMarker)
	if !found {
		return "", false
	}
	interpretation := strings.TrimSpace(after)
	if len(interpretation) >= 2 && strings.HasPrefix(interpretation, `"`) && strings.HasSuffix(interpretation, `"`) {
		interpretation = strings.TrimSpace(interpretation[1 : len(interpretation)-1])
	}
	return interpretation, interpretation != ""
}

func stripFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && !strings.ContainsAny(trimmed[:newline], " \t") {
		trimmed = trimmed[newline+1:]
	}
	if closing := strings.Index(trimmed, "```"); closing >= 0 {
		trimmed = trimmed[:closing]
	}
	return strings.TrimSpace(trimmed)
}
