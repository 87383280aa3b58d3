package llm

import "strings"

// StripCodeFence removes a surrounding markdown code fence from a model
// response. JSON mode keeps fences out of OpenAI responses, but other
// models sneak them in.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
