package stage

import "strings"

// StripFences removes a surrounding markdown code fence from model output.
// Models frequently wrap code or JSON in ```lang ... ``` despite being told
// not to; the content inside is returned unchanged. Output without a fence
// passes through untouched apart from whitespace trimming.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	// Drop the opening fence line (which may carry a language tag)
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
