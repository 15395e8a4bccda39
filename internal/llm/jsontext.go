package llm

import (
	"regexp"
	"strings"
)

var (
	codeFenceRegex  = regexp.MustCompile("```(?:json)?\n?")
	jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON recovers a JSON object from free-form model output.
// Code fences are removed first; if what remains is wrapped in braces it is
// returned as is, otherwise the span from the first '{' to the last '}'.
// When no braces are found the original text is returned so that the
// caller's decode step reports the error.
func ExtractJSON(text string) string {
	cleaned := strings.TrimSpace(codeFenceRegex.ReplaceAllString(text, ""))
	if strings.HasPrefix(cleaned, "{") && strings.HasSuffix(cleaned, "}") {
		return cleaned
	}
	if m := jsonObjectRegex.FindString(cleaned); m != "" {
		return m
	}
	return text
}
