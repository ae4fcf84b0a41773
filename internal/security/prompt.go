package security

import (
	"regexp"
	"strings"
)

// PromptReport is the outcome of screening one user message.
type PromptReport struct {
	Safe     bool
	Patterns []string
}

// promptPatterns match common prompt-injection phrasings. No pattern list is
// complete; the persona prompt and output handling are the other layers.
var promptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above|prior)\s+(instructions?|context)`),
	regexp.MustCompile(`(?i)^you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`),
	regexp.MustCompile(`(?i)^new\s+(instruction|task|rule)\s*:`),
	regexp.MustCompile(`(?i)^admin\s*(mode|override|command)\s*:`),
	regexp.MustCompile(`(?i)</?(system|instruction|prompt)>`),
	regexp.MustCompile(`(?i)do\s+anything\s+now`),
	regexp.MustCompile(`(?i)bypass\s+(safety|filter|restrictions?)`),
}

// ScreenPrompt checks a user message for injection phrasings. Matches are
// reported, not blocked: for a security-education assistant, questions ABOUT
// attacks are legitimate, so the caller logs and proceeds.
func ScreenPrompt(message string) PromptReport {
	report := PromptReport{Safe: true}
	normalized := strings.TrimSpace(message)
	for _, p := range promptPatterns {
		if p.MatchString(normalized) {
			report.Safe = false
			report.Patterns = append(report.Patterns, p.String())
		}
	}
	return report
}
