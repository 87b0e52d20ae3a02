package question

import (
	"regexp"
	"strings"
)

// boilerplatePatterns match text injected into OCR output by the answer-key
// sites the papers are scraped from.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\\section\*?\{[^}]*\}`),
	regexp.MustCompile(`(?i)\\caption\{[^}]*\}`),
	regexp.MustCompile(`(?i)\\author\{[^}]*\}`),

	regexp.MustCompile(`(?i)\d+,?\d*\+?\s*Mock Tests?`),
	regexp.MustCompile(`(?i)\d+\+?\s*Exam Covered`),
	regexp.MustCompile(`(?i)Test Prime.*?SUBSCRIPTION`),
	regexp.MustCompile(`(?i)ALL EXAMS.*?SUBSCRIPTION`),
	regexp.MustCompile(`(?i)Personalised Report Card`),
	regexp.MustCompile(`(?i)Previous Year Papers`),
	regexp.MustCompile(`(?i)Unlimited Re-Attempt`),
	regexp.MustCompile(`(?i)\d+%\s*Refund`),

	regexp.MustCompile(`(?i)Question ID\s*:\s*\d+`),
	regexp.MustCompile(`(?i)Option \d+ ID\s*:\s*\d+`),
	regexp.MustCompile(`(?i)Status\s*:\s*\w+`),
	regexp.MustCompile(`(?i)Chosen Option\s*:\s*\d+`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText removes boilerplate and collapses whitespace. Text without any
// boilerplate match is returned unchanged so untouched rows are not rewritten.
func CleanText(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	cleaned := text
	matched := false
	for _, p := range boilerplatePatterns {
		if p.MatchString(cleaned) {
			matched = true
			cleaned = p.ReplaceAllString(cleaned, " ")
		}
	}
	if !matched {
		return text
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))
}
