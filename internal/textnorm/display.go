package textnorm

import (
	"regexp"
	"strings"
)

var (
	reLineBreaks = regexp.MustCompile(`[\r\n]+`)
	reAnySpace   = regexp.MustCompile(`\s+`)
)

// CleanDisplay formats text for presentation: split-character runs are joined
// per line, duplicate lines dropped and the rest joined with Separator.
// Unlike Normalize it never rewrites glued ":" or "to".
func CleanDisplay(text string) string {
	if text == "" {
		return ""
	}
	var lines []string
	for _, ln := range reLineBreaks.Split(text, -1) {
		if cleaned := CollapseSingles(ln); cleaned != "" {
			lines = append(lines, cleaned)
		}
	}
	out := joinUnique(lines)
	return strings.TrimSpace(reAnySpace.ReplaceAllString(out, " "))
}
