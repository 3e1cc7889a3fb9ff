// Package textnorm repairs OCR artifacts and produces the canonical text form
// that block matching, stored values and snippets share.
package textnorm

import (
	"regexp"
	"strings"
)

// Separator joins the distinct parts of a normalized string.
const Separator = " | "

var (
	reGluedColon = regexp.MustCompile(`([A-Za-z0-9]):([A-Za-z0-9])`)
	reGluedToL   = regexp.MustCompile(`(?i)(\d)(to)([A-Za-z0-9\s])`)
	reGluedToR   = regexp.MustCompile(`(?i)([A-Za-z0-9\s])(to)(\d)`)
	reHSpace     = regexp.MustCompile(`[^\S\r\n]+`)
	reParts      = regexp.MustCompile(`[\r\n|]+`)
)

// maxPasses bounds the repair/collapse loop. Every pass either fixes a glued
// "to" or shrinks a run of single characters, so it settles well before this.
const maxPasses = 32

// Normalize repairs glued separators, collapses whitespace and split-character
// runs, then dedupes the newline/pipe separated parts keeping first-seen order.
// Parts are repaired after trimming, so the separator spaces never take part in
// a repair. Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	t := raw
	for i := 0; i < maxPasses; i++ {
		next := normalizePass(t)
		if next == t {
			break
		}
		t = next
	}
	return t
}

func normalizePass(s string) string {
	parts := reParts.Split(s, -1)
	for i, p := range parts {
		p = reHSpace.ReplaceAllString(repairGlue(strings.TrimSpace(p)), " ")
		parts[i] = CollapseSingles(p)
	}
	return joinUnique(parts)
}

func repairGlue(s string) string {
	s = reGluedColon.ReplaceAllString(s, "$1: $2")
	s = reGluedToL.ReplaceAllString(s, "$1 $2 $3")
	s = reGluedToR.ReplaceAllString(s, "$1 $2 $3")
	return s
}

// CollapseSingles joins runs of two or more consecutive single-character
// tokens ("C a r d" -> "Card"). A lone single-character token is kept.
func CollapseSingles(line string) string {
	tokens := strings.Fields(line)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if !single(tokens[i]) {
			out = append(out, tokens[i])
			i++
			continue
		}
		j := i
		var run strings.Builder
		for j < len(tokens) && single(tokens[j]) {
			run.WriteString(tokens[j])
			j++
		}
		out = append(out, run.String())
		i = j
	}
	return strings.Join(out, " ")
}

func single(tok string) bool {
	return len([]rune(tok)) == 1
}

func joinUnique(parts []string) string {
	seen := make(map[string]struct{}, len(parts))
	unique := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return strings.Join(unique, Separator)
}
