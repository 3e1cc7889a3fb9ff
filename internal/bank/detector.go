package bank

import (
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultKeywords are the issuer names looked for by the keyword detector,
// highest priority first.
var DefaultKeywords = []string{
	"Axis Bank",
	"HDFC Bank",
	"SBI Card",
	"ICICI Bank",
	"Kotak",
	"Citi",
}

// Detector finds issuer names in free text. Exact hits come from a single
// Aho-Corasick pass; lines that OCR has split or misread are retried with a
// small edit-distance window match. Safe for concurrent use.
type Detector struct {
	keywords []string
	compact  []string
	matcher  *ahocorasick.Matcher
}

func NewDetector(keywords []string) *Detector {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	d := &Detector{keywords: keywords}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
		d.compact = append(d.compact, compact(k))
	}
	d.matcher = ahocorasick.NewStringMatcher(lowered)
	return d
}

// Detect returns the highest priority keyword found in text, or Unknown.
func (d *Detector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return Unknown
	}
	hits := d.matcher.MatchThreadSafe([]byte(strings.ToLower(text)))
	if len(hits) > 0 {
		best := hits[0]
		for _, h := range hits[1:] {
			best = min(best, h)
		}
		return d.keywords[best]
	}
	return d.fuzzy(text)
}

// DetectWithFallback tries the full text first, then the joined fallback parts.
func (d *Detector) DetectWithFallback(fullText string, fallback ...string) string {
	if name := d.Detect(fullText); name != Unknown {
		return name
	}
	parts := make([]string, 0, len(fallback))
	for _, p := range fallback {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return Unknown
	}
	return d.Detect(strings.Join(parts, " "))
}

func (d *Detector) fuzzy(text string) string {
	lines := strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' || r == '|' })
	for i, kw := range d.compact {
		for _, ln := range lines {
			if windowMatch(compact(ln), kw) {
				return d.keywords[i]
			}
		}
	}
	return Unknown
}

// windowMatch slides a keyword-sized window over s and accepts a window within
// the allowed edit distance. Short keywords must match exactly.
func windowMatch(s, kw string) bool {
	sr, kr := []rune(s), []rune(kw)
	if len(kr) == 0 || len(sr) < len(kr) {
		return false
	}
	maxEdits := 0
	if len(kr) >= 6 {
		maxEdits = 1
	}
	for i := 0; i+len(kr) <= len(sr); i++ {
		if fuzzy.LevenshteinDistance(string(sr[i:i+len(kr)]), kw) <= maxEdits {
			return true
		}
	}
	return false
}

// compact lower-cases s and drops whitespace, undoing OCR letter spacing.
func compact(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
