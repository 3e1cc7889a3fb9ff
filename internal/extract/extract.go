// Package extract finds candidate values for each target field in text blocks.
package extract

import (
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/textnorm"
)

// Extractor applies per-field rule cascades to text blocks.
type Extractor struct {
	rules map[entity.Field][]Rule
}

// New returns an extractor using the given rule tables, or Rules when nil.
func New(rules map[entity.Field][]Rule) *Extractor {
	if rules == nil {
		rules = Rules
	}
	return &Extractor{rules: rules}
}

// Extract returns every candidate for every target field. Within one block
// the first rule of a field's cascade that yields a value wins; every block
// contributes independently. Candidates keep block order.
func (e *Extractor) Extract(blocks []entity.TextBlock) map[entity.Field][]entity.Candidate {
	out := make(map[entity.Field][]entity.Candidate, len(entity.Fields))
	for _, f := range entity.Fields {
		out[f] = nil
	}
	for _, b := range blocks {
		text := textnorm.Normalize(b.Text)
		if text == "" {
			continue
		}
		page := b.PageIndex
		for _, f := range entity.Fields {
			if c, ok := cascade(e.rules[f], text); ok {
				c.PageIndex = &page
				out[f] = append(out[f], c)
			}
		}
	}
	return out
}

// cascade returns the candidate from the first rule that applies to text.
func cascade(rules []Rule, text string) (entity.Candidate, bool) {
	for _, r := range rules {
		m := r.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, ok := r.Value(m)
		if !ok {
			continue
		}
		return entity.Candidate{
			Value:   v,
			Score:   r.Score,
			Snippet: text,
			Rule:    r.Name,
		}, true
	}
	return entity.Candidate{}, false
}
