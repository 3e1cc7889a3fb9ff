package entity

// Candidate is one possible value for a field, matched by a single extraction rule.
type Candidate struct {
	Value     string  `json:"value"`
	Score     float64 `json:"score"`
	PageIndex *int    `json:"page"`
	Snippet   string  `json:"snippet"`
	Rule      string  `json:"rule,omitempty"`
}

// Text is what the reranker embeds for this candidate: the value, or the snippet when the value is empty.
func (c Candidate) Text() string {
	if c.Value != "" {
		return c.Value
	}
	return c.Snippet
}
