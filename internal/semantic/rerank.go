package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// Composite score weights. Structure dominates; similarity breaks near ties.
const (
	HeuristicWeight = 0.7
	SemanticWeight  = 0.3
)

// Descriptions are the semantic queries used per field.
var Descriptions = map[entity.Field]string{
	entity.FieldCardVariant:     "credit card type such as Platinum, Regalia, Magnus",
	entity.FieldCardLast4:       "last four digits of the card",
	entity.FieldBillingCycle:    "billing cycle or statement period",
	entity.FieldPaymentDueDate:  "payment due date",
	entity.FieldTotalBalanceDue: "total balance due or amount payable",
}

// Choice is the reranked pick for one field.
type Choice struct {
	Value     string
	Score     float64
	PageIndex *int
	Snippet   string
	Rule      string
	// Similarity is the raw cosine of the chosen text against the field query.
	Similarity float64
	// Search is set when no candidate existed and the whole text was searched.
	Search bool
}

// Reranker picks the best candidate per field.
type Reranker struct {
	embedder Embedder
	log      *slog.Logger
}

func NewReranker(e Embedder, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	if e == nil {
		e = NewHashingEmbedder(DefaultDims)
	}
	return &Reranker{embedder: e, log: logger}
}

// Rerank scores candidates as HeuristicWeight*score + SemanticWeight*cosine and
// returns the first maximum. Without candidates it returns the line of
// fullText most similar to the field description.
func (r *Reranker) Rerank(ctx context.Context, field entity.Field, candidates []entity.Candidate, fullText string) (Choice, error) {
	query, ok := Descriptions[field]
	if !ok {
		return Choice{}, fmt.Errorf("no description for field %q", field)
	}
	if len(candidates) == 0 {
		return r.search(ctx, field, query, fullText)
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	for _, c := range candidates {
		texts = append(texts, c.Text())
	}
	vecs, err := r.embed(ctx, texts)
	if err != nil {
		return Choice{}, err
	}

	best, bestScore, bestSim := 0, -1.0, 0.0
	for i, c := range candidates {
		sim := Cosine(vecs[0], vecs[i+1])
		composite := HeuristicWeight*c.Score + SemanticWeight*sim
		if composite > bestScore {
			best, bestScore, bestSim = i, composite, sim
		}
	}
	c := candidates[best]
	r.log.Debug("semantic.rerank.chosen",
		"field", field,
		"candidates", len(candidates),
		"rule", c.Rule,
		"heuristic", c.Score,
		"similarity", bestSim,
		"composite", bestScore,
	)
	return Choice{
		Value:      c.Value,
		Score:      bestScore,
		PageIndex:  c.PageIndex,
		Snippet:    c.Snippet,
		Rule:       c.Rule,
		Similarity: bestSim,
	}, nil
}

func (r *Reranker) search(ctx context.Context, field entity.Field, query, fullText string) (Choice, error) {
	var lines []string
	for _, ln := range strings.Split(fullText, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		return Choice{Search: true}, nil
	}
	vecs, err := r.embed(ctx, append([]string{query}, lines...))
	if err != nil {
		return Choice{}, err
	}
	best, bestSim := 0, Cosine(vecs[0], vecs[1])
	for i := 1; i < len(lines); i++ {
		if sim := Cosine(vecs[0], vecs[i+1]); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	r.log.Debug("semantic.search.chosen", "field", field, "lines", len(lines), "similarity", bestSim)
	return Choice{
		Value:      lines[best],
		Score:      bestSim,
		Snippet:    lines[best],
		Similarity: bestSim,
		Search:     true,
	}, nil
}

func (r *Reranker) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
