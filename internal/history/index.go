package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// document is what gets indexed per history record.
type document struct {
	Bank     string `json:"bank"`
	FileName string `json:"file_name"`
	SHA256   string `json:"sha256"`
	Values   string `json:"values"`
}

// Hit is one search match.
type Hit struct {
	ID    uuid.UUID
	Score float64
}

// Index is an in-memory full-text index over bank, file name and field values.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create history index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = simple.Name

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("bank", text)
	doc.AddFieldMappingsAt("file_name", text)
	doc.AddFieldMappingsAt("sha256", exact)
	doc.AddFieldMappingsAt("values", text)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = simple.Name
	return im
}

func toDocument(rec entity.HistoryRecord) document {
	doc := document{Bank: rec.Bank, FileName: rec.FileName, SHA256: rec.SHA256}
	var res entity.StatementResult
	// results written by Save always decode; a foreign row just indexes without values
	if err := json.Unmarshal(rec.Result, &res); err == nil {
		parts := make([]string, 0, len(res.Fields))
		for _, f := range entity.Fields {
			if fr, ok := res.Fields[f]; ok && fr.Value != "" {
				parts = append(parts, fr.Value)
			}
		}
		doc.Values = strings.Join(parts, " ")
	}
	return doc
}

// Add indexes one record.
func (i *Index) Add(rec entity.HistoryRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.index.Index(rec.ID.String(), toDocument(rec)); err != nil {
		return fmt.Errorf("index history %s: %w", rec.ID, err)
	}
	return nil
}

// Rebuild replaces the indexed documents with recs.
func (i *Index) Rebuild(recs []entity.HistoryRecord) error {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	batch := idx.NewBatch()
	for _, rec := range recs {
		if err := batch.Index(rec.ID.String(), toDocument(rec)); err != nil {
			return fmt.Errorf("index history %s: %w", rec.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("index history batch: %w", err)
	}

	i.mu.Lock()
	old := i.index
	i.index = idx
	i.mu.Unlock()
	return old.Close()
}

// Search runs a fuzzy match query and returns ids by descending score.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewMatchQuery(query)
	q.SetFuzziness(1)
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	i.mu.RLock()
	res, err := i.index.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: h.Score})
	}
	return hits, nil
}

// Count returns the number of indexed records.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.index.Close()
}

// loadAll pages through every stored record.
func loadAll(ctx context.Context, s *Store) ([]entity.HistoryRecord, error) {
	const page = 500
	var all []entity.HistoryRecord
	for offset := 0; ; offset += page {
		recs, err := s.List(ctx, page, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
		if len(recs) < page {
			return all, nil
		}
	}
}
