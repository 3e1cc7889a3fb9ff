package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// Service keeps the store and its search index in step.
type Service struct {
	store  *Store
	index  *Index
	logger *slog.Logger
}

// NewService indexes every stored record and returns the service.
func NewService(ctx context.Context, store *Store, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := NewIndex()
	if err != nil {
		return nil, err
	}
	s := &Service{store: store, index: idx, logger: logger}
	if err := s.Reindex(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return s, nil
}

// Record stores and indexes a result. A document whose checksum is already
// stored is not saved again; the existing record is returned.
func (s *Service) Record(ctx context.Context, fileName string, data []byte, res entity.StatementResult) (entity.HistoryRecord, error) {
	sum := Checksum(data)
	existing, err := s.store.GetBySHA256(ctx, sum)
	if err == nil {
		s.logger.Info("history.record.duplicate", "id", existing.ID, "file_name", fileName)
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return entity.HistoryRecord{}, err
	}
	rec, err := s.store.Save(ctx, fileName, sum, res)
	if err != nil {
		return entity.HistoryRecord{}, err
	}
	if err := s.index.Add(rec); err != nil {
		// the row is stored; the next reindex picks it up
		s.logger.Warn("history.index.add_failed", "id", rec.ID, "error", err)
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (entity.HistoryRecord, error) {
	return s.store.Get(ctx, id)
}

// GetByChecksum returns the record stored for a document's hex SHA-256.
func (s *Service) GetByChecksum(ctx context.Context, checksum string) (entity.HistoryRecord, error) {
	return s.store.GetBySHA256(ctx, strings.ToLower(strings.TrimSpace(checksum)))
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]entity.HistoryRecord, error) {
	return s.store.List(ctx, limit, offset)
}

// All returns every stored record, newest first.
func (s *Service) All(ctx context.Context) ([]entity.HistoryRecord, error) {
	return loadAll(ctx, s.store)
}

// Search returns the stored records matching q, best match first. Hits whose
// record has since been pruned are skipped.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]entity.HistoryRecord, error) {
	hits, err := s.index.Search(q, limit)
	if err != nil {
		return nil, common.NewAppError(common.CodeInternal, "history search failed", err)
	}
	out := make([]entity.HistoryRecord, 0, len(hits))
	for _, h := range hits {
		rec, err := s.store.Get(ctx, h.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Prune deletes records older than retention and reindexes the rest.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.store.clock().Add(-retention)
	n, err := s.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := s.Reindex(ctx); err != nil {
			return n, err
		}
	}
	s.logger.Info("history.prune.ok", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// Reindex rebuilds the search index from the store.
func (s *Service) Reindex(ctx context.Context) error {
	recs, err := loadAll(ctx, s.store)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if err := s.index.Rebuild(recs); err != nil {
		return err
	}
	s.logger.Debug("history.index.rebuilt", "records", len(recs))
	return nil
}

// HealthCheck pings the underlying database.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx, 2*time.Second)
}

// Close releases the index and the store.
func (s *Service) Close() {
	if err := s.index.Close(); err != nil {
		s.logger.Error("history.index.close_failed", "error", err)
	}
	s.store.Close()
}
