package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

// Store persists extraction results.
type Store struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// Checksum returns the hex SHA-256 of a document.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Save stores res under a new id and returns the record.
func (s *Store) Save(ctx context.Context, fileName, checksum string, res entity.StatementResult) (entity.HistoryRecord, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return entity.HistoryRecord{}, fmt.Errorf("encode result: %w", err)
	}
	rec := entity.HistoryRecord{
		ID:        uuid.New(),
		FileName:  fileName,
		SHA256:    checksum,
		Bank:      res.Bank,
		Result:    raw,
		CreatedAt: s.clock().UTC().Truncate(time.Microsecond),
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO statement_history (id, file_name, sha256, bank, result, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID.String(), rec.FileName, rec.SHA256, rec.Bank, string(rec.Result), rec.CreatedAt.UnixMicro())
	if err != nil {
		s.logger.Error("history.save.failed", "file_name", fileName, "error", err)
		return entity.HistoryRecord{}, fmt.Errorf("%w: insert history: %v", common.ErrDatabase, err)
	}
	s.logger.Debug("history.save.ok", "id", rec.ID, "file_name", fileName, "bank", rec.Bank)
	return rec, nil
}

const selectColumns = `SELECT id, file_name, sha256, bank, result, created_at FROM statement_history`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (entity.HistoryRecord, error) {
	var (
		rec     entity.HistoryRecord
		id      string
		result  string
		created int64
	)
	if err := row.Scan(&id, &rec.FileName, &rec.SHA256, &rec.Bank, &result, &created); err != nil {
		return entity.HistoryRecord{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return entity.HistoryRecord{}, fmt.Errorf("stored id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Result = json.RawMessage(result)
	rec.CreatedAt = time.UnixMicro(created).UTC()
	return rec, nil
}

// Get returns the record with id, or an error wrapping common.ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (entity.HistoryRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE id = ?`), id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.HistoryRecord{}, common.NewAppError(common.CodeNotFound, fmt.Sprintf("history record %s not found", id), common.ErrNotFound)
	}
	if err != nil {
		return entity.HistoryRecord{}, fmt.Errorf("%w: get history: %v", common.ErrDatabase, err)
	}
	return rec, nil
}

// GetBySHA256 returns the newest record for a document checksum.
func (s *Store) GetBySHA256(ctx context.Context, checksum string) (entity.HistoryRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE sha256 = ? ORDER BY created_at DESC LIMIT 1`), checksum))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.HistoryRecord{}, common.NewAppError(common.CodeNotFound, "no history for document", common.ErrNotFound)
	}
	if err != nil {
		return entity.HistoryRecord{}, fmt.Errorf("%w: get history by checksum: %v", common.ErrDatabase, err)
	}
	return rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]entity.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(selectColumns+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list history: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", common.ErrDatabase, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list history: %v", common.ErrDatabase, err)
	}
	return out, nil
}

// PruneOlderThan deletes records created before cutoff and returns how many went.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM statement_history WHERE created_at < ?`), cutoff.UTC().UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("%w: prune history: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune history: %v", common.ErrDatabase, err)
	}
	return n, nil
}
