package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
	"github.com/joseph-ayodele/statement-parser/internal/metrics"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: dsn}, testLogger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func result(bank string, values map[entity.Field]string) entity.StatementResult {
	res := entity.StatementResult{Bank: bank, Fields: map[entity.Field]entity.FieldResult{}}
	for f, v := range values {
		res.Fields[f] = entity.FieldResult{Value: v, Confidence: 0.9, Snippet: v}
	}
	return res
}

func TestOpen(t *testing.T) {
	t.Run("empty dsn", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Driver: DriverSQLite}, testLogger)
		assert.ErrorIs(t, err, common.ErrConfig)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"}, testLogger)
		assert.ErrorIs(t, err, common.ErrConfig)
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "history.db")
		for i := 0; i < 2; i++ {
			s, err := Open(context.Background(), Config{DSN: dsn}, testLogger)
			require.NoError(t, err)
			require.NoError(t, s.HealthCheck(context.Background(), time.Second))
			s.Close()
		}
	})
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	res := result("HDFC Bank", map[entity.Field]string{entity.FieldCardLast4: "4321"})

	rec, err := s.Save(ctx, "jan.pdf", Checksum([]byte("jan")), res)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, rec.ID)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "jan.pdf", got.FileName)
	assert.Equal(t, "HDFC Bank", got.Bank)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	var decoded entity.StatementResult
	require.NoError(t, json.Unmarshal(got.Result, &decoded))
	assert.Equal(t, "4321", decoded.Fields[entity.FieldCardLast4].Value)

	bySum, err := s.GetBySHA256(ctx, Checksum([]byte("jan")))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, bySum.ID)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.GetBySHA256(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestStoreListAndPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		s.now = func() time.Time { return at }
		_, err := s.Save(ctx, "stmt.pdf", Checksum([]byte{byte(i)}), result("AXIS", nil))
		require.NoError(t, err)
	}

	all, err := s.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt), "newest first")

	page, err := s.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	n, err := s.PruneOlderThan(ctx, base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestServiceSearch(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ctx, openTestStore(t), testLogger)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	hdfc, err := svc.Record(ctx, "hdfc-march.pdf", []byte("a"), result("HDFC Bank", map[entity.Field]string{
		entity.FieldCardVariant: "Regalia",
	}))
	require.NoError(t, err)
	_, err = svc.Record(ctx, "axis-march.pdf", []byte("b"), result("Axis Bank", map[entity.Field]string{
		entity.FieldCardVariant: "Magnus",
	}))
	require.NoError(t, err)

	t.Run("by field value", func(t *testing.T) {
		recs, err := svc.Search(ctx, "regalia", 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, hdfc.ID, recs[0].ID)
	})

	t.Run("typo tolerant", func(t *testing.T) {
		recs, err := svc.Search(ctx, "magnis", 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "Axis Bank", recs[0].Bank)
	})

	t.Run("empty query", func(t *testing.T) {
		recs, err := svc.Search(ctx, "  ", 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("existing rows indexed on start", func(t *testing.T) {
		again, err := NewService(ctx, svc.store, testLogger)
		require.NoError(t, err)
		n, err := again.index.Count()
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})
}

func TestServiceRecordDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ctx, openTestStore(t), testLogger)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	first, err := svc.Record(ctx, "icici-april.pdf", []byte("same bytes"), result("ICICI Bank", map[entity.Field]string{
		entity.FieldCardVariant: "Coral",
	}))
	require.NoError(t, err)

	again, err := svc.Record(ctx, "renamed.pdf", []byte("same bytes"), result("ICICI Bank", map[entity.Field]string{
		entity.FieldCardVariant: "Coral",
	}))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "icici-april.pdf", again.FileName)

	recs, err := svc.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	t.Run("lookup by checksum", func(t *testing.T) {
		rec, err := svc.GetByChecksum(ctx, "  "+strings.ToUpper(Checksum([]byte("same bytes")))+" ")
		require.NoError(t, err)
		assert.Equal(t, first.ID, rec.ID)

		_, err = svc.GetByChecksum(ctx, Checksum([]byte("other")))
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})
}

func TestServicePrune(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	svc, err := NewService(ctx, store, testLogger)
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now.Add(-48 * time.Hour) }
	_, err = svc.Record(ctx, "old.pdf", []byte("old"), result("SBI", map[entity.Field]string{entity.FieldCardVariant: "Elite"}))
	require.NoError(t, err)
	store.now = func() time.Time { return now }
	_, err = svc.Record(ctx, "new.pdf", []byte("new"), result("SBI", map[entity.Field]string{entity.FieldCardVariant: "Prime"}))
	require.NoError(t, err)

	n, err := svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	recs, err := svc.Search(ctx, "elite", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)

	count, err := svc.index.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	n, err = svc.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type countingPruner struct {
	calls     int
	retention time.Duration
}

func (p *countingPruner) Prune(_ context.Context, retention time.Duration) (int64, error) {
	p.calls++
	p.retention = retention
	return 2, nil
}

func TestSchedulerRunOnce(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, ScratchPrefix+"old.pdf")
	fresh := filepath.Join(dir, ScratchPrefix+"fresh.pdf")
	other := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	stale := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))
	require.NoError(t, os.Chtimes(other, stale, stale))

	pruner := &countingPruner{}
	s := NewScheduler(SchedulerConfig{Retention: 72 * time.Hour, ScratchDir: dir}, pruner, metrics.New(), testLogger)
	s.RunOnce()

	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 72*time.Hour, pruner.retention)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Schedule: "@every 1h"}, nil, nil, testLogger)
	require.NoError(t, s.Start())
	<-s.Stop().Done()

	bad := NewScheduler(SchedulerConfig{Schedule: "not a schedule"}, nil, nil, testLogger)
	assert.Error(t, bad.Start())
}
