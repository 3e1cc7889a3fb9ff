package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/statement-parser/internal/common"
	"github.com/joseph-ayodele/statement-parser/internal/entity"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeProcessor struct {
	calls   atomic.Int32
	delay   time.Duration
	fail    string
	sawReq  atomic.Value
	maxLive atomic.Int32
	live    atomic.Int32
}

func (f *fakeProcessor) Process(ctx context.Context, path string) (entity.StatementResult, error) {
	f.calls.Add(1)
	n := f.live.Add(1)
	defer f.live.Add(-1)
	for {
		cur := f.maxLive.Load()
		if n <= cur || f.maxLive.CompareAndSwap(cur, n) {
			break
		}
	}
	if id := common.RequestIDFromContext(ctx); id != "" {
		f.sawReq.Store(id)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return entity.StatementResult{}, ctx.Err()
		}
	}
	if path == f.fail {
		return entity.StatementResult{}, errors.New("bad statement")
	}
	return entity.StatementResult{Bank: "Bank of " + path}, nil
}

type collector struct {
	mu      sync.Mutex
	results map[string]error
}

func (c *collector) handle(job Job, _ entity.StatementResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = map[string]error{}
	}
	c.results[job.Path] = err
}

func TestProcessorQueueDrains(t *testing.T) {
	proc := &fakeProcessor{fail: "b.pdf", delay: 5 * time.Millisecond}
	var col collector
	q := NewProcessorQueue(proc, testLogger, WithWorkers(2), WithQueueSize(1), WithResultHandler(col.handle))

	paths := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"}
	for _, p := range paths {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p, RequestID: "req-1"}))
	}
	q.Shutdown(context.Background())

	assert.EqualValues(t, len(paths), proc.calls.Load())
	assert.LessOrEqual(t, proc.maxLive.Load(), int32(2))
	assert.Equal(t, "req-1", proc.sawReq.Load())

	require.Len(t, col.results, len(paths))
	assert.Error(t, col.results["b.pdf"])
	assert.NoError(t, col.results["a.pdf"])
}

func TestProcessorQueueClosed(t *testing.T) {
	q := NewProcessorQueue(&fakeProcessor{}, testLogger)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{Path: "late.pdf"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProcessorQueueTimeout(t *testing.T) {
	proc := &fakeProcessor{delay: time.Second}
	var col collector
	q := NewProcessorQueue(proc, testLogger, WithWorkers(1), WithProcessTimeout(10*time.Millisecond), WithResultHandler(col.handle))

	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "slow.pdf"}))
	q.Shutdown(context.Background())

	assert.ErrorIs(t, col.results["slow.pdf"], context.DeadlineExceeded)
}
