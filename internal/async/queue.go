package async

import (
	"context"
	"time"
)

// Job asks for one document to be processed.
type Job struct {
	Path        string
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
