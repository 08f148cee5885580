// Package store defines storage interfaces for persisting dashboard state:
// a small key/value space for the column configuration and an archive for
// fetched submissions.
package store

import (
	"context"
	"time"

	"marketdash/internal/domain"
)

// KV persists opaque values under string keys. Put replaces the whole value
// in a single write.
type KV interface {
	// Get returns the value stored under key. ok is false when the key has
	// never been written.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
}

// SubmissionArchive keeps a history of submissions seen by each column.
type SubmissionArchive interface {
	// WriteSubmissions merges subs into the column's archive for the day
	// they were fetched.
	WriteSubmissions(ctx context.Context, columnID string, fetchedAt time.Time, subs []domain.Submission) error

	// ReadSubmissions returns the archived submissions of a column for date.
	ReadSubmissions(ctx context.Context, columnID string, date time.Time) ([]domain.Submission, error)
}
