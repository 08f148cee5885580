package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketdash/internal/domain"
)

// Compile-time interface check.
var _ SubmissionArchive = (*ParquetArchive)(nil)

// ParquetArchive implements SubmissionArchive using Parquet files on disk.
type ParquetArchive struct {
	DataDir string

	mu sync.Mutex // serialises read-merge-write per archive
}

// NewParquetArchive creates a new ParquetArchive rooted at the given directory.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// SubmissionRecord is the Parquet schema for archived submissions.
type SubmissionRecord struct {
	ColumnID     string   `parquet:"column_id"`
	ID           string   `parquet:"id"`
	Title        string   `parquet:"title"`
	URL          string   `parquet:"url"`
	Permalink    string   `parquet:"permalink"`
	Published    int64    `parquet:"published,timestamp(millisecond)"` // Unix ms
	FetchedAt    int64    `parquet:"fetched_at,timestamp(millisecond)"`
	Score        *int64   `parquet:"score,optional"`
	UpvoteRatio  *float64 `parquet:"upvote_ratio,optional"`
	Flairs       []string `parquet:"flairs,list"`
	ContentType  string   `parquet:"content_type"`
	ThumbnailURL string   `parquet:"thumbnail_url"`
}

// ---------------------------------------------------------------------------
// SubmissionArchive implementation
// ---------------------------------------------------------------------------

// WriteSubmissions merges subs into <DataDir>/<column>/<YYYY-MM-DD>.parquet.
// Submissions already archived for that day are replaced by the newer copy,
// so scores reflect the latest fetch.
func (a *ParquetArchive) WriteSubmissions(_ context.Context, columnID string, fetchedAt time.Time, subs []domain.Submission) error {
	if len(subs) == 0 {
		return nil
	}

	records := make([]SubmissionRecord, 0, len(subs))
	for _, s := range subs {
		records = append(records, toRecord(columnID, fetchedAt, s))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.submissionPath(columnID, fetchedAt)
	existing, _ := readParquetFile[SubmissionRecord](path)
	merged := mergeSubmissionRecords(existing, records)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing submissions for %s/%s: %w", columnID, fetchedAt.Format("2006-01-02"), err)
	}
	return nil
}

// ReadSubmissions reads the archived submissions for a column and date,
// ordered by publication time. A missing file yields an empty result.
func (a *ParquetArchive) ReadSubmissions(_ context.Context, columnID string, date time.Time) ([]domain.Submission, error) {
	path := a.submissionPath(columnID, date)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	records, err := readParquetFile[SubmissionRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	subs := make([]domain.Submission, 0, len(records))
	for _, r := range records {
		subs = append(subs, fromRecord(r))
	}
	return subs, nil
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func toRecord(columnID string, fetchedAt time.Time, s domain.Submission) SubmissionRecord {
	r := SubmissionRecord{
		ColumnID:     columnID,
		ID:           s.ID,
		Title:        s.Title,
		URL:          s.URL,
		Permalink:    s.Permalink,
		Published:    s.PublishedAt.UnixMilli(),
		FetchedAt:    fetchedAt.UnixMilli(),
		UpvoteRatio:  s.UpvoteRatio,
		Flairs:       s.Flairs,
		ContentType:  string(s.ContentType),
		ThumbnailURL: s.ThumbnailURL,
	}
	if s.Score != nil {
		v := int64(*s.Score)
		r.Score = &v
	}
	return r
}

func fromRecord(r SubmissionRecord) domain.Submission {
	s := domain.Submission{
		ID:           r.ID,
		Title:        r.Title,
		URL:          r.URL,
		Permalink:    r.Permalink,
		PublishedAt:  time.UnixMilli(r.Published),
		UpvoteRatio:  r.UpvoteRatio,
		Flairs:       r.Flairs,
		ContentType:  domain.ContentType(r.ContentType),
		ThumbnailURL: r.ThumbnailURL,
	}
	if r.Score != nil {
		v := int(*r.Score)
		s.Score = &v
	}
	return s
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// submissionPath returns the filesystem path for a submission Parquet file.
// Layout: <dataDir>/<column-id>/<YYYY-MM-DD>.parquet
func (a *ParquetArchive) submissionPath(columnID string, t time.Time) string {
	date := t.Format("2006-01-02")
	return filepath.Join(a.DataDir, filepath.Base(columnID), date+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeSubmissionRecords deduplicates records by (column, id), preferring
// incoming records over existing ones. Results are sorted by publication
// time, newest first.
func mergeSubmissionRecords(existing, incoming []SubmissionRecord) []SubmissionRecord {
	type key struct {
		column string
		id     string
	}
	seen := make(map[key]SubmissionRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.ColumnID, r.ID}] = r
	}
	for _, r := range incoming {
		seen[key{r.ColumnID, r.ID}] = r
	}

	merged := make([]SubmissionRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Published != merged[j].Published {
			return merged[i].Published > merged[j].Published
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
