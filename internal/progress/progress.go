// Package progress defines the durable per-job completion record and the
// store contract the engine persists through.
package progress

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"bindery/internal/source"
)

// ErrNotFound is returned by Load and Chapter for unknown keys.
var ErrNotFound = errors.New("progress: record not found")

// Entry records one completed chapter: where its body lives plus the
// fetch timestamp.
type Entry struct {
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	Location  string    `json:"location"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Record is the durable state of one job, keyed by JobKey. The completed
// set only grows for the life of a job; entries are never implicitly
// removed.
type Record struct {
	JobKey     string         `json:"job_key"`
	Identifier string         `json:"identifier"`
	Source     string         `json:"source"`
	Catalog    source.Catalog `json:"catalog"`
	Completed  map[int]Entry  `json:"completed"`
	Gaps       map[int]string `json:"gaps,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// CompletedIndices returns the completed chapter indices in ascending
// order.
func (r Record) CompletedIndices() []int {
	out := make([]int, 0, len(r.Completed))
	for idx := range r.Completed {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Done reports whether index is completed or recorded as a permanent gap.
func (r Record) Done(index int) bool {
	if _, ok := r.Completed[index]; ok {
		return true
	}
	_, gapped := r.Gaps[index]
	return gapped
}

// Store is the durable key-value record of per-job completion state.
// Implementations guarantee atomic whole-record saves and read-your-writes
// consistency within a process; AppendChapter and RecordGap run under
// per-jobKey mutual exclusion.
type Store interface {
	// Load returns the record for jobKey, or ErrNotFound.
	Load(ctx context.Context, jobKey string) (Record, error)

	// Save atomically replaces the whole record.
	Save(ctx context.Context, record Record) error

	// AppendChapter marks ref completed and persists its content. It is
	// an idempotent upsert: re-appending an index replaces the body
	// without shrinking the completed set. A successful append clears
	// any gap marker recorded for the index.
	AppendChapter(ctx context.Context, jobKey string, ref source.ChapterRef, content source.ChapterContent) error

	// RecordGap marks index as permanently skipped with a reason.
	RecordGap(ctx context.Context, jobKey string, index int, reason string) error

	// Chapter returns the stored content for a completed index, or
	// ErrNotFound.
	Chapter(ctx context.Context, jobKey string, index int) (source.ChapterContent, error)

	// List returns all known records.
	List(ctx context.Context) ([]Record, error)
}

// JobKey derives the stable key for an identifier. It is a pure function,
// so repeated runs over the same source resolve to the same record.
func JobKey(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])[:16]
}
