// Package file implements a filesystem-backed progress store. Records are
// JSON documents replaced atomically via rename; chapter bodies live in a
// per-job directory next to the record.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bindery/internal/progress"
	"bindery/internal/source"
)

// Store persists records under a root directory:
//
//	<root>/<jobKey>.json        record
//	<root>/<jobKey>/00042.html  chapter bodies
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the root directory if needed and returns a Store.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("progress root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create progress dir %s: %w", root, err)
	}
	return &Store{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

// Load reads the record for jobKey.
func (s *Store) Load(_ context.Context, jobKey string) (progress.Record, error) {
	data, err := os.ReadFile(s.recordPath(jobKey))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return progress.Record{}, progress.ErrNotFound
		}
		return progress.Record{}, fmt.Errorf("read record %s: %w", jobKey, err)
	}
	var rec progress.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return progress.Record{}, fmt.Errorf("decode record %s: %w", jobKey, err)
	}
	return rec, nil
}

// Save writes the record to a temp file and renames it into place, so a
// crash mid-save leaves either the old or the new record.
func (s *Store) Save(_ context.Context, record progress.Record) error {
	lock := s.lockFor(record.JobKey)
	lock.Lock()
	defer lock.Unlock()
	return s.writeRecord(record)
}

// AppendChapter stores the chapter body and marks the index completed,
// load-mutate-save under the per-jobKey lock.
func (s *Store) AppendChapter(
	ctx context.Context,
	jobKey string,
	ref source.ChapterRef,
	content source.ChapterContent,
) error {
	lock := s.lockFor(jobKey)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.Load(ctx, jobKey)
	if err != nil {
		return err
	}

	bodyPath := s.chapterPath(jobKey, ref.Index)
	if err := os.MkdirAll(filepath.Dir(bodyPath), 0o750); err != nil {
		return fmt.Errorf("create chapter dir for %s: %w", jobKey, err)
	}
	if err := os.WriteFile(bodyPath, content.Body, 0o600); err != nil {
		return fmt.Errorf("write chapter %d for %s: %w", ref.Index, jobKey, err)
	}

	if rec.Completed == nil {
		rec.Completed = make(map[int]progress.Entry)
	}
	rec.Completed[ref.Index] = progress.Entry{
		Index:     ref.Index,
		Title:     ref.Title,
		Location:  ref.Locator,
		FetchedAt: content.FetchedAt,
	}
	delete(rec.Gaps, ref.Index)
	rec.UpdatedAt = time.Now().UTC()
	return s.writeRecord(rec)
}

// RecordGap marks index permanently skipped.
func (s *Store) RecordGap(ctx context.Context, jobKey string, index int, reason string) error {
	lock := s.lockFor(jobKey)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.Load(ctx, jobKey)
	if err != nil {
		return err
	}
	if rec.Gaps == nil {
		rec.Gaps = make(map[int]string)
	}
	rec.Gaps[index] = reason
	rec.UpdatedAt = time.Now().UTC()
	return s.writeRecord(rec)
}

// Chapter reads a stored chapter body back.
func (s *Store) Chapter(ctx context.Context, jobKey string, index int) (source.ChapterContent, error) {
	rec, err := s.Load(ctx, jobKey)
	if err != nil {
		return source.ChapterContent{}, err
	}
	entry, ok := rec.Completed[index]
	if !ok {
		return source.ChapterContent{}, progress.ErrNotFound
	}
	body, err := os.ReadFile(s.chapterPath(jobKey, index))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return source.ChapterContent{}, progress.ErrNotFound
		}
		return source.ChapterContent{}, fmt.Errorf("read chapter %d for %s: %w", index, jobKey, err)
	}
	return source.ChapterContent{Body: body, FetchedAt: entry.FetchedAt}, nil
}

// List scans the root directory for records.
func (s *Store) List(ctx context.Context) ([]progress.Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list progress dir: %w", err)
	}
	var out []progress.Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.Load(ctx, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) writeRecord(rec progress.Record) error {
	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.JobKey, err)
	}
	target := s.recordPath(rec.JobKey)
	tmp, err := os.CreateTemp(s.root, rec.JobKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record for %s: %w", rec.JobKey, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("write temp record for %s: %w", rec.JobKey, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("sync temp record for %s: %w", rec.JobKey, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("close temp record for %s: %w", rec.JobKey, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("replace record %s: %w", rec.JobKey, err)
	}
	return nil
}

func (s *Store) lockFor(jobKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[jobKey]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[jobKey] = lock
	}
	return lock
}

func (s *Store) recordPath(jobKey string) string {
	return filepath.Join(s.root, jobKey+".json")
}

func (s *Store) chapterPath(jobKey string, index int) string {
	return filepath.Join(s.root, jobKey, fmt.Sprintf("%05d.html", index))
}
