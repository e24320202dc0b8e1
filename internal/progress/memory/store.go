// Package memory provides an in-memory progress store for development and
// testing.
package memory

import (
	"context"
	"sync"
	"time"

	"bindery/internal/progress"
	"bindery/internal/source"
)

// Store keeps records and chapter bodies in process memory.
type Store struct {
	mu       sync.RWMutex
	records  map[string]progress.Record
	chapters map[string]map[int]source.ChapterContent
}

// New constructs a Store.
func New() *Store {
	return &Store{
		records:  make(map[string]progress.Record),
		chapters: make(map[string]map[int]source.ChapterContent),
	}
}

// Load returns a deep copy of the record for jobKey.
func (s *Store) Load(_ context.Context, jobKey string) (progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jobKey]
	if !ok {
		return progress.Record{}, progress.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Save replaces the whole record.
func (s *Store) Save(_ context.Context, record progress.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.JobKey] = copyRecord(record)
	return nil
}

// AppendChapter marks ref complete and retains its body.
func (s *Store) AppendChapter(
	_ context.Context,
	jobKey string,
	ref source.ChapterRef,
	content source.ChapterContent,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jobKey]
	if !ok {
		return progress.ErrNotFound
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
	s.records[jobKey] = rec

	if s.chapters[jobKey] == nil {
		s.chapters[jobKey] = make(map[int]source.ChapterContent)
	}
	body := make([]byte, len(content.Body))
	copy(body, content.Body)
	s.chapters[jobKey][ref.Index] = source.ChapterContent{Body: body, FetchedAt: content.FetchedAt}
	return nil
}

// RecordGap marks index permanently skipped.
func (s *Store) RecordGap(_ context.Context, jobKey string, index int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jobKey]
	if !ok {
		return progress.ErrNotFound
	}
	if rec.Gaps == nil {
		rec.Gaps = make(map[int]string)
	}
	rec.Gaps[index] = reason
	rec.UpdatedAt = time.Now().UTC()
	s.records[jobKey] = rec
	return nil
}

// Chapter returns the stored content for a completed index.
func (s *Store) Chapter(_ context.Context, jobKey string, index int) (source.ChapterContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.chapters[jobKey][index]
	if !ok {
		return source.ChapterContent{}, progress.ErrNotFound
	}
	body := make([]byte, len(content.Body))
	copy(body, content.Body)
	return source.ChapterContent{Body: body, FetchedAt: content.FetchedAt}, nil
}

// List returns all records.
func (s *Store) List(_ context.Context) ([]progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]progress.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func copyRecord(rec progress.Record) progress.Record {
	out := rec
	out.Completed = make(map[int]progress.Entry, len(rec.Completed))
	for k, v := range rec.Completed {
		out.Completed[k] = v
	}
	if rec.Gaps != nil {
		out.Gaps = make(map[int]string, len(rec.Gaps))
		for k, v := range rec.Gaps {
			out.Gaps[k] = v
		}
	}
	out.Catalog.Chapters = append([]source.ChapterRef(nil), rec.Catalog.Chapters...)
	return out
}
