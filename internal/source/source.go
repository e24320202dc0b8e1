// Package source defines the adapter contract for remote fiction sources
// and the catalog/chapter types shared across subsystems.
package source

import (
	"context"
	"time"
)

// ChapterRef identifies one chapter within a catalog. Identity is the
// (identifier, Index) pair; Index is 0-based and contiguous.
type ChapterRef struct {
	Index   int    `json:"index"`
	Locator string `json:"locator"`
	Title   string `json:"title"`
}

// Catalog is the metadata an adapter returns for a story identifier,
// including the ordered chapter list.
type Catalog struct {
	Title       string       `json:"title"`
	Author      string       `json:"author"`
	Description string       `json:"description,omitempty"`
	CoverURL    string       `json:"cover_url,omitempty"`
	Language    string       `json:"language,omitempty"`
	Chapters    []ChapterRef `json:"chapters"`
}

// ChapterContent is the raw fetched body of one chapter.
type ChapterContent struct {
	Body      []byte    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Adapter is implemented once per remote source. Adapters perform exactly
// one logical network fetch per call and never retry or rate-limit
// themselves; pacing and retries belong to the engine.
type Adapter interface {
	// Name is the stable key used for rate limiting and progress records.
	Name() string

	// Patterns returns the identifier substrings this adapter claims.
	Patterns() []string

	// CanHandle reports whether the identifier belongs to this source.
	// It is pure and performs no I/O.
	CanHandle(identifier string) bool

	// FetchCatalog returns the catalog metadata for the identifier.
	FetchCatalog(ctx context.Context, identifier string) (Catalog, error)

	// FetchChapter returns the content for a single chapter reference.
	FetchChapter(ctx context.Context, ref ChapterRef) (ChapterContent, error)
}
