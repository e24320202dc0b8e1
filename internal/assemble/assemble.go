// Package assemble renders a completed book model into a filesystem
// spool: one directory per book holding the metadata, the ordered
// chapter bodies, and an explicit gap manifest.
package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"bindery/internal/book"
)

// FileSystemAssembler writes book artifacts to disk.
type FileSystemAssembler struct {
	root   string
	logger *zap.Logger
}

// NewFileSystemAssembler returns an assembler rooted at dir.
func NewFileSystemAssembler(root string, logger *zap.Logger) (*FileSystemAssembler, error) {
	if root == "" {
		return nil, fmt.Errorf("output root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", root, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemAssembler{root: root, logger: logger}, nil
}

// metadata is the shape of metadata.json.
type metadata struct {
	Identifier  string         `json:"identifier"`
	Source      string         `json:"source"`
	Title       string         `json:"title"`
	Author      string         `json:"author"`
	Description string         `json:"description,omitempty"`
	CoverURL    string         `json:"cover_url,omitempty"`
	Language    string         `json:"language,omitempty"`
	Chapters    int            `json:"chapters"`
	Gaps        map[int]string `json:"gaps,omitempty"`
}

// Assemble writes the book under <root>/<slug>/: metadata.json, one
// numbered HTML file per chapter, and gaps.json when any slot is empty.
// It returns the book directory. Re-assembling overwrites in place.
func (a *FileSystemAssembler) Assemble(ctx context.Context, b *book.Book) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if b == nil || len(b.Items) == 0 {
		return "", fmt.Errorf("nothing to assemble")
	}

	dir := filepath.Join(a.root, Slug(b.Catalog.Title, b.Identifier))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create book dir %s: %w", dir, err)
	}

	gaps := make(map[int]string)
	for _, item := range b.Items {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("context canceled: %w", err)
		}
		if item.IsGap() {
			gaps[item.Ref.Index] = item.GapReason
			continue
		}
		target := filepath.Join(dir, chapterFileName(item))
		if err := os.WriteFile(target, item.Content.Body, 0o600); err != nil {
			return "", fmt.Errorf("write chapter %d to %s: %w", item.Ref.Index, target, err)
		}
	}

	meta := metadata{
		Identifier:  b.Identifier,
		Source:      b.Source,
		Title:       b.Catalog.Title,
		Author:      b.Catalog.Author,
		Description: b.Catalog.Description,
		CoverURL:    b.Catalog.CoverURL,
		Language:    b.Catalog.Language,
		Chapters:    b.ChapterCount(),
	}
	if len(gaps) > 0 {
		meta.Gaps = gaps
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), payload, 0o600); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	if len(gaps) > 0 {
		gapPayload, err := json.MarshalIndent(gaps, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal gap manifest: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "gaps.json"), gapPayload, 0o600); err != nil {
			return "", fmt.Errorf("write gap manifest: %w", err)
		}
		a.logger.Warn("assembled with gaps",
			zap.String("dir", dir),
			zap.Int("gaps", len(gaps)),
		)
	}

	a.logger.Info("book assembled",
		zap.String("dir", dir),
		zap.Int("chapters", b.ChapterCount()),
	)
	return dir, nil
}

func chapterFileName(item book.Item) string {
	slug := Slug(item.Ref.Title, "")
	if slug == "" {
		return fmt.Sprintf("%05d.html", item.Ref.Index)
	}
	return fmt.Sprintf("%05d-%s.html", item.Ref.Index, slug)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses everything non-alphanumeric to single
// hyphens; fallback is used when nothing survives.
func Slug(s, fallback string) string {
	out := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if out == "" && fallback != "" {
		sum := fmt.Sprintf("%x", []byte(fallback))
		if len(sum) > 12 {
			sum = sum[:12]
		}
		return sum
	}
	if len(out) > 80 {
		out = strings.Trim(out[:80], "-")
	}
	return out
}
