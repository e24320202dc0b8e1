package assemble

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bindery/internal/book"
	"bindery/internal/source"
)

func testBook() *book.Book {
	catalog := source.Catalog{
		Title:  "The Winding Stair",
		Author: "A. Reader",
		Chapters: []source.ChapterRef{
			{Index: 0, Locator: "https://fiction.test/c/0", Title: "Down the Well"},
			{Index: 1, Locator: "https://fiction.test/c/1", Title: "The First Door"},
			{Index: 2, Locator: "https://fiction.test/c/2", Title: "Deeper"},
		},
	}
	return &book.Book{
		Identifier: "https://fiction.test/story/7",
		Source:     "fictiontest",
		Catalog:    catalog,
		Items: []book.Item{
			{Ref: catalog.Chapters[0], Content: &source.ChapterContent{Body: []byte("<p>one</p>")}},
			{Ref: catalog.Chapters[1], Content: &source.ChapterContent{Body: []byte("<p>two</p>")}},
			{Ref: catalog.Chapters[2], Content: &source.ChapterContent{Body: []byte("<p>three</p>")}},
		},
	}
}

func TestAssembleWritesSpool(t *testing.T) {
	root := t.TempDir()
	a, err := NewFileSystemAssembler(root, zap.NewNop())
	require.NoError(t, err)

	dir, err := a.Assemble(context.Background(), testBook())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "the-winding-stair"), dir)

	body, err := os.ReadFile(filepath.Join(dir, "00000-down-the-well.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>one</p>", string(body))

	raw, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "The Winding Stair", meta["title"])
	assert.Equal(t, float64(3), meta["chapters"])
	assert.NotContains(t, meta, "gaps")

	_, err = os.Stat(filepath.Join(dir, "gaps.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestAssembleWritesGapManifest(t *testing.T) {
	b := testBook()
	b.Items[1] = book.Item{Ref: b.Catalog.Chapters[1], GapReason: "http status 404"}

	a, err := NewFileSystemAssembler(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	dir, err := a.Assemble(context.Background(), b)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "gaps.json"))
	require.NoError(t, err)
	var gaps map[string]string
	require.NoError(t, json.Unmarshal(raw, &gaps))
	assert.Equal(t, map[string]string{"1": "http status 404"}, gaps)

	// The gapped chapter leaves no body file behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.NotContains(t, names, "00001-the-first-door.html")
}

func TestAssembleIsIdempotent(t *testing.T) {
	a, err := NewFileSystemAssembler(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	b := testBook()
	dir1, err := a.Assemble(context.Background(), b)
	require.NoError(t, err)
	dir2, err := a.Assemble(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, dir1, dir2)
}

func TestAssembleRejectsEmptyBook(t *testing.T) {
	a, err := NewFileSystemAssembler(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = a.Assemble(context.Background(), &book.Book{})
	require.Error(t, err)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in       string
		fallback string
		want     string
	}{
		{"The Winding Stair", "", "the-winding-stair"},
		{"Chapter 1: Greed!", "", "chapter-1-greed"},
		{"  --  ", "abc", "616263"},
		{"Ünïcode Title", "", "n-code-title"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Slug(tc.in, tc.fallback), tc.in)
	}
}
