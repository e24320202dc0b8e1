// Package book defines the assembled document model handed to the
// assembler once a job completes.
package book

import (
	"bindery/internal/source"
)

// Item is one slot in the assembled chapter sequence: either fetched
// content or an explicit gap. Gaps are never silent; GapReason says why
// the slot is empty.
type Item struct {
	Ref       source.ChapterRef
	Content   *source.ChapterContent
	GapReason string
}

// IsGap reports whether the slot holds no content.
func (it Item) IsGap() bool {
	return it.Content == nil
}

// Book is the completed model: catalog metadata plus the ordered items.
type Book struct {
	Identifier string
	Source     string
	Catalog    source.Catalog
	Items      []Item
}

// GapIndices enumerates the indices of all gap slots in order.
func (b *Book) GapIndices() []int {
	var out []int
	for _, it := range b.Items {
		if it.IsGap() {
			out = append(out, it.Ref.Index)
		}
	}
	return out
}

// ChapterCount returns the number of items carrying content.
func (b *Book) ChapterCount() int {
	n := 0
	for _, it := range b.Items {
		if !it.IsGap() {
			n++
		}
	}
	return n
}
