package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name     string
	patterns []string
}

func (s *stubAdapter) Name() string       { return s.name }
func (s *stubAdapter) Patterns() []string { return s.patterns }

func (s *stubAdapter) CanHandle(identifier string) bool {
	return MatchPatterns(identifier, s.patterns)
}

func (s *stubAdapter) FetchCatalog(context.Context, string) (Catalog, error) {
	return Catalog{}, nil
}

func (s *stubAdapter) FetchChapter(context.Context, ChapterRef) (ChapterContent, error) {
	return ChapterContent{}, nil
}

func TestRegistry_ResolveFirstMatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "alpha", patterns: []string{"alpha.example"}}))
	require.NoError(t, r.Register(&stubAdapter{name: "beta", patterns: []string{"beta.example"}}))

	a, err := r.Resolve("https://beta.example/fiction/42")
	require.NoError(t, err)
	require.Equal(t, "beta", a.Name())
}

func TestRegistry_ResolveUnknownIdentifier(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "alpha", patterns: []string{"alpha.example"}}))

	_, err := r.Resolve("https://gamma.example/fiction/1")
	require.Error(t, err)

	var noAdapter *ErrNoAdapter
	require.True(t, errors.As(err, &noAdapter))
	require.Equal(t, "https://gamma.example/fiction/1", noAdapter.Identifier)
}

func TestRegistry_RejectsOverlappingPatterns(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "alpha", patterns: []string{"example.com"}}))

	// Ambiguity is a configuration error surfaced at registration time.
	err := r.Register(&stubAdapter{name: "beta", patterns: []string{"www.example.com"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "overlaps")
	require.Len(t, r.Adapters(), 1)
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{name: "alpha", patterns: []string{"a.example"}}))
	require.Error(t, r.Register(&stubAdapter{name: "alpha", patterns: []string{"b.example"}}))
}

func TestRegistry_RejectsEmptyPatterns(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(&stubAdapter{name: "alpha"}))
}

func TestKindOf(t *testing.T) {
	err := NewError(KindNotFound, "fetch chapter", "https://a.example/ch/9", errors.New("404"))
	require.Equal(t, KindNotFound, KindOf(err))
	require.True(t, IsKind(err, KindNotFound))
	require.False(t, IsKind(errors.New("plain"), KindNotFound))
	require.Equal(t, "not_found", KindNotFound.String())
}
