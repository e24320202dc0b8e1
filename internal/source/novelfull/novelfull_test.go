package novelfull

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bindery/internal/fetch"
	"bindery/internal/source"
)

const storyPage = `<!DOCTYPE html>
<html><body>
<div class="book"><img data-src="/media/novel/overgeared.jpg" alt="cover"></div>
<h3 class="title">Overgeared</h3>
<div class="info">
  <div><h3>Author:</h3> <a href="/author/park-saenal">Park Saenal</a></div>
</div>
<div class="desc-text">Grid picked up a legendary class.</div>
<div id="list-chapter" data-novel-id="4620"></div>
</body></html>`

const storyPageScriptID = `<!DOCTYPE html>
<html><body>
<h3 class="title">Overgeared</h3>
<script>var novelId = 4620; var other = 1;</script>
</body></html>`

const chapterOptions = `
<select>
  <option value="/overgeared/chapter-1.html">Chapter 1: Greed</option>
  <option value="/overgeared/chapter-2.html">Chapter 2: Legendary</option>
  <option value="/overgeared/chapter-3.html">Chapter 3: Blacksmith</option>
</select>`

const chapterPage = `<!DOCTYPE html>
<html><body>
<a class="chapter-title" href="#">Chapter 1: Greed</a>
<div id="chapter-content">
  <p>Grid stared at the item window.</p>
  <div class="ads-holder"><p>advertisement</p></div>
  <p>It was a legendary book.</p>
</div>
</body></html>`

func newTestAdapter(t *testing.T, handler http.Handler) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := New(fetch.New(fetch.Options{UserAgent: "test"}))
	a.base = srv.URL
	return a, srv
}

func storyMux(t *testing.T, story string) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/overgeared.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(story))
	})
	mux.HandleFunc("/ajax-chapter-option", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "4620", r.URL.Query().Get("novelId"))
		_, _ = w.Write([]byte(chapterOptions))
	})
	return mux
}

func TestCanHandle(t *testing.T) {
	a := New(fetch.New(fetch.Options{}))
	assert.True(t, a.CanHandle("https://novelfull.com/overgeared.html"))
	assert.False(t, a.CanHandle("https://www.royalroad.com/fiction/21220"))
}

func TestFetchCatalogUsesAjaxChapterList(t *testing.T) {
	a, srv := newTestAdapter(t, storyMux(t, storyPage))

	catalog, err := a.FetchCatalog(context.Background(), srv.URL+"/overgeared.html")
	require.NoError(t, err)

	assert.Equal(t, "Overgeared", catalog.Title)
	assert.Equal(t, "Park Saenal", catalog.Author)
	assert.Equal(t, "Grid picked up a legendary class.", catalog.Description)
	assert.Equal(t, srv.URL+"/media/novel/overgeared.jpg", catalog.CoverURL)

	require.Len(t, catalog.Chapters, 3)
	for i, ref := range catalog.Chapters {
		assert.Equal(t, i, ref.Index)
	}
	assert.Equal(t, srv.URL+"/overgeared/chapter-1.html", catalog.Chapters[0].Locator)
	assert.Equal(t, "Chapter 2: Legendary", catalog.Chapters[1].Title)
}

func TestFetchCatalogNovelIDFromScript(t *testing.T) {
	a, srv := newTestAdapter(t, storyMux(t, storyPageScriptID))

	catalog, err := a.FetchCatalog(context.Background(), srv.URL+"/overgeared.html")
	require.NoError(t, err)
	require.Len(t, catalog.Chapters, 3)
}

func TestFetchCatalogMissingNovelID(t *testing.T) {
	a, srv := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h3 class="title">Overgeared</h3></body></html>`))
	}))

	_, err := a.FetchCatalog(context.Background(), srv.URL+"/overgeared.html")
	require.Error(t, err)
	assert.True(t, source.IsKind(err, source.KindContent))
}

func TestNormalizeStripsChapterPath(t *testing.T) {
	a := New(fetch.New(fetch.Options{}))
	assert.Equal(t,
		"https://novelfull.com/overgeared.html",
		a.normalize("https://novelfull.com/overgeared.html"),
	)
	assert.Equal(t,
		"https://novelfull.com/overgeared.html",
		a.normalize("https://novelfull.com/overgeared/chapter-37.html"),
	)
	// Unrecognized identifiers pass through untouched.
	assert.Equal(t, "http://127.0.0.1:1/x.html", a.normalize("http://127.0.0.1:1/x.html"))
}

func TestFetchChapterStripsAdBlocks(t *testing.T) {
	a, srv := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chapterPage))
	}))

	content, err := a.FetchChapter(context.Background(), source.ChapterRef{
		Index:   0,
		Locator: srv.URL + "/overgeared/chapter-1.html",
	})
	require.NoError(t, err)

	body := string(content.Body)
	assert.Contains(t, body, "Grid stared at the item window.")
	assert.Contains(t, body, "It was a legendary book.")
	assert.NotContains(t, body, "advertisement")
}

func TestFetchChapterMissingContentBlock(t *testing.T) {
	a, srv := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>cloudflare says hi</p></body></html>"))
	}))

	_, err := a.FetchChapter(context.Background(), source.ChapterRef{Locator: srv.URL + "/x.html"})
	require.Error(t, err)
	assert.True(t, source.IsKind(err, source.KindContent))
}
