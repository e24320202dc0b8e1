// Package royalroad adapts royalroad.com fiction pages to the source
// contract.
package royalroad

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bindery/internal/fetch"
	"bindery/internal/source"
)

// Name is the stable source key.
const Name = "royalroad"

var patterns = []string{"royalroad.com"}

// fictionURL extracts the base fiction URL from any page of a story,
// chapter pages included.
var fictionURL = regexp.MustCompile(`https?://(?:www\.)?royalroad\.com/fiction/\d+`)

// Adapter fetches catalogs and chapters from Royal Road.
type Adapter struct {
	client *fetch.Client
	base   string
}

// New constructs the adapter over a shared HTTP client.
func New(client *fetch.Client) *Adapter {
	return &Adapter{client: client, base: "https://www.royalroad.com"}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Patterns implements source.Adapter.
func (a *Adapter) Patterns() []string { return patterns }

// CanHandle implements source.Adapter.
func (a *Adapter) CanHandle(identifier string) bool {
	return source.MatchPatterns(identifier, patterns)
}

// FetchCatalog parses the fiction overview page: story metadata plus the
// chapter table.
func (a *Adapter) FetchCatalog(ctx context.Context, identifier string) (source.Catalog, error) {
	pageURL := a.normalize(identifier)
	body, err := a.client.Get(ctx, pageURL)
	if err != nil {
		return source.Catalog{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return source.Catalog{}, source.NewError(source.KindMalformed, "parse catalog", pageURL, err)
	}

	catalog := source.Catalog{
		Title:       strings.TrimSpace(doc.Find("h1.font-white").First().Text()),
		Author:      strings.TrimSpace(doc.Find("h4.font-white a").First().Text()),
		Description: strings.TrimSpace(doc.Find("div.description div.hidden-content").First().Text()),
		Language:    "en",
	}
	if cover, ok := doc.Find("div.fic-header img.thumbnail").First().Attr("src"); ok {
		catalog.CoverURL = cover
	}

	doc.Find("table#chapters tbody tr[data-url]").Each(func(_ int, row *goquery.Selection) {
		href, _ := row.Attr("data-url")
		if href == "" {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = a.base + href
		}
		title := strings.TrimSpace(row.Find("td a").First().Text())
		if title == "" {
			title = fmt.Sprintf("Chapter %d", len(catalog.Chapters)+1)
		}
		catalog.Chapters = append(catalog.Chapters, source.ChapterRef{
			Index:   len(catalog.Chapters),
			Locator: href,
			Title:   title,
		})
	})

	if catalog.Title == "" || len(catalog.Chapters) == 0 {
		return source.Catalog{}, source.NewError(
			source.KindContent, "parse catalog", pageURL,
			errors.New("page has no recognizable fiction header or chapter table"),
		)
	}
	return catalog, nil
}

// FetchChapter returns the chapter body HTML. Royal Road marks it with
// div.chapter-inner.chapter-content; older pages use div.chapter-content.
func (a *Adapter) FetchChapter(ctx context.Context, ref source.ChapterRef) (source.ChapterContent, error) {
	body, err := a.client.Get(ctx, ref.Locator)
	if err != nil {
		return source.ChapterContent{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return source.ChapterContent{}, source.NewError(source.KindMalformed, "parse chapter", ref.Locator, err)
	}

	content := doc.Find("div.chapter-inner.chapter-content")
	if content.Length() == 0 {
		content = doc.Find("div.chapter-content")
	}
	if content.Length() == 0 {
		return source.ChapterContent{}, source.NewError(
			source.KindContent, "parse chapter", ref.Locator,
			errors.New("chapter content block not found"),
		)
	}

	html, err := goquery.OuterHtml(content.First())
	if err != nil {
		return source.ChapterContent{}, source.NewError(source.KindMalformed, "render chapter", ref.Locator, err)
	}
	return source.ChapterContent{Body: []byte(html)}, nil
}

func (a *Adapter) normalize(identifier string) string {
	if m := fictionURL.FindString(identifier); m != "" {
		return m
	}
	return identifier
}
