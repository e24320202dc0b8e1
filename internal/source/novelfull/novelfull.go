// Package novelfull adapts novelfull.com story pages to the source
// contract. The full chapter list comes from the site's ajax endpoint,
// keyed by the novel id embedded in the story page.
package novelfull

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
const Name = "novelfull"

var patterns = []string{"novelfull.com"}

var (
	// Story URLs look like novelfull.com/story-slug.html; chapter URLs
	// nest under the slug instead.
	storyURL   = regexp.MustCompile(`https?://(?:www\.)?novelfull\.com/[^/]+\.html`)
	chapterURL = regexp.MustCompile(`(https?://(?:www\.)?novelfull\.com/)([^/]+)/`)
	novelIDRe  = regexp.MustCompile(`novelId\s*[=:]\s*['"]?(\d+)`)
	novelIDArg = regexp.MustCompile(`novelId=(\d+)`)
)

// Adapter fetches catalogs and chapters from NovelFull.
type Adapter struct {
	client *fetch.Client
	base   string
}

// New constructs the adapter over a shared HTTP client.
func New(client *fetch.Client) *Adapter {
	return &Adapter{client: client, base: "https://novelfull.com"}
}

// Name implements source.Adapter.
func (a *Adapter) Name() string { return Name }

// Patterns implements source.Adapter.
func (a *Adapter) Patterns() []string { return patterns }

// CanHandle implements source.Adapter.
func (a *Adapter) CanHandle(identifier string) bool {
	return source.MatchPatterns(identifier, patterns)
}

// FetchCatalog parses the story page for metadata, then pulls the complete
// chapter list from the ajax-chapter-option endpoint.
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
		Title:       strings.TrimSpace(doc.Find("h3.title").First().Text()),
		Author:      strings.TrimSpace(doc.Find(".info a[href*='/author/']").First().Text()),
		Description: strings.TrimSpace(doc.Find(".desc-text").First().Text()),
		Language:    "en",
	}
	if cover := a.coverURL(doc); cover != "" {
		catalog.CoverURL = cover
	}
	if catalog.Title == "" {
		return source.Catalog{}, source.NewError(
			source.KindContent, "parse catalog", pageURL,
			errors.New("page has no story title"),
		)
	}

	novelID := extractNovelID(doc)
	if novelID == "" {
		return source.Catalog{}, source.NewError(
			source.KindContent, "parse catalog", pageURL,
			errors.New("novel id not found on story page"),
		)
	}

	listURL := fmt.Sprintf("%s/ajax-chapter-option?novelId=%s", a.base, novelID)
	listBody, err := a.client.Get(ctx, listURL)
	if err != nil {
		return source.Catalog{}, err
	}
	listDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(listBody))
	if err != nil {
		return source.Catalog{}, source.NewError(source.KindMalformed, "parse chapter list", listURL, err)
	}

	listDoc.Find("option[value]").Each(func(_ int, opt *goquery.Selection) {
		href, _ := opt.Attr("value")
		if href == "" {
			return
		}
		title := strings.TrimSpace(opt.Text())
		if title == "" {
			title = fmt.Sprintf("Chapter %d", len(catalog.Chapters)+1)
		}
		catalog.Chapters = append(catalog.Chapters, source.ChapterRef{
			Index:   len(catalog.Chapters),
			Locator: a.absolute(href),
			Title:   title,
		})
	})
	if len(catalog.Chapters) == 0 {
		return source.Catalog{}, source.NewError(
			source.KindContent, "parse chapter list", listURL,
			errors.New("chapter list is empty"),
		)
	}
	return catalog, nil
}

// FetchChapter returns the chapter body from #chapter-content with the ad
// blocks NovelFull nests inside it stripped out.
func (a *Adapter) FetchChapter(ctx context.Context, ref source.ChapterRef) (source.ChapterContent, error) {
	body, err := a.client.Get(ctx, ref.Locator)
	if err != nil {
		return source.ChapterContent{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return source.ChapterContent{}, source.NewError(source.KindMalformed, "parse chapter", ref.Locator, err)
	}

	content := doc.Find("#chapter-content")
	if content.Length() == 0 {
		return source.ChapterContent{}, source.NewError(
			source.KindContent, "parse chapter", ref.Locator,
			errors.New("chapter content block not found"),
		)
	}
	content = content.First()
	content.Find("div").Remove()

	html, err := goquery.OuterHtml(content)
	if err != nil {
		return source.ChapterContent{}, source.NewError(source.KindMalformed, "render chapter", ref.Locator, err)
	}
	return source.ChapterContent{Body: []byte(html)}, nil
}

func (a *Adapter) normalize(identifier string) string {
	if m := storyURL.FindString(identifier); m != "" {
		return m
	}
	if m := chapterURL.FindStringSubmatch(identifier); m != nil {
		return m[1] + m[2] + ".html"
	}
	return identifier
}

func (a *Adapter) coverURL(doc *goquery.Document) string {
	img := doc.Find(".book img").First()
	cover, ok := img.Attr("data-src")
	if !ok || cover == "" {
		cover, _ = img.Attr("src")
	}
	if cover == "" {
		return ""
	}
	return a.absolute(cover)
}

func (a *Adapter) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return a.base + href
}

// extractNovelID tries, in order: a data-novel-id attribute, inline script
// text, and links carrying a novelId query parameter.
func extractNovelID(doc *goquery.Document) string {
	if id, ok := doc.Find("[data-novel-id]").First().Attr("data-novel-id"); ok && id != "" {
		return id
	}

	var id string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := novelIDRe.FindStringSubmatch(s.Text()); m != nil {
			id = m[1]
			return false
		}
		return true
	})
	if id != "" {
		return id
	}

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if m := novelIDArg.FindStringSubmatch(href); m != nil {
			id = m[1]
			return false
		}
		return true
	})
	return id
}
