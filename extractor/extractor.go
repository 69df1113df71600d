// Package extractor turns fetched site pages into chapter lists and normalized chapter content.
package extractor

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serial2epub/fetcher"
	"serial2epub/model"
	"serial2epub/utils"
)

// Page is a fetched and parsed page. Raw holds the undecoded body.
type Page struct {
	Url string
	Doc *goquery.Document
	Raw []byte
}

// Extractor is the per-site strategy. Implementations hold no per-run state and may be shared.
type Extractor interface {
	Name() string
	Matches(url string, doc *goquery.Document) bool
	// ChapterList returns chapter links in reading order. f may be used for sites that page
	// their table of contents.
	ChapterList(ctx context.Context, f fetcher.Fetcher, page *Page) ([]model.ChapterLink, error)
	// FetchChapter applies the site's fetch rule for one chapter and extracts its content.
	FetchChapter(ctx context.Context, f fetcher.Fetcher, ref model.ChapterRef) (*model.ChapterContent, error)
	ExtractChapter(page *Page, ref model.ChapterRef) (*model.ChapterContent, error)
	// CoverImageUrl returns an absolute url or "".
	CoverImageUrl(page *Page) string
	// MetaInfo fills whatever the page says about the book; empty fields are unknown.
	MetaInfo(page *Page) model.BookMetaInfo
}

// FetchPage fetches url and parses it as html.
func FetchPage(ctx context.Context, f fetcher.Fetcher, url string, opts fetcher.Options) (*Page, error) {
	resp, err := f.Fetch(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, model.ExtractionError(url, err)
	}
	return &Page{Url: resp.Url, Doc: doc, Raw: resp.Body}, nil
}

// Base supplies metadata and cover lookups from common <meta> tags.
type Base struct{}

func (Base) CoverImageUrl(page *Page) string {
	for _, sel := range []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`} {
		if v, ok := page.Doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return absolute(page.Doc.Url, v)
		}
	}
	return ""
}

func (Base) MetaInfo(page *Page) model.BookMetaInfo {
	doc := page.Doc
	meta := model.BookMetaInfo{
		Title:       metaContent(doc, `meta[property="og:title"]`),
		Author:      metaContent(doc, `meta[name="author"]`),
		Description: metaContent(doc, `meta[property="og:description"]`, `meta[name="description"]`),
		Language:    strings.TrimSpace(doc.Find("html").AttrOr("lang", "")),
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return meta
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

func absolute(base *url.URL, ref string) string {
	if base == nil {
		return strings.TrimSpace(ref)
	}
	return utils.ResolveUrl(base, ref)
}

// Links collects chapter links from sel in document order, skipping duplicates and
// non-navigable hrefs.
func Links(sel *goquery.Selection, base *url.URL) []model.ChapterLink {
	seen := make(map[string]bool)
	var links []model.ChapterLink
	sel.Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		u := absolute(base, href)
		key := utils.CanonicalUrl(u)
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, model.ChapterLink{Url: u, Title: strings.Join(strings.Fields(s.Text()), " ")})
	})
	return links
}
