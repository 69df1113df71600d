package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serial2epub/fetcher"
	"serial2epub/model"
	"serial2epub/utils"
)

// Selectors configure the Default extractor. Each value is a CSS selector list.
type Selectors struct {
	ChapterList string
	Content     string
	Title       string
	Cover       string
	// NextPage selects the link to the next part of a chapter split over several pages.
	NextPage string
	Headings string
	Remove   []string
}

// DefaultSelectors cover common blog and reader layouts.
var DefaultSelectors = Selectors{
	ChapterList: ".chapter-list a, ul.chapters a, #chapters a, .toc a, .wp-block-list a",
	Content:     ".chapter-content, #chapter-content, .entry-content, #content, article",
	Title:       "h1.chapter-title, .entry-title, h1",
	Cover:       ".book-cover img, .cover img",
	Remove:      []string{".sharedaddy", ".google-auto-placed", ".adsbygoogle", "center"},
}

// maxChapterPages bounds NextPage following.
const maxChapterPages = 50

// Default extracts with CSS selectors. It matches any page where the chapter list or
// content selector finds something, so it belongs last in a registry.
type Default struct {
	Base
	name      string
	sel       Selectors
	skipImage bool
}

type DefaultOption func(*Default)

func WithoutImages() DefaultOption {
	return func(d *Default) { d.skipImage = true }
}

func NewDefault(sel Selectors, opts ...DefaultOption) *Default {
	d := &Default{name: "default", sel: sel}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Default) Name() string { return d.name }

func (d *Default) Matches(_ string, doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	return (d.sel.ChapterList != "" && doc.Find(d.sel.ChapterList).Length() > 0) ||
		(d.sel.Content != "" && doc.Find(d.sel.Content).Length() > 0)
}

func (d *Default) ChapterList(_ context.Context, _ fetcher.Fetcher, page *Page) ([]model.ChapterLink, error) {
	links := Links(page.Doc.Find(d.sel.ChapterList), page.Doc.Url)
	if len(links) == 0 {
		return nil, model.DiscoveryError(page.Url, fmt.Errorf("no links match %q", d.sel.ChapterList))
	}
	return links, nil
}

func (d *Default) FetchChapter(ctx context.Context, f fetcher.Fetcher, ref model.ChapterRef) (*model.ChapterContent, error) {
	page, err := FetchPage(ctx, f, ref.SourceUrl, fetcher.Options{})
	if err != nil {
		return nil, err
	}
	content, err := d.ExtractChapter(page, ref)
	if err != nil || d.sel.NextPage == "" {
		return content, err
	}

	seen := map[string]bool{utils.CanonicalUrl(page.Url): true}
	for range maxChapterPages - 1 {
		next := absolute(page.Doc.Url, page.Doc.Find(d.sel.NextPage).First().AttrOr("href", ""))
		if next == "" || seen[utils.CanonicalUrl(next)] {
			break
		}
		seen[utils.CanonicalUrl(next)] = true

		page, err = FetchPage(ctx, f, next, fetcher.Options{Referer: ref.SourceUrl})
		if err != nil {
			return nil, err
		}
		part, err := d.extract(page, ref, len(content.Headings))
		if err != nil {
			return nil, err
		}
		content.Html += "\n" + part.Html
		for _, img := range part.Images {
			content.AddImage(img)
		}
		content.Headings = append(content.Headings, part.Headings...)
	}
	return content, nil
}

func (d *Default) ExtractChapter(page *Page, ref model.ChapterRef) (*model.ChapterContent, error) {
	return d.extract(page, ref, 0)
}

func (d *Default) extract(page *Page, ref model.ChapterRef, headingOffset int) (*model.ChapterContent, error) {
	title := ""
	if d.sel.Title != "" {
		title = page.Doc.Find(d.sel.Title).First().Text()
	}
	node := page.Doc.Find(d.sel.Content).First()
	if node.Length() > 0 && d.sel.Title != "" {
		node = node.Clone()
		node.Find(d.sel.Title).First().Remove()
	}
	return NewContent(ref, title, node, page.Doc.Url, ContentOptions{
		Remove:     d.sel.Remove,
		Headings:      d.sel.Headings,
		HeadingOffset: headingOffset,
		SkipImages:    d.skipImage,
	})
}

func (d *Default) CoverImageUrl(page *Page) string {
	if d.sel.Cover != "" {
		if src := strings.TrimSpace(page.Doc.Find(d.sel.Cover).First().AttrOr("src", "")); src != "" {
			return absolute(page.Doc.Url, src)
		}
	}
	return d.Base.CoverImageUrl(page)
}
