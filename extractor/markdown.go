package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"serial2epub/fetcher"
	"serial2epub/model"
)

const acceptMarkdown = "text/markdown,text/plain;q=0.9,*/*;q=0.5"

// Markdown handles stories published as raw markdown files: the start page is an index whose
// links are the chapters, each chapter is rendered to xhtml. Level two headings become nested
// table of contents entries.
type Markdown struct {
	Base
	md        goldmark.Markdown
	skipImage bool
}

func NewMarkdown(skipImages bool) *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithXHTML()),
		),
		skipImage: skipImages,
	}
}

func (m *Markdown) Name() string { return "markdown" }

func (m *Markdown) Matches(raw string, doc *goquery.Document) bool {
	u := pageUrl(raw, doc)
	if u == nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// render converts markdown source to a document whose body holds the rendered html.
func (m *Markdown) render(src []byte, base *url.URL) (*goquery.Document, error) {
	var buf bytes.Buffer
	if err := m.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered markdown: %w", err)
	}
	doc.Url = base
	return doc, nil
}

func (m *Markdown) ChapterList(_ context.Context, _ fetcher.Fetcher, page *Page) ([]model.ChapterLink, error) {
	doc, err := m.render(page.Raw, page.Doc.Url)
	if err != nil {
		return nil, model.DiscoveryError(page.Url, err)
	}
	links := Links(doc.Find("a[href]"), doc.Url)
	if len(links) == 0 {
		return nil, model.DiscoveryError(page.Url, fmt.Errorf("index has no links"))
	}
	return links, nil
}

func (m *Markdown) FetchChapter(ctx context.Context, f fetcher.Fetcher, ref model.ChapterRef) (*model.ChapterContent, error) {
	page, err := FetchPage(ctx, f, ref.SourceUrl, fetcher.Options{Accept: acceptMarkdown})
	if err != nil {
		return nil, err
	}
	return m.ExtractChapter(page, ref)
}

func (m *Markdown) ExtractChapter(page *Page, ref model.ChapterRef) (*model.ChapterContent, error) {
	doc, err := m.render(page.Raw, page.Doc.Url)
	if err != nil {
		return nil, model.ExtractionError(ref.SourceUrl, err)
	}
	body := doc.Find("body")
	title := ""
	if h1 := body.Find("h1").First(); h1.Length() > 0 {
		title = h1.Text()
		h1.Remove()
	}
	return NewContent(ref, title, body, doc.Url, ContentOptions{
		Headings:   "h2",
		SkipImages: m.skipImage,
	})
}

func (m *Markdown) MetaInfo(page *Page) model.BookMetaInfo {
	var meta model.BookMetaInfo
	doc, err := m.render(page.Raw, page.Doc.Url)
	if err != nil {
		return meta
	}
	meta.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	return meta
}

func (m *Markdown) CoverImageUrl(page *Page) string {
	doc, err := m.render(page.Raw, page.Doc.Url)
	if err != nil {
		return ""
	}
	if src := doc.Find("img[src]").First().AttrOr("src", ""); src != "" {
		return absolute(doc.Url, src)
	}
	return ""
}
