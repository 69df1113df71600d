package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serial2epub/fetcher"
	"serial2epub/model"
)

const (
	jumbleAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	jumbleCipher   = "jymvfoutlpxiwcbqdgraenkzshCDJGSMXLPABOZRYUHEVKFNQWTI"
)

// Chrysanthemum handles chrysanthemumgarden.com: password locked chapters are unlocked with a
// form post, and text rendered in the site's substitution font is decoded.
type Chrysanthemum struct {
	Base
	password          string
	removeAuthorNotes bool
	skipImage         bool
}

type ChrysanthemumOptions struct {
	Password          string
	RemoveAuthorNotes bool
	SkipImages        bool
}

func NewChrysanthemum(opts ChrysanthemumOptions) *Chrysanthemum {
	return &Chrysanthemum{
		password:          opts.Password,
		removeAuthorNotes: opts.RemoveAuthorNotes,
		skipImage:         opts.SkipImages,
	}
}

func (c *Chrysanthemum) Name() string { return "chrysanthemum" }

func (c *Chrysanthemum) Matches(raw string, doc *goquery.Document) bool {
	u := pageUrl(raw, doc)
	return u != nil && strings.HasSuffix(strings.ToLower(u.Hostname()), "chrysanthemumgarden.com")
}

func (c *Chrysanthemum) ChapterList(_ context.Context, _ fetcher.Fetcher, page *Page) ([]model.ChapterLink, error) {
	links := Links(page.Doc.Find(".chapter-item a"), page.Doc.Url)
	if len(links) == 0 {
		return nil, model.DiscoveryError(page.Url, fmt.Errorf("no chapter links found"))
	}
	return links, nil
}

func (c *Chrysanthemum) FetchChapter(ctx context.Context, f fetcher.Fetcher, ref model.ChapterRef) (*model.ChapterContent, error) {
	page, err := FetchPage(ctx, f, ref.SourceUrl, fetcher.Options{Credentials: true})
	if err != nil {
		return nil, err
	}
	if form := page.Doc.Find("form#password-lock"); form.Length() > 0 {
		if c.password == "" {
			return nil, model.ExtractionError(ref.SourceUrl, fmt.Errorf("chapter is password protected and no password is set"))
		}
		page, err = FetchPage(ctx, f, ref.SourceUrl, fetcher.Options{
			Form:        c.passwordForm(form),
			Credentials: true,
			Referer:     ref.SourceUrl,
		})
		if err != nil {
			return nil, err
		}
		if page.Doc.Find("form#password-lock").Length() > 0 {
			return nil, model.ExtractionError(ref.SourceUrl, fmt.Errorf("password was rejected"))
		}
	}
	return c.ExtractChapter(page, ref)
}

func (c *Chrysanthemum) passwordForm(form *goquery.Selection) url.Values {
	return url.Values{
		"site-pass":        {c.password},
		"nonce-site-pass":  {form.Find("input#nonce-site-pass").AttrOr("value", "")},
		"_wp_http_referer": {form.Find("input[name='_wp_http_referer']").AttrOr("value", "")},
	}
}

func (c *Chrysanthemum) ExtractChapter(page *Page, ref model.ChapterRef) (*model.ChapterContent, error) {
	doc := page.Doc
	node := doc.Find("#novel-content, div.entry-content").First()
	if node.Length() == 0 {
		return nil, model.ExtractionError(ref.SourceUrl, fmt.Errorf("chapter content not found"))
	}
	node = node.Clone()

	if !c.removeAuthorNotes {
		doc.Find("div.tooltip-container").Each(func(_ int, s *goquery.Selection) {
			node.AppendSelection(s.Clone())
		})
	}
	node.Find(".jum").Each(func(_ int, s *goquery.Selection) {
		s.SetText(Dejumble(s.Text()))
		s.RemoveClass("jum")
	})
	node.Find("[style*='height:1px']").Remove()

	title := doc.Find("h2.chapter-title, h1.entry-title").First().Text()
	return NewContent(ref, title, node, doc.Url, ContentOptions{SkipImages: c.skipImage})
}

func (c *Chrysanthemum) MetaInfo(page *Page) model.BookMetaInfo {
	meta := c.Base.MetaInfo(page)
	if title := strings.TrimSpace(page.Doc.Find("h1.novel-title").First().Text()); title != "" {
		meta.Title = title
	}
	if desc := strings.TrimSpace(page.Doc.Find(".novel-entry-content").First().Text()); desc != "" {
		meta.Description = desc
	}
	return meta
}

// Dejumble reverses the site's letter substitution.
func Dejumble(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if i := strings.IndexRune(jumbleCipher, r); i >= 0 {
			b.WriteByte(jumbleAlphabet[i])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
