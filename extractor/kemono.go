package extractor

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serial2epub/fetcher"
	"serial2epub/model"
)

// kemonoAccept is the Accept value the kemono api answers with json for.
const kemonoAccept = "text/css"

const kemonoPageSize = 50

// Kemono reads creator pages of kemono mirrors through their json api. Post lists are paged
// newest first; the chapter list is returned oldest first.
type Kemono struct {
	Base
	skipImage bool
}

func NewKemono(skipImages bool) *Kemono {
	return &Kemono{skipImage: skipImages}
}

func (k *Kemono) Name() string { return "kemono" }

func (k *Kemono) Matches(raw string, doc *goquery.Document) bool {
	u := pageUrl(raw, doc)
	if u == nil {
		return false
	}
	label, _, _ := strings.Cut(u.Hostname(), ".")
	return label == "kemono"
}

type kemonoPost struct {
	Id      string `json:"id"`
	User    string `json:"user"`
	Service string `json:"service"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type kemonoPostResponse struct {
	Post     kemonoPost `json:"post"`
	Previews []struct {
		Type   string `json:"type"`
		Server string `json:"server"`
		Path   string `json:"path"`
	} `json:"previews"`
}

type kemonoProfile struct {
	PostCount int `json:"post_count"`
}

func (k *Kemono) ChapterList(ctx context.Context, f fetcher.Fetcher, page *Page) ([]model.ChapterLink, error) {
	start, err := url.Parse(page.Url)
	if err != nil {
		return nil, model.DiscoveryError(page.Url, err)
	}
	tocPages, err := k.tocPageUrls(ctx, f, start, page.Doc)
	if err != nil {
		return nil, model.DiscoveryError(page.Url, err)
	}

	base := *start
	q := base.Query()
	q.Del("tag")
	base.RawQuery = q.Encode()

	var links []model.ChapterLink
	for _, tocUrl := range tocPages {
		var rows []kemonoPost
		if err := fetcher.FetchJSON(ctx, f, tocUrl, fetcher.Options{Accept: kemonoAccept}, &rows); err != nil {
			return nil, model.DiscoveryError(tocUrl, err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			u := base
			u.Path = fmt.Sprintf("/%s/user/%s/post/%s", row.Service, row.User, row.Id)
			links = append(links, model.ChapterLink{Url: u.String(), Title: row.Title})
		}
	}
	slices.Reverse(links)
	return links, nil
}

// tocPageUrls builds the api urls of every post list page, taking the last page from the
// paginator or, when the page has none, from the creator profile.
func (k *Kemono) tocPageUrls(ctx context.Context, f fetcher.Fetcher, start *url.URL, doc *goquery.Document) ([]string, error) {
	api := *start
	api.RawQuery = ""
	api.Fragment = ""
	api.Path = "/api/v1" + strings.TrimSuffix(start.Path, "/") + "/posts"

	lastOffset, ok := lastPageOffset(doc)
	if !ok {
		profile := api
		profile.Path = strings.TrimSuffix(api.Path, "/posts") + "/profile"
		var p kemonoProfile
		if err := fetcher.FetchJSON(ctx, f, profile.String(), fetcher.Options{Accept: kemonoAccept}, &p); err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}
		lastOffset = p.PostCount
	}

	q := start.Query()
	var urls []string
	for offset := 0; offset <= lastOffset; offset += kemonoPageSize {
		q.Set("o", strconv.Itoa(offset))
		api.RawQuery = q.Encode()
		urls = append(urls, api.String())
	}
	return urls, nil
}

func lastPageOffset(doc *goquery.Document) (int, bool) {
	if doc == nil {
		return 0, false
	}
	links := doc.Find("#paginator-top a")
	if links.Length() == 0 {
		return 0, false
	}
	href := links.Last().AttrOr("href", "")
	u, err := url.Parse(href)
	if err != nil {
		return 0, false
	}
	o := u.Query().Get("o")
	if o == "" {
		return 0, true
	}
	n, err := strconv.Atoi(o)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (k *Kemono) FetchChapter(ctx context.Context, f fetcher.Fetcher, ref model.ChapterRef) (*model.ChapterContent, error) {
	u, err := url.Parse(ref.SourceUrl)
	if err != nil {
		return nil, model.ExtractionError(ref.SourceUrl, err)
	}
	api := *u
	api.Path = "/api/v1" + u.Path
	api.RawQuery = ""

	var resp kemonoPostResponse
	if err := fetcher.FetchJSON(ctx, f, api.String(), fetcher.Options{Accept: kemonoAccept}, &resp); err != nil {
		return nil, err
	}
	return k.buildChapter(resp, ref, u)
}

func (k *Kemono) buildChapter(resp kemonoPostResponse, ref model.ChapterRef, base *url.URL) (*model.ChapterContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + resp.Post.Content + "</div>"))
	if err != nil {
		return nil, model.ExtractionError(ref.SourceUrl, err)
	}
	body := doc.Find("body > div").First()

	var thumbs []string
	for _, p := range resp.Previews {
		if p.Type == "thumbnail" {
			thumbs = append(thumbs, strings.TrimSuffix(p.Server, "/")+"/data"+p.Path)
		}
	}
	if len(thumbs) > 0 && !k.skipImage {
		body.AppendHtml("<h2>Files</h2>")
		for _, src := range thumbs {
			body.AppendHtml(fmt.Sprintf(`<img src="%s" alt=""/>`, html.EscapeString(src)))
		}
	}

	title := resp.Post.Title
	if title == "" {
		title = ref.Title
	}
	return NewContent(ref, title, body, base, ContentOptions{SkipImages: k.skipImage})
}

// ExtractChapter reads a rendered post page.
func (k *Kemono) ExtractChapter(page *Page, ref model.ChapterRef) (*model.ChapterContent, error) {
	doc := page.Doc
	body := doc.Find(".post__content").First()
	if body.Length() == 0 {
		return nil, model.ExtractionError(ref.SourceUrl, fmt.Errorf("post content not found"))
	}
	body = body.Clone()
	doc.Find("div.post__files div.post__thumbnail figure a img").Each(func(_ int, s *goquery.Selection) {
		body.AppendSelection(s.Clone())
	})
	title := strings.TrimSpace(doc.Find(".post__title").First().Text())
	return NewContent(ref, title, body, doc.Url, ContentOptions{SkipImages: k.skipImage})
}

func (k *Kemono) CoverImageUrl(page *Page) string {
	if src := page.Doc.Find(".user-header__avatar img").First().AttrOr("src", ""); src != "" {
		return absolute(page.Doc.Url, src)
	}
	return k.Base.CoverImageUrl(page)
}

func (k *Kemono) MetaInfo(page *Page) model.BookMetaInfo {
	meta := k.Base.MetaInfo(page)
	if name := strings.TrimSpace(page.Doc.Find(".user-header__profile span[itemprop='name']").First().Text()); name != "" {
		meta.Author = name
		meta.Title = name
	}
	return meta
}

func pageUrl(raw string, doc *goquery.Document) *url.URL {
	if doc != nil && doc.Url != nil {
		return doc.Url
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}
