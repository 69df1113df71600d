package epub

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"serial2epub/model"
	"serial2epub/template"
	"serial2epub/utils"
)

const (
	opfDir        = "OEBPS"
	styleSheetId  = "stylesheet"
	styleHref     = "Styles/stylesheet.css"
	ncxId         = "ncx"
	ncxHref       = "toc.ncx"
	navId         = "nav"
	navHref       = "Text/nav.xhtml"
	coverImageId  = "cover-image"
	coverPageId   = "cover"
	coverPageHref = "Text/cover.xhtml"

	mediaXHTML = "application/xhtml+xml"
	mediaCSS   = "text/css"
	mediaNCX   = "application/x-dtbncx+xml"
)

// resource is one manifest item together with the bytes stored under it.
type resource struct {
	item model.ManifestItem
	data []byte
}

// refs counts how each manifest item is reached. Every item other than the navigation
// documents must be reached by exactly one of these.
type refs struct {
	spine map[string]int
	image map[string]int
	link  map[string]int
}

type builder struct {
	version  Version
	meta     model.BookMetaInfo
	modified time.Time

	resources    []resource
	spine        []string
	images       map[string]model.ManifestItem
	imageCount   int
	navMap       model.NavMap
	chapterHrefs []string
	refs         refs
	hasCover     bool
	hasNav       bool
}

func newBuilder(version Version, meta model.BookMetaInfo, modified time.Time) *builder {
	return &builder{
		version:  version,
		meta:     meta,
		modified: modified,
		images:   make(map[string]model.ManifestItem),
		refs: refs{
			spine: make(map[string]int),
			image: make(map[string]int),
			link:  make(map[string]int),
		},
	}
}

func (b *builder) add(item model.ManifestItem, data []byte) {
	b.resources = append(b.resources, resource{item: item, data: data})
}

func (b *builder) addStyleSheet(css string) {
	b.add(model.ManifestItem{ID: styleSheetId, Link: styleHref, Media: mediaCSS}, []byte(css))
}

// page renders a document under Text/ that links the stylesheet.
func (b *builder) page(p template.Page) ([]byte, error) {
	p.Version = int(b.version)
	p.Lang = b.meta.Language
	p.StyleHref = "../" + styleHref
	b.refs.link[styleSheetId]++
	return render(template.ContentXHTML(p))
}

func (b *builder) addCover(img *model.ImageData) error {
	media := imageMediaType(img)
	item := model.ManifestItem{
		ID:    coverImageId,
		Link:  "Images/cover" + imageExtension(media, img.Url),
		Media: media,
	}
	if b.version == Version3 {
		item.Properties = "cover-image"
	}
	b.add(item, img.Data)
	if img.Url != "" {
		b.images[img.Url] = item
	}

	data, err := render(template.CoverXHTML(int(b.version), b.meta.Language, b.meta.Title, "../"+item.Link, "../"+styleHref))
	if err != nil {
		return model.AssemblyErrorf("failed to render cover page: %v", err)
	}
	b.refs.link[styleSheetId]++
	b.refs.image[coverImageId]++
	b.add(model.ManifestItem{ID: coverPageId, Link: coverPageHref, Media: mediaXHTML}, data)
	b.spine = append(b.spine, coverPageId)
	b.refs.spine[coverPageId]++
	b.hasCover = true
	return nil
}

// addChapter writes one chapter document. Each <img> is pointed at the packaged copy of its
// source url, images without data are dropped from the text.
func (b *builder) addChapter(c *model.ChapterContent, images map[string]*model.ImageData) error {
	n := len(b.chapterHrefs) + 1
	id := fmt.Sprintf("chapter-%04d", n)
	href := fmt.Sprintf("Text/%04d_%s.xhtml", n, fileSlug(c.Title, "chapter"))

	root, err := parseBody(c.Html)
	if err != nil {
		return model.AssemblyErrorf("failed to parse chapter %q: %v", c.Title, err)
	}
	root.Find("img").Each(func(_ int, s *goquery.Selection) {
		item, ok := b.image(s.AttrOr("src", ""), images)
		if !ok {
			s.Remove()
			return
		}
		s.SetAttr("src", "../"+item.Link)
		if _, ok := s.Attr("alt"); !ok {
			s.SetAttr("alt", "")
		}
		b.refs.image[item.ID]++
	})
	body, err := root.Html()
	if err != nil {
		return model.AssemblyErrorf("failed to render chapter %q: %v", c.Title, err)
	}

	data, err := b.page(template.Page{Title: c.Title, Heading: c.Title, Body: body, BodyType: "bodymatter"})
	if err != nil {
		return model.AssemblyErrorf("failed to render chapter %q: %v", c.Title, err)
	}
	b.add(model.ManifestItem{ID: id, Link: href, Media: mediaXHTML}, data)
	b.spine = append(b.spine, id)
	b.refs.spine[id]++
	b.chapterHrefs = append(b.chapterHrefs, href)

	point := &model.NavPoint{Label: c.Title, Content: model.NavPointContent{Src: href}}
	for _, h := range c.Headings {
		if h.Id == "" || h.Title == "" {
			continue
		}
		point.NavPoints = append(point.NavPoints, &model.NavPoint{
			Label:   h.Title,
			Content: model.NavPointContent{Src: href + "#" + h.Id},
		})
	}
	b.navMap.Points = append(b.navMap.Points, point)
	return nil
}

// image returns the manifest item for url, adding it on first use. It reports false when no
// data was fetched for url.
func (b *builder) image(url string, images map[string]*model.ImageData) (model.ManifestItem, bool) {
	if url == "" {
		return model.ManifestItem{}, false
	}
	if item, ok := b.images[url]; ok {
		return item, true
	}
	img := images[url]
	if img == nil || len(img.Data) == 0 {
		return model.ManifestItem{}, false
	}
	b.imageCount++
	n := b.imageCount
	media := imageMediaType(img)
	base := path.Base(strings.SplitN(url, "?", 2)[0])
	item := model.ManifestItem{
		ID:    fmt.Sprintf("image-%04d", n),
		Link:  fmt.Sprintf("Images/%04d_%s%s", n, fileSlug(strings.TrimSuffix(base, path.Ext(base)), "image"), imageExtension(media, base)),
		Media: media,
	}
	b.add(item, img.Data)
	b.images[url] = item
	return item, true
}

func parseBody(s string) (*goquery.Selection, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), context)
	if err != nil {
		return nil, err
	}
	wrapper := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		wrapper.AppendChild(n)
	}
	utils.StripComments(wrapper)
	return goquery.NewDocumentFromNode(wrapper).Selection, nil
}

// fileSlug keeps only ascii slug characters so package paths need no escaping.
func fileSlug(s, fallback string) string {
	slug := strings.Map(func(r rune) rune {
		if r > 127 {
			return -1
		}
		return r
	}, utils.Slugify(s, 40))
	slug = strings.Trim(strings.ReplaceAll(slug, "--", "-"), "-")
	if slug == "" {
		return fallback
	}
	return slug
}
