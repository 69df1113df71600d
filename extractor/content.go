package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"serial2epub/model"
	"serial2epub/utils"
)

var unwantedElements = "script, style, noscript, iframe, form, button, input, select, textarea, object, embed"

// imgSourceAttrs are checked in order; lazy loaders keep the real url in data-*.
var imgSourceAttrs = []string{"data-src", "data-lazy-src", "data-original", "src"}

// ContentOptions control how a content node is normalized.
type ContentOptions struct {
	// Remove lists selectors dropped from the content.
	Remove []string
	// Headings selects sub-headings listed in the table of contents under the chapter.
	Headings string
	// HeadingOffset is the number of headings already listed for the chapter, so generated
	// ids stay unique when a chapter spans several pages.
	HeadingOffset int
	SkipImages    bool
}

// NewContent normalizes the content node sel into a ChapterContent. The node is cloned first so
// the page is left untouched. Image and link urls are made absolute against base.
func NewContent(ref model.ChapterRef, title string, sel *goquery.Selection, base *url.URL, opts ContentOptions) (*model.ChapterContent, error) {
	if sel == nil || sel.Length() == 0 {
		return nil, model.ExtractionError(ref.SourceUrl, fmt.Errorf("content element not found"))
	}
	node := sel.First().Clone()

	for _, n := range node.Nodes {
		utils.StripComments(n)
	}
	node.Find(unwantedElements).Remove()
	for _, s := range opts.Remove {
		node.Find(s).Remove()
	}
	node.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"onclick", "onload", "onerror", "onmouseover"} {
			s.RemoveAttr(attr)
		}
	})

	content := &model.ChapterContent{
		Ref:   ref,
		Title: strings.TrimSpace(title),
	}
	if content.Title == "" {
		content.Title = ref.Title
	}

	node.Find("img").Each(func(_ int, s *goquery.Selection) {
		if opts.SkipImages {
			s.Remove()
			return
		}
		src := ""
		for _, attr := range imgSourceAttrs {
			if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
				src = v
				break
			}
		}
		if src == "" {
			s.Remove()
			return
		}
		src = absolute(base, src)
		for _, attr := range imgSourceAttrs {
			s.RemoveAttr(attr)
		}
		s.RemoveAttr("srcset")
		s.SetAttr("src", src)
		if _, ok := s.Attr("alt"); !ok {
			s.SetAttr("alt", "")
		}
		content.AddImage(src)
	})

	node.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if strings.HasPrefix(href, "#") {
			return
		}
		s.SetAttr("href", absolute(base, href))
	})

	if opts.Headings != "" {
		node.Find(opts.Headings).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if text == "" {
				return
			}
			id, ok := s.Attr("id")
			if !ok || id == "" {
				id = fmt.Sprintf("heading-%d", opts.HeadingOffset+len(content.Headings)+1)
				s.SetAttr("id", id)
			}
			content.Headings = append(content.Headings, model.Heading{Id: id, Title: text})
		})
	}

	html, err := node.Html()
	if err != nil {
		return nil, model.ExtractionError(ref.SourceUrl, fmt.Errorf("failed to render content: %w", err))
	}
	content.Html = strings.TrimSpace(html)
	return content, nil
}
