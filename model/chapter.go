package model

// ChapterRef identifies one chapter page discovered on the table of contents.
// Order is the spine position; it is assigned once at discovery and never changes.
type ChapterRef struct {
	SourceUrl     string `json:"sourceUrl"`
	Title         string `json:"title"`
	Order         int    `json:"order"`
	IsIncludeable bool   `json:"isIncludeable"`
}

// ChapterLink is what an extractor reports for each entry of a chapter list.
type ChapterLink struct {
	Url   string
	Title string
}

// Heading is a sub-heading inside a chapter that should appear nested in the table of contents.
type Heading struct {
	Id    string `json:"id"`
	Title string `json:"title"`
}

// ChapterContent is the normalized body of one chapter.
type ChapterContent struct {
	Ref      ChapterRef `json:"ref"`
	Title    string     `json:"title"`
	Html     string     `json:"html"`
	Images   []string   `json:"images"`
	Headings []Heading  `json:"headings,omitempty"`
}

// AddImage appends url to Images unless it is already present.
func (c *ChapterContent) AddImage(url string) {
	for _, u := range c.Images {
		if u == url {
			return
		}
	}
	c.Images = append(c.Images, url)
}

// ImageData holds the bytes of an image fetched from its original url.
type ImageData struct {
	Url       string
	MediaType string
	Data      []byte
}

// ChapterRefs builds refs in discovery order from extractor links, all selected.
func ChapterRefs(links []ChapterLink) []*ChapterRef {
	refs := make([]*ChapterRef, 0, len(links))
	for i, l := range links {
		refs = append(refs, &ChapterRef{
			SourceUrl:     l.Url,
			Title:         l.Title,
			Order:         i,
			IsIncludeable: true,
		})
	}
	return refs
}
