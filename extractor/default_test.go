package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serial2epub/model"
)

func TestDefault_ChapterListAndMeta(t *testing.T) {
	p := page(t, "https://example.com/story", `<html lang="en-GB"><head>
		<title>Fallback</title>
		<meta property="og:title" content="The Story">
		<meta name="author" content="A. Writer">
		<meta property="og:image" content="/cover.jpg">
	</head><body>
		<ul class="chapter-list">
			<li><a href="/story/1">One</a></li>
			<li><a href="/story/2">Two</a></li>
		</ul>
	</body></html>`)

	d := NewDefault(DefaultSelectors)
	require.True(t, d.Matches(p.Url, p.Doc))

	links, err := d.ChapterList(context.Background(), nil, p)
	require.NoError(t, err)
	assert.Equal(t, []model.ChapterLink{
		{Url: "https://example.com/story/1", Title: "One"},
		{Url: "https://example.com/story/2", Title: "Two"},
	}, links)

	meta := d.MetaInfo(p)
	assert.Equal(t, "The Story", meta.Title)
	assert.Equal(t, "A. Writer", meta.Author)
	assert.Equal(t, "en-GB", meta.Language)
	assert.Equal(t, "https://example.com/cover.jpg", d.CoverImageUrl(p))
}

func TestDefault_ChapterListEmpty(t *testing.T) {
	p := page(t, "https://example.com/story", `<p>none</p>`)
	_, err := NewDefault(DefaultSelectors).ChapterList(context.Background(), nil, p)
	assert.ErrorIs(t, err, model.ErrDiscovery)
}

func TestDefault_FetchChapterFollowsPages(t *testing.T) {
	f := newStubFetcher(map[string]string{
		"https://example.com/c/1": `<h1 class="chapter-title">Chapter 1</h1>
			<div class="chapter-content"><p>part one</p><img src="/a.png"></div>
			<a class="next" href="/c/1_2">next</a>`,
		"https://example.com/c/1_2": `<div class="chapter-content"><p>part two</p><img src="/a.png"><img src="/b.png"></div>
			<a class="next" href="/c/1">back to start</a>`,
	})
	sel := DefaultSelectors
	sel.NextPage = "a.next"
	d := NewDefault(sel)

	ref := model.ChapterRef{SourceUrl: "https://example.com/c/1", Title: "One", IsIncludeable: true}
	c, err := d.FetchChapter(context.Background(), f, ref)
	require.NoError(t, err)

	assert.Equal(t, "Chapter 1", c.Title)
	assert.Contains(t, c.Html, "part one")
	assert.Contains(t, c.Html, "part two")
	assert.Equal(t, []string{"https://example.com/a.png", "https://example.com/b.png"}, c.Images)
	assert.Len(t, f.Requests(), 2)
}

func TestDefault_FetchChapterNetworkError(t *testing.T) {
	f := newStubFetcher(map[string]string{})
	_, err := NewDefault(DefaultSelectors).FetchChapter(context.Background(), f, model.ChapterRef{SourceUrl: "https://example.com/404"})
	assert.ErrorIs(t, err, model.ErrNetwork)
}

func TestDefault_FetchChapterHeadingIdsAcrossPages(t *testing.T) {
	f := newStubFetcher(map[string]string{
		"https://example.com/c/1": `<div class="chapter-content"><h3>First</h3><p>a</p><h3>Second</h3></div>
			<a class="next" href="/c/1_2">next</a>`,
		"https://example.com/c/1_2": `<div class="chapter-content"><h3>Third</h3><p>b</p></div>`,
	})
	sel := DefaultSelectors
	sel.NextPage = "a.next"
	sel.Headings = "h3"
	d := NewDefault(sel)

	c, err := d.FetchChapter(context.Background(), f, model.ChapterRef{SourceUrl: "https://example.com/c/1", Title: "One"})
	require.NoError(t, err)

	assert.Equal(t, []model.Heading{
		{Id: "heading-1", Title: "First"},
		{Id: "heading-2", Title: "Second"},
		{Id: "heading-3", Title: "Third"},
	}, c.Headings)
	assert.Equal(t, 1, strings.Count(c.Html, `id="heading-1"`))
	assert.Contains(t, c.Html, `<h3 id="heading-3">Third</h3>`)
}
