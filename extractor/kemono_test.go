package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serial2epub/model"
)

func TestKemono_ChapterListFromPaginator(t *testing.T) {
	f := newStubFetcher(map[string]string{
		"https://kemono.su/api/v1/patreon/user/42/posts?o=0": `[
			{"id":"3","user":"42","service":"patreon","title":"Third"},
			{"id":"2","user":"42","service":"patreon","title":"Second"}]`,
		"https://kemono.su/api/v1/patreon/user/42/posts?o=50": `[
			{"id":"1","user":"42","service":"patreon","title":"First"}]`,
	})
	p := page(t, "https://kemono.su/patreon/user/42", `<div id="paginator-top">
		<a href="?o=0">1</a><a href="?o=50">2</a></div>`)

	k := NewKemono(false)
	require.True(t, k.Matches(p.Url, p.Doc))

	links, err := k.ChapterList(context.Background(), f, p)
	require.NoError(t, err)
	assert.Equal(t, []model.ChapterLink{
		{Url: "https://kemono.su/patreon/user/42/post/1", Title: "First"},
		{Url: "https://kemono.su/patreon/user/42/post/2", Title: "Second"},
		{Url: "https://kemono.su/patreon/user/42/post/3", Title: "Third"},
	}, links)

	for _, r := range f.Requests() {
		assert.Equal(t, "text/css", r.Opts.Accept)
	}
}

func TestKemono_ChapterListFromProfile(t *testing.T) {
	f := newStubFetcher(map[string]string{
		"https://kemono.su/api/v1/fanbox/user/7/profile":    `{"post_count": 60}`,
		"https://kemono.su/api/v1/fanbox/user/7/posts?o=0":  `[{"id":"9","user":"7","service":"fanbox","title":"Nine"}]`,
		"https://kemono.su/api/v1/fanbox/user/7/posts?o=50": `[]`,
	})
	p := page(t, "https://kemono.su/fanbox/user/7", `<div>no paginator</div>`)

	links, err := NewKemono(false).ChapterList(context.Background(), f, p)
	require.NoError(t, err)
	assert.Equal(t, []model.ChapterLink{{Url: "https://kemono.su/fanbox/user/7/post/9", Title: "Nine"}}, links)
}

func TestKemono_FetchChapter(t *testing.T) {
	f := newStubFetcher(map[string]string{
		"https://kemono.su/api/v1/patreon/user/42/post/1": `{
			"post": {"id":"1","title":"First","content":"<p>Body <img src=\"/inline.png\"></p>"},
			"previews": [
				{"type":"thumbnail","server":"https://n1.kemono.su","path":"/ab/cd.jpg"},
				{"type":"embed","server":"https://x","path":"/y"}
			]}`,
	})
	ref := model.ChapterRef{SourceUrl: "https://kemono.su/patreon/user/42/post/1", Title: "ref"}

	c, err := NewKemono(false).FetchChapter(context.Background(), f, ref)
	require.NoError(t, err)
	assert.Equal(t, "First", c.Title)
	assert.Contains(t, c.Html, "Body")
	assert.Contains(t, c.Html, "<h2>Files</h2>")
	assert.Equal(t, []string{"https://kemono.su/inline.png", "https://n1.kemono.su/data/ab/cd.jpg"}, c.Images)
}

func TestKemono_DoesNotMatchOtherHosts(t *testing.T) {
	assert.False(t, NewKemono(false).Matches("https://notkemono.su/x", nil))
	assert.False(t, NewKemono(false).Matches("https://example.com/kemono", nil))
}
