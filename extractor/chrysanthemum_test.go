package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serial2epub/fetcher"
	"serial2epub/model"
)

const lockedChapter = `<form id="password-lock">
	<input id="nonce-site-pass" value="n0nce">
	<input name="_wp_http_referer" value="/novel-tl/abc/1/">
</form>`

const unlockedChapter = `<h2 class="chapter-title">Chapter 1</h2>
<div id="novel-content">
	<p>plain <span class="jum">Tjc</span></p>
	<p style="height:1px">hidden</p>
</div>
<div class="tooltip-container">a note</div>`

func TestDejumble(t *testing.T) {
	assert.Equal(t, "abc xyz ABC, 1!", Dejumble("jym zsh CDJ, 1!"))
	assert.Equal(t, "", Dejumble(""))
}

func TestChrysanthemum_UnlocksWithPassword(t *testing.T) {
	url := "https://chrysanthemumgarden.com/novel-tl/abc/1/"
	f := newStubFetcher(map[string]string{url: lockedChapter})
	var posted fetcher.Options
	f.onPost = func(_ string, opts fetcher.Options) string {
		posted = opts
		return unlockedChapter
	}

	c := NewChrysanthemum(ChrysanthemumOptions{Password: "hunter2"})
	content, err := c.FetchChapter(context.Background(), f, model.ChapterRef{SourceUrl: url})
	require.NoError(t, err)

	assert.True(t, posted.Credentials)
	assert.Equal(t, "hunter2", posted.Form.Get("site-pass"))
	assert.Equal(t, "n0nce", posted.Form.Get("nonce-site-pass"))
	assert.Equal(t, "/novel-tl/abc/1/", posted.Form.Get("_wp_http_referer"))

	assert.Equal(t, "Chapter 1", content.Title)
	assert.Contains(t, content.Html, "Yan")
	assert.NotContains(t, content.Html, "jum")
	assert.NotContains(t, content.Html, "hidden")
	assert.Contains(t, content.Html, "a note")
}

func TestChrysanthemum_RemoveAuthorNotes(t *testing.T) {
	p := page(t, "https://chrysanthemumgarden.com/novel-tl/abc/1/", unlockedChapter)
	c := NewChrysanthemum(ChrysanthemumOptions{RemoveAuthorNotes: true})
	content, err := c.ExtractChapter(p, model.ChapterRef{SourceUrl: p.Url})
	require.NoError(t, err)
	assert.NotContains(t, content.Html, "a note")
}

func TestChrysanthemum_LockedWithoutPassword(t *testing.T) {
	url := "https://chrysanthemumgarden.com/novel-tl/abc/1/"
	f := newStubFetcher(map[string]string{url: lockedChapter})

	_, err := NewChrysanthemum(ChrysanthemumOptions{}).FetchChapter(context.Background(), f, model.ChapterRef{SourceUrl: url})
	assert.ErrorIs(t, err, model.ErrExtraction)
	assert.Len(t, f.Requests(), 1)
}
