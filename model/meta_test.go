package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMeta() BookMetaInfo {
	m := NewBookMetaInfo()
	m.Title = "The Garden"
	m.FileName = "The Garden.epub"
	return m
}

func TestNewBookMetaInfo(t *testing.T) {
	m := NewBookMetaInfo()
	assert.True(t, m.IdentifierIsUuid())
	assert.Equal(t, DefaultAuthor, m.Author)
	assert.Equal(t, "en", m.Language)
	assert.NotEqual(t, m.Uuid, NewBookMetaInfo().Uuid)
}

func TestBookMetaInfo_Validate(t *testing.T) {
	require.NoError(t, validMeta().Validate())

	m := validMeta()
	m.Title = ""
	m.Author = ""
	m.SeriesIndex = "two"
	m.Language = "not a tag!"

	err := m.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssembly))

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, map[string]string{
		"title":       "is required",
		"author":      "is required",
		"seriesIndex": "must be a number",
		"language":    "must be a language tag such as en or zh-CN",
	}, perr.Details)
}

func TestBookMetaInfo_OptionalFields(t *testing.T) {
	m := validMeta()
	m.SeriesIndex = "3"
	m.Language = "zh-CN"
	assert.NoError(t, m.Validate())

	assert.False(t, m.HasSeries())
	m.SeriesName = "Gardens"
	assert.True(t, m.HasSeries())

	m.Uuid = "https://example.com/story"
	assert.False(t, m.IdentifierIsUuid())

	m.Subject = "Fantasy"
	m.Description = "About a garden."
	stripped := m.WithoutAdditionalMetadata()
	assert.Empty(t, stripped.Subject)
	assert.Empty(t, stripped.Description)
	assert.Equal(t, "Fantasy", m.Subject)
}

func TestChapterContent_AddImage(t *testing.T) {
	c := &ChapterContent{}
	c.AddImage("https://example.com/a.png")
	c.AddImage("https://example.com/b.png")
	c.AddImage("https://example.com/a.png")
	assert.Equal(t, []string{"https://example.com/a.png", "https://example.com/b.png"}, c.Images)
}

func TestChapterRefs(t *testing.T) {
	refs := ChapterRefs([]ChapterLink{{Url: "u1", Title: "One"}, {Url: "u2", Title: "Two"}})
	require.Len(t, refs, 2)
	assert.Equal(t, ChapterRef{SourceUrl: "u2", Title: "Two", Order: 1, IsIncludeable: true}, *refs[1])
}
