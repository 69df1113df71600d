package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestStripComments(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div><!-- a --><p>one<!-- b -- c --></p><!--d--><p>two</p></div>`))
	require.NoError(t, err)

	StripComments(doc)

	var b strings.Builder
	require.NoError(t, html.Render(&b, doc))
	out := b.String()
	assert.NotContains(t, out, "<!--")
	assert.Contains(t, out, "<div><p>one</p><p>two</p></div>")
}
