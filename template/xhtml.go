// Package template renders the xml and xhtml documents that make up a package.
package template

//go:generate templ generate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"serial2epub/model"
)

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

const (
	doctypeXHTML11 = `<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN" "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd">` + "\n"
	doctypeHTML5   = "<!DOCTYPE html>\n"
	doctypeNCX     = `<!DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN" "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd">` + "\n"
)

// Page is one xhtml document of the package. Body must already be well formed xhtml.
type Page struct {
	Version   int
	Lang      string
	Title     string
	StyleHref string
	// Heading is written as <h1> above the body when non-empty.
	Heading string
	Body    string
	// BodyType is the epub:type of <body> in version 3 packages.
	BodyType string
}

// prolog is the xml declaration and doctype written ahead of <html>.
func prolog(version int) string {
	if version >= 3 {
		return xmlHeader + doctypeHTML5
	}
	return xmlHeader + doctypeXHTML11
}

// selfClosing writes an empty element as <name attr="v"/>. attrs alternate names and values.
// templ renders void elements in html form, which is not well formed xml.
func selfClosing(name string, attrs ...string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<" + name)
		for i := 0; i+1 < len(attrs); i += 2 {
			fmt.Fprintf(&b, ` %s="%s"`, attrs[i], templ.EscapeString(attrs[i+1]))
		}
		b.WriteString("/>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// navHref makes a point's href relative to the nav document. Hrefs are relative to the package
// root and the nav document lives in Text/.
func navHref(p *model.NavPoint) string {
	return strings.TrimPrefix(p.Content.Src, "Text/")
}

// ContentOPF renders the package document.
func ContentOPF(pkg *model.Package) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		body, err := pkg.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal package: %w", err)
		}
		_, err = io.WriteString(w, xmlHeader+body+"\n")
		return err
	})
}

// TocNCX renders the ncx navigation file.
func TocNCX(ncx *model.Ncx) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		body, err := ncx.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal ncx: %w", err)
		}
		_, err = io.WriteString(w, xmlHeader+doctypeNCX+body+"\n")
		return err
	})
}
