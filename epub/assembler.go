// Package epub assembles fetched chapters and their images into an EPUB 2 or EPUB 3 package.
package epub

import (
	"bytes"
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"serial2epub/logger"
	"serial2epub/model"
	"serial2epub/template"
)

// Version selects the package format.
type Version int

const (
	Version2 Version = 2
	Version3 Version = 3
)

// ParseVersion accepts 2 or 3.
func ParseVersion(v int) (Version, error) {
	switch Version(v) {
	case Version2, Version3:
		return Version(v), nil
	}
	return 0, model.AssemblyErrorf("unsupported epub version %d", v)
}

// Assembler builds packages. It holds no state between calls and may be reused.
type Assembler struct {
	version  Version
	modified func() time.Time
	css      string
	cover    *model.ImageData
	tocTitle string
	log      *slog.Logger
}

type Option func(*Assembler)

// WithModified fixes the modification time written to metadata and zip entries, making output
// byte for byte reproducible.
func WithModified(t time.Time) Option {
	return func(a *Assembler) { a.modified = func() time.Time { return t } }
}

// WithStyleSheet replaces the default stylesheet. BookMetaInfo.StyleSheet takes precedence.
func WithStyleSheet(css string) Option {
	return func(a *Assembler) { a.css = css }
}

// WithCover adds a cover image and a cover page at the start of the reading order.
func WithCover(img *model.ImageData) Option {
	return func(a *Assembler) { a.cover = img }
}

// WithTocTitle sets the heading of the version 3 navigation document.
func WithTocTitle(title string) Option {
	return func(a *Assembler) { a.tocTitle = title }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.log = l }
}

func New(version Version, opts ...Option) *Assembler {
	a := &Assembler{
		version:  version,
		modified: time.Now,
		css:      template.StyleCSS,
		tocTitle: "Contents",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.OrDiscard(a.log)
	return a
}

// Assemble returns the package as bytes.
func (a *Assembler) Assemble(meta model.BookMetaInfo, contents []*model.ChapterContent, images map[string]*model.ImageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.WriteTo(&buf, meta, contents, images); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo validates meta, builds every package document and writes the zip to w. Nothing is
// written when validation or the integrity check fails. Chapters are placed in Ref.Order order;
// images are looked up by the url found in each chapter's <img src>.
func (a *Assembler) WriteTo(w io.Writer, meta model.BookMetaInfo, contents []*model.ChapterContent, images map[string]*model.ImageData) error {
	if _, err := ParseVersion(int(a.version)); err != nil {
		return err
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	chapters := ordered(contents)
	if len(chapters) == 0 {
		return model.AssemblyError("no chapters to assemble")
	}

	modified := a.modified().UTC().Truncate(time.Second)
	b := newBuilder(a.version, meta, modified)

	css := cmp.Or(meta.StyleSheet, a.css)
	b.addStyleSheet(css)
	if a.cover != nil && len(a.cover.Data) > 0 {
		if err := b.addCover(a.cover); err != nil {
			return err
		}
	}
	for _, c := range chapters {
		if err := b.addChapter(c, images); err != nil {
			return err
		}
	}
	if err := b.addNavigation(a.tocTitle); err != nil {
		return err
	}

	pkg := b.packageDocument()
	if err := verify(pkg, b.navMap, b.chapterHrefs, b.refs); err != nil {
		return err
	}

	files, err := b.files(pkg)
	if err != nil {
		return err
	}
	a.log.Info("assembling package",
		"title", meta.Title, "version", int(a.version), "chapters", len(chapters), "images", len(b.images))
	return writeZip(w, modified, files)
}

// ordered drops nil entries and sorts by chapter order, keeping input order for ties.
func ordered(contents []*model.ChapterContent) []*model.ChapterContent {
	out := make([]*model.ChapterContent, 0, len(contents))
	for _, c := range contents {
		if c != nil {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(x, y *model.ChapterContent) int {
		return cmp.Compare(x.Ref.Order, y.Ref.Order)
	})
	return out
}

func render(c interface {
	Render(context.Context, io.Writer) error
}) ([]byte, error) {
	var b strings.Builder
	if err := c.Render(context.Background(), &b); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
