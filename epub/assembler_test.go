package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serial2epub/model"
)

var fixedTime = time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC)

const mapUrl = "https://example.com/img/map.png"

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testMeta() model.BookMetaInfo {
	return model.BookMetaInfo{
		Uuid:     "0D9C5B2A-4E6F-4B1A-9C3D-2F7E8A1B5C6D",
		Title:    "The Garden",
		Author:   "A. Writer",
		Language: "en",
		FileName: "the-garden",
	}
}

func chapter(order int, title, html string) *model.ChapterContent {
	return &model.ChapterContent{
		Ref:   model.ChapterRef{SourceUrl: "https://example.com/c/" + title, Title: title, Order: order, IsIncludeable: true},
		Title: title,
		Html:  html,
	}
}

// sharedImageBook is two chapters that both show the same image, given out of order.
func sharedImageBook(t *testing.T) (model.BookMetaInfo, []*model.ChapterContent, map[string]*model.ImageData) {
	contents := []*model.ChapterContent{
		chapter(1, "Two", `<p>Second</p><img src="`+mapUrl+`" alt="map">`),
		chapter(0, "One", `<p>First &amp; foremost</p><p><img src="`+mapUrl+`"></p>`),
	}
	images := map[string]*model.ImageData{
		mapUrl: {Url: mapUrl, MediaType: "image/png", Data: pngBytes(t)},
	}
	return testMeta(), contents, images
}

type archive struct {
	names []string
	files map[string]*zip.File
}

func (a archive) read(t *testing.T, name string) string {
	t.Helper()
	f, ok := a.files[name]
	require.True(t, ok, "missing %s", name)
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func (a archive) pkg(t *testing.T) model.Package {
	t.Helper()
	var pkg model.Package
	require.NoError(t, xml.Unmarshal([]byte(a.read(t, "OEBPS/content.opf")), &pkg))
	return pkg
}

func openArchive(t *testing.T, data []byte) archive {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	a := archive{files: make(map[string]*zip.File)}
	for _, f := range r.File {
		a.names = append(a.names, f.Name)
		a.files[f.Name] = f
	}
	return a
}

func assemble(t *testing.T, version Version, opts ...Option) archive {
	t.Helper()
	meta, contents, images := sharedImageBook(t)
	data, err := New(version, append([]Option{WithModified(fixedTime)}, opts...)...).Assemble(meta, contents, images)
	require.NoError(t, err)
	return openArchive(t, data)
}

func withoutNavigation(items []model.ManifestItem) []model.ManifestItem {
	var out []model.ManifestItem
	for _, item := range items {
		if item.ID != ncxId && item.ID != navId {
			out = append(out, item)
		}
	}
	return out
}

func TestAssembleSharedImage(t *testing.T) {
	for _, v := range []Version{Version2, Version3} {
		a := assemble(t, v)
		pkg := a.pkg(t)

		items := withoutNavigation(pkg.Manifest.Items)
		require.Len(t, items, 4)
		var media []string
		for _, item := range items {
			media = append(media, item.Media)
		}
		assert.ElementsMatch(t, []string{"text/css", "application/xhtml+xml", "application/xhtml+xml", "image/png"}, media)

		img, ok := pkg.Manifest.Find("image-0001")
		require.True(t, ok)
		assert.Equal(t, "Images/0001_map.png", img.Link)

		one := a.read(t, "OEBPS/Text/0001_one.xhtml")
		two := a.read(t, "OEBPS/Text/0002_two.xhtml")
		assert.Contains(t, one, `src="../Images/0001_map.png"`)
		assert.Contains(t, two, `src="../Images/0001_map.png"`)
		assert.NotContains(t, one, mapUrl)

		var packaged int
		for _, name := range a.names {
			if strings.HasPrefix(name, "OEBPS/Images/") {
				packaged++
			}
		}
		assert.Equal(t, 1, packaged)
	}
}

func TestAssembleReadingOrder(t *testing.T) {
	a := assemble(t, Version3)
	pkg := a.pkg(t)

	var spine []string
	for _, ref := range pkg.Spine.Items {
		spine = append(spine, ref.IDref)
	}
	assert.Equal(t, []string{"chapter-0001", "chapter-0002"}, spine)
	assert.Equal(t, "ncx", pkg.Spine.Toc)

	one, _ := pkg.Manifest.Find("chapter-0001")
	assert.Equal(t, "Text/0001_one.xhtml", one.Link)
	assert.Contains(t, a.read(t, "OEBPS/Text/0001_one.xhtml"), "<h1>One</h1>")
	assert.Contains(t, a.read(t, "OEBPS/Text/0001_one.xhtml"), "First &amp; foremost")

	ncx := a.read(t, "OEBPS/toc.ncx")
	assert.Less(t, strings.Index(ncx, "Text/0001_one.xhtml"), strings.Index(ncx, "Text/0002_two.xhtml"))
	assert.Contains(t, ncx, `playOrder="1"`)
	assert.Contains(t, ncx, `<meta content="urn:uuid:0d9c5b2a-4e6f-4b1a-9c3d-2f7e8a1b5c6d" name="dtb:uid">`)
}

func TestArchiveLayout(t *testing.T) {
	a := assemble(t, Version2)
	require.GreaterOrEqual(t, len(a.names), 3)
	assert.Equal(t, []string{"mimetype", "META-INF/container.xml", "OEBPS/content.opf"}, a.names[:3])

	mt := a.files["mimetype"]
	assert.Equal(t, zip.Store, mt.Method)
	assert.Empty(t, mt.Extra)
	assert.Equal(t, "application/epub+zip", a.read(t, "mimetype"))
	assert.Contains(t, a.read(t, "META-INF/container.xml"), `full-path="OEBPS/content.opf"`)

	pkg := a.pkg(t)
	var rest []string
	for _, item := range pkg.Manifest.Items {
		rest = append(rest, "OEBPS/"+item.Link)
	}
	assert.Equal(t, rest, a.names[3:])
	for _, name := range a.names[1:] {
		assert.Equal(t, zip.Deflate, a.files[name].Method, name)
		assert.True(t, fixedTime.Equal(a.files[name].Modified), name)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	meta, contents, images := sharedImageBook(t)
	asm := New(Version3, WithModified(fixedTime))
	first, err := asm.Assemble(meta, contents, images)
	require.NoError(t, err)
	second, err := asm.Assemble(meta, contents, images)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
}

func TestVersionDifferences(t *testing.T) {
	v2 := assemble(t, Version2)
	opf2 := v2.read(t, "OEBPS/content.opf")
	assert.Contains(t, opf2, `version="2.0"`)
	assert.Contains(t, opf2, `opf:scheme="UUID"`)
	assert.Contains(t, opf2, `opf:role="aut"`)
	assert.Contains(t, opf2, `opf:event="modification"`)
	assert.NotContains(t, opf2, "dcterms:modified")
	assert.NotContains(t, opf2, `properties="nav"`)
	_, hasNav := v2.files["OEBPS/Text/nav.xhtml"]
	assert.False(t, hasNav)
	assert.Contains(t, v2.read(t, "OEBPS/Text/0001_one.xhtml"), "XHTML 1.1")

	v3 := assemble(t, Version3)
	opf3 := v3.read(t, "OEBPS/content.opf")
	assert.Contains(t, opf3, `version="3.0"`)
	assert.Contains(t, opf3, `<meta property="dcterms:modified">2024-03-09T12:30:00Z</meta>`)
	assert.Contains(t, opf3, `refines="#creator"`)
	assert.NotContains(t, opf3, "opf:role")

	pkg := v3.pkg(t)
	nav, ok := pkg.Manifest.Find("nav")
	require.True(t, ok)
	assert.Equal(t, "nav", nav.Properties)
	for _, ref := range pkg.Spine.Items {
		assert.NotEqual(t, "nav", ref.IDref)
	}
	navDoc := v3.read(t, "OEBPS/Text/nav.xhtml")
	assert.Contains(t, navDoc, `epub:type="toc"`)
	assert.Contains(t, navDoc, `href="0001_one.xhtml"`)
	assert.Contains(t, v3.read(t, "OEBPS/Text/0001_one.xhtml"), "<!DOCTYPE html>")
}

func TestAssembleCover(t *testing.T) {
	cover := &model.ImageData{Url: "https://example.com/cover.png", Data: pngBytes(t)}

	v3 := assemble(t, Version3, WithCover(cover)).pkg(t)
	item, ok := v3.Manifest.Find("cover-image")
	require.True(t, ok)
	assert.Equal(t, "Images/cover.png", item.Link)
	assert.Equal(t, "image/png", item.Media)
	assert.Equal(t, "cover-image", item.Properties)
	assert.Equal(t, "cover", v3.Spine.Items[0].IDref)
	assert.Nil(t, v3.Guide)

	a2 := assemble(t, Version2, WithCover(cover))
	v2 := a2.pkg(t)
	item, _ = v2.Manifest.Find("cover-image")
	assert.Empty(t, item.Properties)
	require.NotNil(t, v2.Guide)
	assert.Equal(t, "Text/cover.xhtml", v2.Guide.Items[0].Link)
	assert.Contains(t, a2.read(t, "OEBPS/content.opf"), `<meta name="cover" content="cover-image"></meta>`)
	assert.Contains(t, a2.read(t, "OEBPS/Text/cover.xhtml"), `src="../Images/cover.png"`)
}

func TestAssembleSeriesAndOptionalMetadata(t *testing.T) {
	meta, contents, images := sharedImageBook(t)
	meta.SeriesName = "Gardens"
	meta.SeriesIndex = "2"
	meta.Translator = "T. Lator"
	meta.FileAuthorAs = "Writer, A."
	meta.Description = "A story."

	data, err := New(Version2, WithModified(fixedTime)).Assemble(meta, contents, images)
	require.NoError(t, err)
	opf2 := openArchive(t, data).read(t, "OEBPS/content.opf")
	assert.Contains(t, opf2, `<meta name="calibre:series" content="Gardens"></meta>`)
	assert.Contains(t, opf2, `<meta name="calibre:series_index" content="2"></meta>`)
	assert.Contains(t, opf2, `opf:role="trl"`)
	assert.Contains(t, opf2, `opf:file-as="Writer, A."`)
	assert.Contains(t, opf2, "<dc:description>A story.</dc:description>")

	data, err = New(Version3, WithModified(fixedTime)).Assemble(meta, contents, images)
	require.NoError(t, err)
	opf3 := openArchive(t, data).read(t, "OEBPS/content.opf")
	assert.Contains(t, opf3, `<meta property="belongs-to-collection" id="series">Gardens</meta>`)
	assert.Contains(t, opf3, `<meta property="group-position" refines="#series">2</meta>`)
	assert.Contains(t, opf3, `<meta property="file-as" refines="#creator">Writer, A.</meta>`)

	meta = testMeta()
	data, err = New(Version3, WithModified(fixedTime)).Assemble(meta, contents, images)
	require.NoError(t, err)
	opf := openArchive(t, data).read(t, "OEBPS/content.opf")
	assert.NotContains(t, opf, "belongs-to-collection")
	assert.NotContains(t, opf, "dc:description")
	assert.NotContains(t, opf, "dc:contributor")
}

func TestAssembleUrlIdentifier(t *testing.T) {
	meta, contents, images := sharedImageBook(t)
	meta.Uuid = "https://example.com/story"
	data, err := New(Version2, WithModified(fixedTime)).Assemble(meta, contents, images)
	require.NoError(t, err)
	opf := openArchive(t, data).read(t, "OEBPS/content.opf")
	assert.Contains(t, opf, `opf:scheme="URI"`)
	assert.Contains(t, opf, ">https://example.com/story</dc:identifier>")
}

func TestAssembleValidation(t *testing.T) {
	meta, contents, images := sharedImageBook(t)
	meta.Title = ""
	meta.Language = ""

	var buf bytes.Buffer
	err := New(Version3).WriteTo(&buf, meta, contents, images)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAssembly))
	var perr *model.Error
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Details, "title")
	assert.Contains(t, perr.Details, "language")
	assert.Zero(t, buf.Len())

	_, err = New(Version3).Assemble(testMeta(), nil, images)
	assert.True(t, errors.Is(err, model.ErrAssembly))

	_, err = New(Version(4)).Assemble(testMeta(), contents, images)
	assert.True(t, errors.Is(err, model.ErrAssembly))
}

func TestAssembleDropsMissingImages(t *testing.T) {
	contents := []*model.ChapterContent{
		chapter(0, "One", `<p>Text</p><img src="https://example.com/gone.png"><img src="`+mapUrl+`">`),
	}
	images := map[string]*model.ImageData{mapUrl: {Url: mapUrl, Data: pngBytes(t)}}
	data, err := New(Version3, WithModified(fixedTime)).Assemble(testMeta(), contents, images)
	require.NoError(t, err)
	a := openArchive(t, data)

	doc := a.read(t, "OEBPS/Text/0001_one.xhtml")
	assert.NotContains(t, doc, "gone.png")
	assert.Equal(t, 1, strings.Count(doc, "<img"))
	assert.Contains(t, doc, `alt=""`)

	item, ok := a.pkg(t).Manifest.Find("image-0001")
	require.True(t, ok)
	assert.Equal(t, "image/png", item.Media)
}

func TestAssembleNestedHeadings(t *testing.T) {
	c := chapter(0, "One", `<p>Intro</p><h2 id="heading-1">Part A</h2><p>More</p>`)
	c.Headings = []model.Heading{{Id: "heading-1", Title: "Part A"}}
	data, err := New(Version3, WithModified(fixedTime)).Assemble(testMeta(), []*model.ChapterContent{c}, nil)
	require.NoError(t, err)
	a := openArchive(t, data)

	ncx := a.read(t, "OEBPS/toc.ncx")
	assert.Contains(t, ncx, `src="Text/0001_one.xhtml#heading-1"`)
	assert.Contains(t, ncx, `<meta content="2" name="dtb:depth">`)
	assert.Contains(t, a.read(t, "OEBPS/Text/nav.xhtml"), `href="0001_one.xhtml#heading-1"`)
}

func TestAssembleCoverSharedWithChapter(t *testing.T) {
	meta, contents, images := sharedImageBook(t)
	data, err := New(Version3, WithModified(fixedTime), WithCover(images[mapUrl])).Assemble(meta, contents, images)
	require.NoError(t, err)
	a := openArchive(t, data)

	var packaged []string
	for _, name := range a.names {
		if strings.HasPrefix(name, "OEBPS/Images/") {
			packaged = append(packaged, name)
		}
	}
	assert.Equal(t, []string{"OEBPS/Images/cover.png"}, packaged)
	assert.Contains(t, a.read(t, "OEBPS/Text/0001_one.xhtml"), `src="../Images/cover.png"`)
}

func TestAssembleStripsComments(t *testing.T) {
	c := chapter(0, "One", `<p>Text<!-- a -- b --></p><!-- <img src="`+mapUrl+`"> -->`)
	data, err := New(Version2, WithModified(fixedTime)).Assemble(testMeta(), []*model.ChapterContent{c}, nil)
	require.NoError(t, err)

	doc := openArchive(t, data).read(t, "OEBPS/Text/0001_one.xhtml")
	assert.NotContains(t, doc, "<!--")
	assert.Contains(t, doc, "<p>Text</p>")
	require.NoError(t, xml.Unmarshal([]byte(doc), new(struct{})))
}

func TestAssembleTocTitle(t *testing.T) {
	a := assemble(t, Version3, WithTocTitle("Inhalt"))
	assert.Contains(t, a.read(t, "OEBPS/Text/nav.xhtml"), "<h1>Inhalt</h1>")

	a = assemble(t, Version3)
	assert.Contains(t, a.read(t, "OEBPS/Text/nav.xhtml"), "<h1>Contents</h1>")
}
