package epub

import (
	"strings"

	"serial2epub/model"
	"serial2epub/template"
)

const bookIdentifierId = "book-id"

// identifier is the value of the unique identifier, urn:uuid: prefixed when it is a uuid.
func (b *builder) identifier() string {
	if b.meta.IdentifierIsUuid() {
		return "urn:uuid:" + strings.ToLower(b.meta.Uuid)
	}
	return b.meta.Uuid
}

func (b *builder) metadata() model.DublinCoreMetadata {
	meta := b.meta
	md := model.DublinCoreMetadata{
		XmlnsDC:     "http://purl.org/dc/elements/1.1/",
		Titles:      []model.DCTitle{{Value: meta.Title}},
		Identifiers: []model.DCIdentifier{{Value: b.identifier(), ID: bookIdentifierId}},
		Languages:   []model.DCLanguage{{Value: meta.Language}},
	}
	if meta.Description != "" {
		md.Descriptions = []model.DCDescription{{Value: meta.Description}}
	}
	if meta.Subject != "" {
		for _, s := range strings.Split(meta.Subject, ",") {
			if s = strings.TrimSpace(s); s != "" {
				md.Subjects = append(md.Subjects, model.DCSubject{Value: s})
			}
		}
	}

	if b.version == Version2 {
		b.metadata2(&md)
	} else {
		b.metadata3(&md)
	}
	if b.hasCover {
		md.Metas = append(md.Metas, model.DublinCoreMeta{Name: "cover", Content: coverImageId})
	}
	return md
}

func (b *builder) metadata2(md *model.DublinCoreMetadata) {
	meta := b.meta
	md.XmlnsOPF = "http://www.idpf.org/2007/opf"
	md.Identifiers[0].Scheme = "URI"
	if meta.IdentifierIsUuid() {
		md.Identifiers[0].Scheme = "UUID"
	}
	md.Creators = []model.DCCreator{{Value: meta.Author, Role: "aut", FileAs: meta.FileAuthorAs}}
	if meta.Translator != "" {
		md.Contributors = []model.DCContributor{{Value: meta.Translator, Role: "trl"}}
	}
	md.Dates = []model.DCDate{{Value: b.modified.Format("2006-01-02"), Event: "modification"}}
	if meta.HasSeries() {
		md.Metas = append(md.Metas, model.DublinCoreMeta{Name: "calibre:series", Content: meta.SeriesName})
		if meta.SeriesIndex != "" {
			md.Metas = append(md.Metas, model.DublinCoreMeta{Name: "calibre:series_index", Content: meta.SeriesIndex})
		}
	}
}

func (b *builder) metadata3(md *model.DublinCoreMetadata) {
	meta := b.meta
	md.Creators = []model.DCCreator{{Value: meta.Author, ID: "creator"}}
	md.Metas = append(md.Metas, model.DublinCoreMeta{Refines: "#creator", Property: "role", Scheme: "marc:relators", Value: "aut"})
	if meta.FileAuthorAs != "" {
		md.Metas = append(md.Metas, model.DublinCoreMeta{Refines: "#creator", Property: "file-as", Value: meta.FileAuthorAs})
	}
	if meta.Translator != "" {
		md.Contributors = []model.DCContributor{{Value: meta.Translator, ID: "translator"}}
		md.Metas = append(md.Metas, model.DublinCoreMeta{Refines: "#translator", Property: "role", Scheme: "marc:relators", Value: "trl"})
	}
	if meta.HasSeries() {
		md.Metas = append(md.Metas,
			model.DublinCoreMeta{Property: "belongs-to-collection", ID: "series", Value: meta.SeriesName},
			model.DublinCoreMeta{Refines: "#series", Property: "collection-type", Value: "series"},
		)
		if meta.SeriesIndex != "" {
			md.Metas = append(md.Metas, model.DublinCoreMeta{Refines: "#series", Property: "group-position", Value: meta.SeriesIndex})
		}
	}
	md.Metas = append(md.Metas, model.DublinCoreMeta{Property: "dcterms:modified", Value: b.modified.Format("2006-01-02T15:04:05Z")})
}

func (b *builder) packageDocument() *model.Package {
	pkg := &model.Package{
		Xmlns:            "http://www.idpf.org/2007/opf",
		Version:          "2.0",
		UniqueIdentifier: bookIdentifierId,
		Metadata:         b.metadata(),
		Spine:            model.Spine{Toc: ncxId},
	}
	if b.version == Version3 {
		pkg.Version = "3.0"
	}
	for _, r := range b.resources {
		pkg.Manifest.Items = append(pkg.Manifest.Items, r.item)
	}
	for _, id := range b.spine {
		pkg.Spine.Items = append(pkg.Spine.Items, model.SpineItem{IDref: id})
	}
	if b.hasCover && b.version == Version2 {
		pkg.Guide = &model.Guide{Items: []model.GuideItem{{Title: "Cover", Type: "cover", Link: coverPageHref}}}
	}
	return pkg
}

// zipFile is one entry of the archive, named relative to the archive root.
type zipFile struct {
	name string
	data []byte
}

// files lists every archive entry after mimetype: container, package document, then the
// manifest in order.
func (b *builder) files(pkg *model.Package) ([]zipFile, error) {
	opfPath := opfDir + "/content.opf"
	container, err := render(template.ContainerXML(opfPath))
	if err != nil {
		return nil, model.AssemblyErrorf("failed to render container: %v", err)
	}
	opf, err := render(template.ContentOPF(pkg))
	if err != nil {
		return nil, model.AssemblyErrorf("failed to render package document: %v", err)
	}
	files := make([]zipFile, 0, len(b.resources)+2)
	files = append(files,
		zipFile{name: "META-INF/container.xml", data: container},
		zipFile{name: opfPath, data: opf},
	)
	for _, r := range b.resources {
		files = append(files, zipFile{name: opfDir + "/" + r.item.Link, data: r.data})
	}
	return files, nil
}
