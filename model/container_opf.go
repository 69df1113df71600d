package model

import "encoding/xml"

// Package is the root <package> element of content.opf.
type Package struct {
	XMLName          xml.Name           `xml:"package"`
	Xmlns            string             `xml:"xmlns,attr"`
	Version          string             `xml:"version,attr"`
	UniqueIdentifier string             `xml:"unique-identifier,attr"`
	Metadata         DublinCoreMetadata `xml:"metadata"`
	Manifest         Manifest           `xml:"manifest"`
	Spine            Spine              `xml:"spine"`
	Guide            *Guide             `xml:"guide,omitempty"`
}

func (p *Package) Marshal() (string, error) {
	xmlBytes, err := xml.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return string(xmlBytes), nil
}

type DublinCoreMetadata struct {
	XmlnsDC  string `xml:"xmlns:dc,attr"`
	XmlnsOPF string `xml:"xmlns:opf,attr,omitempty"`

	// required
	Titles      []DCTitle      `xml:"dc:title"`
	Identifiers []DCIdentifier `xml:"dc:identifier"`
	Languages   []DCLanguage   `xml:"dc:language"`

	// optional
	Contributors []DCContributor `xml:"dc:contributor"`
	Creators     []DCCreator     `xml:"dc:creator"`
	Dates        []DCDate        `xml:"dc:date"`
	Descriptions []DCDescription `xml:"dc:description"`
	Subjects     []DCSubject     `xml:"dc:subject"`

	Metas []DublinCoreMeta `xml:"meta"`
}

type DCTitle struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr,omitempty"`
	Lang  string `xml:"xml:lang,attr,omitempty"`
}

type DCIdentifier struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr,omitempty"`
	Scheme string `xml:"opf:scheme,attr,omitempty"`
}

type DCLanguage struct {
	Value string `xml:",chardata"`
}

// DCContributor carries opf:role/opf:file-as in EPUB 2; EPUB 3 moves them to refining <meta>.
type DCContributor struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr,omitempty"`
	Role   string `xml:"opf:role,attr,omitempty"`
	FileAs string `xml:"opf:file-as,attr,omitempty"`
}

type DCCreator struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr,omitempty"`
	Role   string `xml:"opf:role,attr,omitempty"`
	FileAs string `xml:"opf:file-as,attr,omitempty"`
}

type DCDate struct {
	Value string `xml:",chardata"`
	Event string `xml:"opf:event,attr,omitempty"`
}

type DCDescription struct {
	Value string `xml:",chardata"`
}

type DCSubject struct {
	Value string `xml:",chardata"`
}

// DublinCoreMeta covers both the EPUB 2 name/content form and the EPUB 3 property form.
type DublinCoreMeta struct {
	Name     string `xml:"name,attr,omitempty"`
	Content  string `xml:"content,attr,omitempty"`
	Property string `xml:"property,attr,omitempty"`
	Refines  string `xml:"refines,attr,omitempty"`
	ID       string `xml:"id,attr,omitempty"`
	Scheme   string `xml:"scheme,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type Manifest struct {
	Items []ManifestItem `xml:"item"`
}

// Find returns the item with the given id.
func (m Manifest) Find(id string) (ManifestItem, bool) {
	for _, item := range m.Items {
		if item.ID == id {
			return item, true
		}
	}
	return ManifestItem{}, false
}

type ManifestItem struct {
	ID         string `xml:"id,attr"`
	Link       string `xml:"href,attr"`
	Media      string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type Spine struct {
	Toc   string      `xml:"toc,attr,omitempty"`
	Items []SpineItem `xml:"itemref"`
}

type SpineItem struct {
	IDref string `xml:"idref,attr"`
}

type Guide struct {
	Items []GuideItem `xml:"reference"`
}

type GuideItem struct {
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
	Link  string `xml:"href,attr"`
}
