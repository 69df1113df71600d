package epub

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"serial2epub/model"
)

// imageMediaType trusts the reported type only when it names an image; otherwise the bytes decide.
func imageMediaType(img *model.ImageData) string {
	if mt, _, err := mime.ParseMediaType(img.MediaType); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	mt, _, _ := strings.Cut(mimetype.Detect(img.Data).String(), ";")
	return mt
}

func imageExtension(media, name string) string {
	if m := mimetype.Lookup(media); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if ext := strings.ToLower(path.Ext(name)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".img"
}
