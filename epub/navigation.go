package epub

import (
	"fmt"
	"strconv"

	"serial2epub/model"
	"serial2epub/template"
)

// addNavigation numbers the nav points and adds the ncx, plus the nav document for version 3.
// Both go to the front of the manifest.
func (b *builder) addNavigation(tocTitle string) error {
	order := 0
	var number func(points []*model.NavPoint)
	number = func(points []*model.NavPoint) {
		for _, p := range points {
			order++
			p.PlayOrder = order
			p.Id = "navpoint-" + strconv.Itoa(order)
			number(p.NavPoints)
		}
	}
	number(b.navMap.Points)

	ncx, err := render(template.TocNCX(b.ncx()))
	if err != nil {
		return model.AssemblyErrorf("failed to render ncx: %v", err)
	}
	front := []resource{{item: model.ManifestItem{ID: ncxId, Link: ncxHref, Media: mediaNCX}, data: ncx}}

	if b.version == Version3 {
		nav, err := render(template.NavXHTML(b.meta.Language, b.meta.Title, tocTitle, b.navMap.Points))
		if err != nil {
			return model.AssemblyErrorf("failed to render navigation document: %v", err)
		}
		front = append(front, resource{
			item: model.ManifestItem{ID: navId, Link: navHref, Media: mediaXHTML, Properties: "nav"},
			data: nav,
		})
		b.hasNav = true
	}
	b.resources = append(front, b.resources...)
	return nil
}

func (b *builder) ncx() *model.Ncx {
	return &model.Ncx{
		Xmlns:   "http://www.daisy.org/z3986/2005/ncx/",
		Version: "2005-1",
		Head: model.TocNCXHead{
			Meta: []model.TocNCXHeadMeta{
				{Name: "dtb:uid", Content: b.identifier()},
				{Name: "dtb:depth", Content: fmt.Sprint(b.navMap.Depth())},
				{Name: "dtb:totalPageCount", Content: "0"},
				{Name: "dtb:maxPageNumber", Content: "0"},
			},
		},
		Title:  b.meta.Title,
		NavMap: b.navMap,
	}
}
