package epub

import (
	"fmt"
	"slices"
	"strings"

	"serial2epub/model"
)

// verify checks that the package documents agree with each other before anything is written:
// every reference resolves to a manifest item, ids and hrefs are unique, each item other than
// the navigation documents is reached in exactly one way, and the navigation lists the
// chapters in reading order.
func verify(pkg *model.Package, navMap model.NavMap, chapterHrefs []string, r refs) error {
	problems := make(map[string]string)
	report := func(key, format string, args ...any) {
		if _, ok := problems[key]; !ok {
			problems[key] = fmt.Sprintf(format, args...)
		}
	}

	ids := make(map[string]model.ManifestItem, len(pkg.Manifest.Items))
	hrefs := make(map[string]bool, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		if _, dup := ids[item.ID]; dup {
			report("manifest:"+item.ID, "duplicate manifest id")
		}
		if hrefs[item.Link] {
			report("manifest:"+item.Link, "duplicate manifest href")
		}
		ids[item.ID] = item
		hrefs[item.Link] = true
	}

	for _, ref := range pkg.Spine.Items {
		if _, ok := ids[ref.IDref]; !ok {
			report("spine:"+ref.IDref, "spine references a missing manifest item")
		}
	}
	if pkg.Spine.Toc != "" {
		if _, ok := pkg.Manifest.Find(pkg.Spine.Toc); !ok {
			report("spine:toc", "toc %q is not in the manifest", pkg.Spine.Toc)
		}
	}
	if pkg.Guide != nil {
		for _, g := range pkg.Guide.Items {
			if !hrefs[g.Link] {
				report("guide:"+g.Link, "guide references a missing file")
			}
		}
	}

	var walk func(points []*model.NavPoint)
	walk = func(points []*model.NavPoint) {
		for _, p := range points {
			href, _, _ := strings.Cut(p.Content.Src, "#")
			if !hrefs[href] {
				report("nav:"+p.Content.Src, "navigation references a missing file")
			}
			walk(p.NavPoints)
		}
	}
	walk(navMap.Points)

	top := make([]string, 0, len(navMap.Points))
	for _, p := range navMap.Points {
		top = append(top, p.Content.Src)
	}
	if !slices.Equal(top, chapterHrefs) {
		report("nav", "navigation does not list the chapters in reading order")
	}

	for _, counts := range []map[string]int{r.spine, r.image, r.link} {
		for id := range counts {
			if _, ok := ids[id]; !ok {
				report("ref:"+id, "reference to a missing manifest item")
			}
		}
	}

	spineCount := make(map[string]int, len(pkg.Spine.Items))
	for _, ref := range pkg.Spine.Items {
		spineCount[ref.IDref]++
	}
	for _, item := range pkg.Manifest.Items {
		if item.ID == ncxId || item.ID == navId {
			if spineCount[item.ID] > 0 {
				report("manifest:"+item.ID, "navigation document is in the spine")
			}
			continue
		}
		if n := spineCount[item.ID]; n > 1 {
			report("manifest:"+item.ID, "appears %d times in the spine", n)
		}
		ways := 0
		if spineCount[item.ID] > 0 {
			ways++
		}
		if r.image[item.ID] > 0 {
			ways++
		}
		if r.link[item.ID] > 0 {
			ways++
		}
		switch {
		case ways == 0:
			report("manifest:"+item.ID, "is not referenced")
		case ways > 1:
			report("manifest:"+item.ID, "is referenced in more than one way")
		}
	}

	if len(problems) > 0 {
		return model.AssemblyErrorWithDetails("package integrity check failed", problems)
	}
	return nil
}
