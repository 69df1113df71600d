package cmd

import (
	"github.com/spf13/pflag"

	"serial2epub/extractor"
)

type extractorArgs struct {
	Name              string
	SitePassword      string
	RemoveAuthorNotes bool
	ChapterList       string
	Content           string
	Title             string
	Cover             string
	NextPage          string
	Headings          string
	Remove            []string
}

func bindExtractorFlags(fs *pflag.FlagSet, a *extractorArgs) {
	fs.StringVarP(&a.Name, "extractor", "e", "", "extractor to use instead of matching the page")
	fs.StringVar(&a.SitePassword, "site-password", "", "password for sites that lock chapters behind one")
	fs.BoolVar(&a.RemoveAuthorNotes, "remove-author-notes", false, "drop author and translator notes where the site marks them")
	fs.StringVar(&a.ChapterList, "chapter-selector", "", "CSS selector of chapter links on the table of contents")
	fs.StringVar(&a.Content, "content-selector", "", "CSS selector of the chapter body")
	fs.StringVar(&a.Title, "title-selector", "", "CSS selector of the chapter title")
	fs.StringVar(&a.Cover, "cover-selector", "", "CSS selector of the cover image")
	fs.StringVar(&a.NextPage, "next-page-selector", "", "CSS selector of the link to the next page of a chapter")
	fs.StringVar(&a.Headings, "heading-selector", "", "CSS selector of sub-headings listed in the table of contents")
	fs.StringSliceVar(&a.Remove, "remove-selector", nil, "CSS selectors removed from chapter bodies")
}

// builtinOptions starts from the default selectors and replaces the ones given on the command line.
func (a *extractorArgs) builtinOptions(skipImages bool) extractor.BuiltinOptions {
	sel := extractor.DefaultSelectors
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&sel.ChapterList, a.ChapterList)
	set(&sel.Content, a.Content)
	set(&sel.Title, a.Title)
	set(&sel.Cover, a.Cover)
	set(&sel.NextPage, a.NextPage)
	set(&sel.Headings, a.Headings)
	if len(a.Remove) > 0 {
		sel.Remove = append(append([]string(nil), sel.Remove...), a.Remove...)
	}
	return extractor.BuiltinOptions{
		Selectors:         sel,
		SkipImages:        skipImages,
		SitePassword:      a.SitePassword,
		RemoveAuthorNotes: a.RemoveAuthorNotes,
	}
}
