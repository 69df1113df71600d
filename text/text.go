// Package text exports fetched chapters as plain text or markdown, one file per chapter.
package text

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"serial2epub/model"
	"serial2epub/utils"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

const blockElements = "p, div, h1, h2, h3, h4, h5, h6, li, blockquote, pre, hr, tr"

// PackToText writes each chapter to <outputPath>/<title>/NNN-<chapter>.txt with images removed.
// The book directory is recreated, and its path is returned.
func PackToText(title string, contents []*model.ChapterContent, outputPath string) (string, error) {
	return pack(title, contents, outputPath, ".txt", chapterText)
}

// PackToMarkdown is PackToText with the chapter html converted to markdown. Image references keep
// their original urls.
func PackToMarkdown(title string, contents []*model.ChapterContent, outputPath string) (string, error) {
	return pack(title, contents, outputPath, ".md", chapterMarkdown)
}

func pack(title string, contents []*model.ChapterContent, outputPath, ext string, convert func(*model.ChapterContent) (string, error)) (string, error) {
	name := utils.CleanFileName(title)
	if name == "" {
		name = "book"
	}
	dir := filepath.Join(outputPath, name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to remove output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	for i, chapter := range contents {
		body, err := convert(chapter)
		if err != nil {
			return "", fmt.Errorf("failed to convert chapter %q: %w", chapter.Title, err)
		}
		name := fmt.Sprintf("%03d-%s%s", i+1, utils.CleanFileName(chapter.Title), ext)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			return "", fmt.Errorf("failed to write chapter file: %w", err)
		}
	}
	return dir, nil
}

func chapterText(chapter *model.ChapterContent) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(chapter.Html))
	if err != nil {
		return "", err
	}
	doc.Find("img").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
		s.AppendHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	body := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return chapter.Title + "\n\n" + strings.TrimSpace(body) + "\n", nil
}

func chapterMarkdown(chapter *model.ChapterContent) (string, error) {
	md, err := htmltomarkdown.ConvertString(chapter.Html)
	if err != nil {
		return "", err
	}
	return "# " + chapter.Title + "\n\n" + strings.TrimSpace(md) + "\n", nil
}
