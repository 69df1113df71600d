package utils

import (
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// CleanFileName replaces characters that are not allowed in file names on common file systems.
func CleanFileName(input string) string {
	cleaned := unsafeFileChars.ReplaceAllString(input, "_")

	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, ". ")

	return cleaned
}

// EpubFileName returns name with an .epub suffix, cleaned for use on disk.
func EpubFileName(name string) string {
	name = CleanFileName(name)
	if name == "" {
		name = "book"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".epub") {
		name += ".epub"
	}
	return name
}
