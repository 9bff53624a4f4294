// Package extract turns raw uploaded bytes into plain text, dispatching on
// the declared MIME type. Extraction failures are job-level fatal: no chunk
// state exists yet, so the controller marks the whole job failed.
package extract

import (
	"fmt"
	"mime"
	"regexp"
	"strings"
)

// tagPattern matches HTML/XML tags for the naive text extraction path.
var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// scriptPattern strips script and style elements including their contents.
var scriptPattern = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)

// Text extracts plain text from data according to mimeType. Parameters on
// the media type (e.g. "text/plain; charset=utf-8") are ignored. Unsupported
// types return an error.
func Text(data []byte, mimeType string) (string, error) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", fmt.Errorf("extract: invalid mime type %q: %w", mimeType, err)
	}

	switch mt {
	case "text/plain", "text/markdown", "text/csv":
		return string(data), nil
	case "text/html", "application/xhtml+xml":
		return fromHTML(string(data)), nil
	default:
		return "", fmt.Errorf("extract: unsupported mime type %q", mt)
	}
}

// fromHTML strips tags and collapses whitespace. Good enough for study notes
// exported as HTML; rich documents are expected to arrive as text or markdown.
func fromHTML(s string) string {
	s = scriptPattern.ReplaceAllString(s, " ")
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	return strings.Join(strings.Fields(s), " ")
}
