// Package render turns stored item HTML into terminal friendly text.
package render

import (
	"strings"
	"sync"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var (
	converterOnce sync.Once
	converter     *md.Converter
)

func getConverter() *md.Converter {
	converterOnce.Do(func() {
		converter = md.NewConverter("", true, nil)
	})
	return converter
}

// Markdown converts an HTML fragment to Markdown. When conversion fails the
// plain text of the fragment is returned instead.
func Markdown(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	out, err := getConverter().ConvertString(html)
	if err != nil {
		return PlainText(html)
	}
	return strings.TrimSpace(out)
}

// PlainText strips all markup and collapses whitespace
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Excerpt returns at most n runes of the plain text, marking truncation with an ellipsis
func Excerpt(html string, n int) string {
	text := []rune(PlainText(html))
	if n <= 0 || len(text) <= n {
		return string(text)
	}
	return strings.TrimSpace(string(text[:n])) + "…"
}
