// Package extraction decides whether feed content is complete and fetches
// full article bodies for items that are not.
package extraction

import (
	"strings"

	"feedrelay/internal/models"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const cdataPrefix = "<![CDATA["

// markup summarizes an HTML fragment
type markup struct {
	length     int
	tags       int
	linkLength int
}

// countTags counts markup tokens, so an element with a closing tag counts twice
func countTags(fragment string) int {
	z := html.NewTokenizer(strings.NewReader(fragment))
	n := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return n
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken, html.CommentToken, html.DoctypeToken:
			n++
		}
	}
}

func inspect(fragment string) markup {
	m := markup{length: len(fragment)}
	if !strings.Contains(fragment, "<") || !strings.Contains(fragment, ">") {
		return m
	}
	m.tags = countTags(fragment)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return m
	}
	doc.Find("body a").Each(func(_ int, s *goquery.Selection) {
		if outer, err := goquery.OuterHtml(s); err == nil {
			m.linkLength += len(outer)
		}
	})
	return m
}

// DetectCompleteness guesses whether an item's feed content is the whole
// article. The rules run in order and the first match wins.
func DetectCompleteness(item models.Item) models.ContentCompleteness {
	content := item.ContentHTML
	summary := item.Summary
	m := inspect(content)
	summaryLength := len(summary)

	// substantial markup
	if m.length > 500 && m.tags > 5 {
		return models.CompletenessFull
	}

	cdataOnly := strings.HasPrefix(content, cdataPrefix) && m.length < 200
	summaryCDATA := strings.HasPrefix(summary, cdataPrefix) && summaryLength < 200
	mostlyLinks := m.length > 0 && m.linkLength > 0 && float64(m.linkLength)/float64(m.length) > 0.7
	if cdataOnly || summaryCDATA || mostlyLinks {
		return models.CompletenessPartial
	}

	if m.length < 100 && summaryLength > 0 {
		return models.CompletenessPartial
	}
	if item.URL != "" && m.length == 0 {
		return models.CompletenessPartial
	}

	if m.length > 200 && (summaryLength == 0 || float64(m.length)/float64(summaryLength) > 3.0) {
		return models.CompletenessFull
	}

	if m.length > 0 && m.length < 300 {
		return models.CompletenessPartial
	}
	return models.CompletenessUnknown
}
