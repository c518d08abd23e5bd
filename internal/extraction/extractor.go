package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

const (
	DefaultTimeout = 30 * time.Second
	userAgent      = "feedrelay/1.0"
	maxBodySize    = 10 << 20
)

var ErrNoContent = errors.New("no readable content found")

// Extractor fetches the full article behind a URL
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (string, error)
}

// ReadabilityExtractor downloads a page and keeps its main content
type ReadabilityExtractor struct {
	client *http.Client
}

func NewReadabilityExtractor(timeout time.Duration) *ReadabilityExtractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReadabilityExtractor{
		client: &http.Client{Timeout: timeout},
	}
}

func (e *ReadabilityExtractor) Extract(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid article url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP error %d when fetching article", resp.StatusCode)
	}

	parser := readability.NewParser()
	article, err := parser.Parse(io.LimitReader(resp.Body, maxBodySize), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract article content: %w", err)
	}
	if strings.TrimSpace(article.Content) == "" {
		return "", ErrNoContent
	}

	return sanitize(article.Content)
}

// sanitize drops active content from extracted markup
func sanitize(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse extracted content: %w", err)
	}

	doc.Find("script, style, iframe, object, embed, form, noscript").Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				name := strings.ToLower(attr.Key)
				if strings.HasPrefix(name, "on") {
					continue
				}
				if (name == "href" || name == "src") && strings.HasPrefix(strings.ToLower(strings.TrimSpace(attr.Val)), "javascript:") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("failed to render extracted content: %w", err)
	}
	return strings.TrimSpace(body), nil
}
