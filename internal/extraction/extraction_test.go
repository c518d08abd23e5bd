package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedrelay/internal/models"
)

func TestDetectCompleteness(t *testing.T) {
	tests := []struct {
		name string
		item models.Item
		want models.ContentCompleteness
	}{
		{
			name: "long structured content",
			item: models.Item{
				URL:         "http://example.com",
				Summary:     "Short summary",
				ContentHTML: strings.Repeat("<p>This is a long article with substantial content. ", 20),
			},
			want: models.CompletenessFull,
		},
		{
			name: "three paragraphs",
			item: models.Item{
				URL:         "http://example.com",
				Summary:     strings.Repeat("a summary sentence. ", 13),
				ContentHTML: strings.Repeat("<p>"+strings.Repeat("paragraph text ", 12)+"</p>", 3),
			},
			want: models.CompletenessFull,
		},
		{
			name: "read more stub",
			item: models.Item{
				URL:         "http://example.com",
				Summary:     "This is a longer summary that provides some context about the article.",
				ContentHTML: "Read more...",
			},
			want: models.CompletenessPartial,
		},
		{
			name: "summary only",
			item: models.Item{URL: "http://example.com", Summary: "Summary only"},
			want: models.CompletenessPartial,
		},
		{
			name: "cdata link",
			item: models.Item{
				URL:         "http://example.com",
				ContentHTML: `<![CDATA[<a href="https://news.example.com/item?id=1">Comments</a>]]>`,
			},
			want: models.CompletenessPartial,
		},
		{
			name: "mostly links",
			item: models.Item{
				URL:         "http://example.com",
				ContentHTML: `<a href="https://news.example.com/item?id=1">Comments</a>`,
			},
			want: models.CompletenessPartial,
		},
		{
			name: "url without content",
			item: models.Item{URL: "http://example.com"},
			want: models.CompletenessPartial,
		},
		{
			name: "long plain text",
			item: models.Item{URL: "http://example.com", ContentHTML: strings.Repeat("plain words ", 40)},
			want: models.CompletenessFull,
		},
		{
			name: "nothing at all",
			item: models.Item{},
			want: models.CompletenessUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectCompleteness(tt.item); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	html := `<div><p onclick="steal()">Hello</p><script>alert(1)</script><a href="javascript:evil()">x</a><img src="/a.png"></div>`

	got, err := sanitize(html)
	if err != nil {
		t.Fatalf("sanitize failed: %v", err)
	}
	for _, banned := range []string{"<script", "onclick", "javascript:"} {
		if strings.Contains(got, banned) {
			t.Errorf("Expected %q to be removed, got %s", banned, got)
		}
	}
	if !strings.Contains(got, "Hello") || !strings.Contains(got, `src="/a.png"`) {
		t.Errorf("Expected safe content kept, got %s", got)
	}
}

const articlePage = `<!DOCTYPE html>
<html><head><title>Gardening in small spaces</title></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>Gardening in small spaces</h1>
%s
<script>track()</script>
</article>
<footer>Copyright</footer>
</body></html>`

func articleServer(t *testing.T) *httptest.Server {
	t.Helper()
	var paragraphs strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&paragraphs, "<p>Balcony gardens, window boxes, and vertical planters let city dwellers grow herbs, greens, and flowers; paragraph %d explains watering, light, and soil in detail.</p>\n", i)
	}
	page := fmt.Sprintf(articlePage, paragraphs.String())

	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("Expected user agent %q, got %q", userAgent, r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestReadabilityExtractor_Extract(t *testing.T) {
	server := articleServer(t)
	extractor := NewReadabilityExtractor(5 * time.Second)

	content, err := extractor.Extract(context.Background(), server.URL+"/article")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(content, "Balcony gardens") {
		t.Errorf("Expected article text in extracted content, got %s", content)
	}
	if strings.Contains(content, "<script") {
		t.Error("Expected scripts to be stripped")
	}
}

func TestReadabilityExtractor_HTTPError(t *testing.T) {
	server := articleServer(t)
	extractor := NewReadabilityExtractor(0)

	_, err := extractor.Extract(context.Background(), server.URL+"/forbidden")
	if err == nil || !strings.Contains(err.Error(), "HTTP error 403") {
		t.Errorf("Expected HTTP error 403, got %v", err)
	}
}

func TestReadabilityExtractor_Cancelled(t *testing.T) {
	server := articleServer(t)
	extractor := NewReadabilityExtractor(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := extractor.Extract(ctx, server.URL+"/article")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
