package reader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedrelay/internal/models"
	"feedrelay/internal/render"

	"github.com/dustin/go-humanize"
)

const excerptLength = 160

// FormatEntry renders an entry for a terminal. With full set the resolved
// content is converted to Markdown, otherwise a short excerpt is shown.
func FormatEntry(e Entry, now time.Time, full bool) string {
	var b strings.Builder

	marker := " "
	if e.Item.State == models.StateUnread {
		marker = "*"
	}
	fmt.Fprintf(&b, "%s [%d] %s\n", marker, e.Item.ID, e.Item.Title)

	meta := []string{humanize.RelTime(time.Unix(e.Item.CreatedAt, 0), now, "ago", "from now")}
	if e.Item.SourceName != "" {
		meta = append(meta, e.Item.SourceName)
	}
	if e.Item.SourceGroup != "" {
		meta = append(meta, e.Item.SourceGroup)
	}
	meta = append(meta, string(e.Item.State))
	fmt.Fprintf(&b, "    %s\n", strings.Join(meta, " · "))
	if e.Item.URL != "" {
		fmt.Fprintf(&b, "    %s\n", e.Item.URL)
	}

	if status := contentStatus(e.Content); status != "" {
		fmt.Fprintf(&b, "    (%s)\n", status)
	}

	if full {
		if body := render.Markdown(e.Content.Content); body != "" {
			b.WriteString("\n")
			for _, line := range strings.Split(body, "\n") {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
	} else if excerpt := render.Excerpt(e.Content.Content, excerptLength); excerpt != "" {
		fmt.Fprintf(&b, "    %s\n", excerpt)
	}
	return b.String()
}

func contentStatus(r models.ContentResolution) string {
	switch {
	case r.IsFetching:
		return "fetching full article"
	case r.HasError:
		return "extraction failed: " + r.ErrorMessage
	case r.Source == models.SourceExtracted:
		return "full article"
	}
	return ""
}

// FormatPageFooter summarizes the pagination state
func FormatPageFooter(s *Session) string {
	pages := s.Pages()
	total := pages.TotalPages()
	if total == 0 {
		return "No items"
	}
	return fmt.Sprintf("Page %d of %d · %s items · %d unread · %d per page",
		pages.CurrentPage(), total, humanize.Comma(int64(pages.TotalItems())),
		s.Items().UnreadCount(), pages.ItemsPerPage())
}

// FormatView renders a saved view on one line
func FormatView(v models.CustomView) string {
	parts := []string{fmt.Sprintf("[%d] %s", v.ID, v.Name)}
	if len(v.SourceIDs) > 0 {
		ids := make([]string, len(v.SourceIDs))
		for i, id := range v.SourceIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		parts = append(parts, "sources "+strings.Join(ids, ","))
	}
	if len(v.GroupNames) > 0 {
		parts = append(parts, "groups "+strings.Join(v.GroupNames, ","))
	}
	if len(parts) == 1 {
		parts = append(parts, "all sources")
	}
	return strings.Join(parts, " · ")
}
