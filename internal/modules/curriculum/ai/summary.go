package ai

import (
	"fmt"
	"strings"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

const (
	// DefaultSummaryChars caps raw text sent with a structure request.
	DefaultSummaryChars = 15000
	TruncationMarker    = "[... content truncated ...]"
	maxOutlineEntries   = 200
)

// BuildSourceSummary renders metadata, a section outline and up to limit
// characters of raw text.
func BuildSourceSummary(parsed curriculum.ParsedContent, limit int) string {
	return summarize(parsed.Metadata, parsed.Sections, parsed.Text, limit)
}

func chunkSummary(meta curriculum.SourceMetadata, chunk curriculum.ContentChunk, limit int) string {
	return summarize(meta, chunk.Sections, chunk.Text, limit)
}

func summarize(meta curriculum.SourceMetadata, sections []curriculum.Section, text string, limit int) string {
	if limit <= 0 {
		limit = DefaultSummaryChars
	}
	var b strings.Builder
	if t := strings.TrimSpace(meta.Title); t != "" {
		fmt.Fprintf(&b, "Title: %s\n", t)
	}
	if d := strings.TrimSpace(meta.Description); d != "" {
		fmt.Fprintf(&b, "Description: %s\n", d)
	}
	if len(sections) > 0 {
		b.WriteString("\nOutline:\n")
		for i, s := range sections {
			if i == maxOutlineEntries {
				fmt.Fprintf(&b, "- ... %d more sections\n", len(sections)-i)
				break
			}
			title := strings.TrimSpace(s.Title)
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", s.Type, title)
		}
	}
	b.WriteString("\nContent:\n")
	r := []rune(strings.TrimSpace(text))
	if len(r) > limit {
		b.WriteString(string(r[:limit]))
		b.WriteString("\n")
		b.WriteString(TruncationMarker)
	} else {
		b.WriteString(string(r))
	}
	return b.String()
}
