package parsing

import (
	"strings"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

func parsePlainText(s string) curriculum.ParsedContent {
	text := normalizeNewlines(s)
	out := curriculum.ParsedContent{Text: text, SourceType: SourceText}
	if first := firstLine(text); first != "" && len([]rune(first)) <= 120 {
		out.Metadata.Title = first
	}
	return out
}

// parseMarkdown turns each ATX heading into a page section. Content before
// the first heading becomes an untitled section.
func parseMarkdown(s string) curriculum.ParsedContent {
	text := normalizeNewlines(s)
	out := curriculum.ParsedContent{SourceType: SourceMarkdown}

	var (
		cur  *curriculum.Section
		body strings.Builder
	)
	flush := func() {
		if cur == nil {
			if strings.TrimSpace(body.String()) != "" {
				out.Sections = append(out.Sections, curriculum.Section{
					Type:    curriculum.SectionPage,
					Content: strings.TrimSpace(body.String()),
				})
			}
		} else {
			cur.Content = strings.TrimSpace(body.String())
			out.Sections = append(out.Sections, *cur)
		}
		body.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		level, title := headingOf(line)
		if level == 0 {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}
		if level == 1 && out.Metadata.Title == "" && cur == nil && strings.TrimSpace(body.String()) == "" {
			out.Metadata.Title = title
			continue
		}
		flush()
		cur = &curriculum.Section{Type: curriculum.SectionPage, Title: title}
	}
	flush()

	if len(out.Sections) == 0 {
		out.Text = text
		return out
	}
	out.Text = curriculum.RenderSections(out.Sections)
	return out
}

func headingOf(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && level < 6 && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level >= len(trimmed) || trimmed[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(trimmed[level:])
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
