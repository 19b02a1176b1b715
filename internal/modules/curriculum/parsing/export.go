package parsing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

// Collections read from keyed exports, in output order.
var exportCollections = []string{"modules", "pages", "assignments", "quizzes", "discussions", "files"}

// parseExport accepts either a flat {title, description, sections: [...]}
// document or an LMS-style export keyed by collection name. Array fields it
// does not recognize are kept as sections of type unknown.
func parseExport(data []byte) (curriculum.ParsedContent, error) {
	out := curriculum.ParsedContent{SourceType: SourceJSONExport}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return out, fmt.Errorf("%w: invalid JSON export: %v", ErrUnsupportedFormat, err)
	}

	course := asMap(doc["course"])
	out.Metadata.Title = firstNonEmpty(str(course, "title"), str(course, "name"), str(doc, "title"), str(doc, "name"))
	out.Metadata.Description = stripHTML(firstNonEmpty(str(course, "description"), str(course, "syllabus_body"), str(doc, "description")))

	if raw, ok := doc["sections"].([]any); ok {
		for _, item := range raw {
			m := asMap(item)
			if m == nil {
				continue
			}
			out.Sections = append(out.Sections, sectionFrom(str(m, "type"), m))
		}
	}

	seen := map[string]bool{"sections": true, "course": true}
	for _, key := range exportCollections {
		seen[key] = true
		for _, item := range asSlice(doc[key]) {
			out.Sections = append(out.Sections, sectionFrom(key, item))
		}
	}

	var extra []string
	for key, v := range doc {
		if seen[key] {
			continue
		}
		if items := asSlice(v); len(items) > 0 {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		for _, item := range asSlice(doc[key]) {
			out.Sections = append(out.Sections, sectionFrom(key, item))
		}
	}

	out.Text = curriculum.RenderSections(out.Sections)
	return out, nil
}

func sectionFrom(rawType string, m map[string]any) curriculum.Section {
	typ := NormalizeSectionType(rawType)
	sec := curriculum.Section{
		Type:  typ,
		Title: firstNonEmpty(str(m, "title"), str(m, "name"), str(m, "display_name"), str(m, "filename")),
	}
	body := firstNonEmpty(str(m, "content"), str(m, "body"), str(m, "description"), str(m, "message"), str(m, "text"))
	if items := asSlice(m["items"]); len(items) > 0 {
		var b strings.Builder
		b.WriteString(body)
		for _, it := range items {
			if t := firstNonEmpty(str(it, "title"), str(it, "name")); t != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString("- " + t)
			}
		}
		body = b.String()
	}
	sec.Content = stripHTML(body)

	meta := map[string]string{}
	if typ == curriculum.SectionUnknown && strings.TrimSpace(rawType) != "" {
		meta["original_type"] = strings.TrimSpace(rawType)
	}
	for k, v := range asMap(m["metadata"]) {
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	for _, k := range []string{"points_possible", "due_at", "url"} {
		if v, ok := m[k]; ok && v != nil {
			meta[k] = fmt.Sprint(v)
		}
	}
	if len(meta) > 0 {
		sec.Metadata = meta
	}
	return sec
}

// NormalizeSectionType maps export vocabulary to the known section types.
func NormalizeSectionType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "module", "modules", "unit", "units", "week", "weeks":
		return curriculum.SectionModule
	case "assignment", "assignments", "project", "homework":
		return curriculum.SectionAssignment
	case "quiz", "quizzes", "assessment", "assessments", "exam", "test":
		return curriculum.SectionQuiz
	case "page", "pages", "wiki_page", "wikipage", "lesson", "lessons", "reading":
		return curriculum.SectionPage
	case "discussion", "discussions", "discussion_topic", "discussion_topics", "forum":
		return curriculum.SectionDiscussion
	case "file", "files", "attachment", "attachments":
		return curriculum.SectionFile
	default:
		return curriculum.SectionUnknown
	}
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m := asMap(item); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
