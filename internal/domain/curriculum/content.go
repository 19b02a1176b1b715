package curriculum

import "strings"

// Section types recognized in structured exports.
const (
	SectionModule     = "module"
	SectionAssignment = "assignment"
	SectionQuiz       = "quiz"
	SectionPage       = "page"
	SectionDiscussion = "discussion"
	SectionFile       = "file"
	SectionUnknown    = "unknown"
)

// ContentTypeFlag maps a section type to the content-type flag gating it.
// Unknown types have no flag.
func ContentTypeFlag(sectionType string) (string, bool) {
	switch sectionType {
	case SectionModule:
		return "modules", true
	case SectionAssignment:
		return "assignments", true
	case SectionQuiz:
		return "quizzes", true
	case SectionPage:
		return "pages", true
	case SectionDiscussion:
		return "discussions", true
	case SectionFile:
		return "files", true
	default:
		return "", false
	}
}

// ParsedContent is the normalized output of stage 1.
type ParsedContent struct {
	Text       string         `json:"text"`
	Sections   []Section      `json:"sections,omitempty"`
	Metadata   SourceMetadata `json:"metadata"`
	SourceType string         `json:"source_type"`
}

type Section struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type SourceMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// ContentChunk is a bounded slice of a ParsedContent.
type ContentChunk struct {
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	Text        string    `json:"text"`
	Sections    []Section `json:"sections,omitempty"`
	SourceType  string    `json:"source_type"`
}

// Render is the canonical text form of a section. Chunk text and the
// text of a sectioned ParsedContent are concatenations of rendered sections.
func (s Section) Render() string {
	title := strings.TrimSpace(s.Title)
	body := strings.TrimSpace(s.Content)
	switch {
	case title == "" && body == "":
		return ""
	case title == "":
		return body + "\n\n"
	case body == "":
		return title + "\n\n"
	default:
		return title + "\n\n" + body + "\n\n"
	}
}

// RenderSections concatenates rendered sections in order.
func RenderSections(sections []Section) string {
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.Render())
	}
	return b.String()
}
