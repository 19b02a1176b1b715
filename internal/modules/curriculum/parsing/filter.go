package parsing

import "github.com/optio-learning/optio-backend/internal/domain/curriculum"

// DefaultContentTypes applies when an upload supplies no content-type flags.
var DefaultContentTypes = map[string]bool{
	"modules":     true,
	"assignments": true,
	"quizzes":     true,
	"pages":       true,
	"discussions": false,
	"files":       false,
}

// FilterByContentTypes drops sections whose type is disabled. A nil flags
// map means DefaultContentTypes; otherwise flags missing from the map, and
// section types without a flag, are kept. Sectionless content is returned
// unchanged.
func FilterByContentTypes(parsed curriculum.ParsedContent, flags map[string]bool) curriculum.ParsedContent {
	if len(parsed.Sections) == 0 {
		return parsed
	}
	if flags == nil {
		flags = DefaultContentTypes
	}
	out := parsed
	out.Sections = make([]curriculum.Section, 0, len(parsed.Sections))
	for _, s := range parsed.Sections {
		flag, known := curriculum.ContentTypeFlag(s.Type)
		if known {
			if enabled, set := flags[flag]; set && !enabled {
				continue
			}
		}
		out.Sections = append(out.Sections, s)
	}
	out.Text = curriculum.RenderSections(out.Sections)
	return out
}
