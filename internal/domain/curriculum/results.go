package curriculum

import "fmt"

// StructureResult is the stage 2 output and the object a human reviews.
type StructureResult struct {
	Course         CourseInfo    `json:"course"`
	Modules        []ModuleDraft `json:"modules"`
	Tasks          []TaskDraft   `json:"tasks,omitempty"`
	CurriculumType string        `json:"curriculum_type,omitempty"`
}

type CourseInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ModuleDraft struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Order       int           `json:"order"`
	Lessons     []LessonDraft `json:"lessons"`
}

type LessonDraft struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
	Content     string `json:"content,omitempty"`
}

type TaskDraft struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ModuleID    string `json:"module_id,omitempty"`
}

// AlignmentResult is the stage 3 output. AlignmentScore is advisory only.
type AlignmentResult struct {
	StructureResult
	TransformationNotes []string `json:"transformation_notes"`
	AlignmentScore      float64  `json:"alignment_score"`
}

// GenerationResult is the stage 4 output and the topic-generation output.
type GenerationResult struct {
	Course   CourseInfo      `json:"course"`
	Projects []ProjectResult `json:"projects"`
}

type ProjectResult struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	BigIdea         string         `json:"big_idea,omitempty"`
	Order           int            `json:"order"`
	SourceObjective string         `json:"source_objective,omitempty"`
	Lessons         []LessonResult `json:"lessons"`
}

type LessonResult struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
	Steps       []Step `json:"steps"`
}

// Step types within a lesson.
const (
	StepText  = "text"
	StepVideo = "video"
	StepFile  = "file"
)

type Step struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content"`
	Order    int      `json:"order"`
	VideoURL string   `json:"video_url,omitempty"`
	Files    []string `json:"files,omitempty"`
}

// StructureEdits maps an element id ("course" or a module/lesson/task id)
// to a partial field update.
type StructureEdits map[string]map[string]any

// PlaceholderModuleTitle names the module inserted when detection found none.
const PlaceholderModuleTitle = "Main Module"

// Renumber assigns sequential ids and orders to modules, lessons and tasks.
// Task module references follow their module to its new id.
func (s *StructureResult) Renumber() {
	remap := map[string]string{}
	for i := range s.Modules {
		m := &s.Modules[i]
		newID := fmt.Sprintf("module_%d", i+1)
		if m.ID != "" {
			if _, dup := remap[m.ID]; !dup {
				remap[m.ID] = newID
			}
		}
		m.ID = newID
		m.Order = i + 1
		for j := range m.Lessons {
			m.Lessons[j].ID = fmt.Sprintf("lesson_%d_%d", i+1, j+1)
			m.Lessons[j].Order = j + 1
		}
	}
	for k := range s.Tasks {
		t := &s.Tasks[k]
		t.ID = fmt.Sprintf("task_%d", k+1)
		if t.ModuleID != "" {
			t.ModuleID = remap[t.ModuleID]
		}
	}
}

// LessonCount totals lessons across modules.
func (s StructureResult) LessonCount() int {
	n := 0
	for _, m := range s.Modules {
		n += len(m.Lessons)
	}
	return n
}
