package ai

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

// Fallback paths for reading model output. Models drift between key
// names; the first path that yields a usable value wins.
var (
	courseTitlePaths       = []string{"course.title", "course.name", "course_title", "metadata.title", "title", "name"}
	courseDescriptionPaths = []string{"course.description", "course.summary", "course_description", "metadata.description", "description", "summary"}
	modulePaths            = []string{"modules", "course.modules", "units", "sections", "structure.modules"}
	lessonPaths            = []string{"lessons", "items", "topics"}
	taskPaths              = []string{"tasks", "assignments", "activities", "course.tasks"}
	projectPaths           = []string{"projects", "quests", "course.projects", "modules"}
	stepPaths              = []string{"steps", "content_steps"}
	notePaths              = []string{"transformation_notes", "notes", "changes"}
	scorePaths             = []string{"alignment_score", "philosophy_alignment_score", "score"}

	titleKeys       = []string{"title", "name", "module_title", "lesson_title"}
	descriptionKeys = []string{"description", "summary", "overview"}
	bodyKeys        = []string{"content", "body", "text", "markdown"}
	bigIdeaKeys     = []string{"big_idea", "bigIdea", "big_idea_statement", "driving_question"}
	objectiveKeys   = []string{"source_objective", "learning_objective", "objective"}
	orderKeys       = []string{"order", "order_index", "position"}
)

// lookup follows a dotted path through nested maps.
func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func firstString(m map[string]any, paths ...string) string {
	for _, p := range paths {
		v, ok := lookup(m, p)
		if !ok {
			continue
		}
		if s := scalarString(v); s != "" {
			return s
		}
	}
	return ""
}

func firstList(m map[string]any, paths ...string) []any {
	for _, p := range paths {
		v, ok := lookup(m, p)
		if !ok {
			continue
		}
		if list, ok := v.([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

func firstNumber(m map[string]any, paths ...string) (float64, bool) {
	for _, p := range paths {
		v, ok := lookup(m, p)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64, int, bool:
		return strings.TrimSpace(fmt.Sprint(t))
	default:
		return ""
	}
}

func stringList(m map[string]any, paths ...string) []string {
	var out []string
	for _, item := range firstList(m, paths...) {
		if s := scalarString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// titledItem reads a list element that is either a bare title string or
// an object.
func titledItem(item any) (map[string]any, string) {
	switch v := item.(type) {
	case string:
		return map[string]any{}, strings.TrimSpace(v)
	case map[string]any:
		return v, firstString(v, titleKeys...)
	default:
		return nil, ""
	}
}

func extractCourse(obj map[string]any) curriculum.CourseInfo {
	return curriculum.CourseInfo{
		Title:       firstString(obj, courseTitlePaths...),
		Description: firstString(obj, courseDescriptionPaths...),
	}
}

// extractStructure reads a structure object. Modules without a title are
// dropped; a structure with no modules gets the placeholder module.
func extractStructure(obj map[string]any) curriculum.StructureResult {
	out := curriculum.StructureResult{
		Course:         extractCourse(obj),
		CurriculumType: firstString(obj, "curriculum_type", "course.type", "type"),
	}
	titleToID := map[string]string{}
	for _, item := range firstList(obj, modulePaths...) {
		m, title := titledItem(item)
		if m == nil || title == "" {
			continue
		}
		mod := curriculum.ModuleDraft{
			ID:          firstString(m, "id"),
			Title:       title,
			Description: firstString(m, descriptionKeys...),
		}
		for _, li := range firstList(m, lessonPaths...) {
			lm, lt := titledItem(li)
			if lm == nil || lt == "" {
				continue
			}
			mod.Lessons = append(mod.Lessons, curriculum.LessonDraft{
				Title:       lt,
				Description: firstString(lm, descriptionKeys...),
				Content:     firstString(lm, bodyKeys...),
			})
		}
		if mod.ID == "" {
			mod.ID = fmt.Sprintf("module_%d", len(out.Modules)+1)
		}
		titleToID[strings.ToLower(title)] = mod.ID
		out.Modules = append(out.Modules, mod)
	}
	for _, item := range firstList(obj, taskPaths...) {
		tm, tt := titledItem(item)
		if tm == nil || tt == "" {
			continue
		}
		task := curriculum.TaskDraft{
			Title:       tt,
			Description: firstString(tm, descriptionKeys...),
		}
		if ref := firstString(tm, "module_id", "module", "module_title"); ref != "" {
			if id, ok := titleToID[strings.ToLower(ref)]; ok {
				task.ModuleID = id
			} else {
				for _, m := range out.Modules {
					if m.ID == ref {
						task.ModuleID = ref
						break
					}
				}
			}
		}
		out.Tasks = append(out.Tasks, task)
	}
	if len(out.Modules) == 0 {
		out.Modules = []curriculum.ModuleDraft{{Title: curriculum.PlaceholderModuleTitle}}
	}
	out.Renumber()
	return out
}

func extractAlignment(obj map[string]any) curriculum.AlignmentResult {
	out := curriculum.AlignmentResult{
		StructureResult:     extractStructure(obj),
		TransformationNotes: stringList(obj, notePaths...),
	}
	if score, ok := firstNumber(obj, scorePaths...); ok {
		out.AlignmentScore = normalizeScore(score)
	}
	return out
}

// normalizeScore maps a 0-1 or 0-100 score onto [0, 1].
func normalizeScore(s float64) float64 {
	if s > 1 {
		s /= 100
	}
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

func extractGeneration(obj map[string]any) curriculum.GenerationResult {
	out := curriculum.GenerationResult{Course: extractCourse(obj)}
	for i, item := range firstList(obj, projectPaths...) {
		pm, title := titledItem(item)
		if pm == nil || title == "" {
			continue
		}
		p := curriculum.ProjectResult{
			Title:           title,
			Description:     firstString(pm, descriptionKeys...),
			BigIdea:         firstString(pm, bigIdeaKeys...),
			SourceObjective: firstString(pm, objectiveKeys...),
			Order:           orderOf(pm, i+1),
		}
		for j, li := range firstList(pm, "lessons", "tasks") {
			lm, lt := titledItem(li)
			if lm == nil || lt == "" {
				continue
			}
			p.Lessons = append(p.Lessons, curriculum.LessonResult{
				Title:       lt,
				Description: firstString(lm, descriptionKeys...),
				Order:       orderOf(lm, j+1),
				Steps:       extractSteps(lm),
			})
		}
		out.Projects = append(out.Projects, p)
	}
	return out
}

func extractSteps(lesson map[string]any) []curriculum.Step {
	var steps []curriculum.Step
	for k, item := range firstList(lesson, stepPaths...) {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				steps = append(steps, curriculum.Step{Type: curriculum.StepText, Content: s, Order: k + 1})
			}
		case map[string]any:
			steps = append(steps, curriculum.Step{
				Type:     strings.ToLower(firstString(v, "type", "kind")),
				Title:    firstString(v, "title"),
				Content:  firstString(v, bodyKeys...),
				Order:    orderOf(v, k+1),
				VideoURL: firstString(v, "video_url", "videoUrl", "url"),
				Files:    stringList(v, "files"),
			})
		}
	}
	if len(steps) == 0 {
		if body := firstString(lesson, bodyKeys...); body != "" {
			steps = append(steps, curriculum.Step{Type: curriculum.StepText, Content: body, Order: 1})
		}
	}
	return steps
}

func orderOf(m map[string]any, def int) int {
	if n, ok := firstNumber(m, orderKeys...); ok && n >= 1 {
		return int(n)
	}
	return def
}
