package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/optio-learning/optio-backend/internal/domain/course"
	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

var ErrInvalidContent = errors.New("generated content is not publishable")

// BuildInput carries the ownership and provenance of a course being built.
type BuildInput struct {
	OwnerUserID uuid.UUID
	UploadID    *uuid.UUID
	Source      string
	Metadata    map[string]any
}

// BuildCourse cleans a GenerationResult and shapes it into a course tree
// ready for insertion. Quests and lessons are ordered by their Order field
// and renumbered from 1.
func BuildCourse(gen curriculum.GenerationResult, in BuildInput) (*course.Course, error) {
	title := CleanTitle(gen.Course.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: course title is empty", ErrInvalidContent)
	}
	if len(gen.Projects) == 0 {
		return nil, fmt.Errorf("%w: no projects", ErrInvalidContent)
	}
	desc := CleanCourseDescription(gen.Course.Description)
	if desc == "" {
		desc = fmt.Sprintf("Explore %s.", title)
	}
	meta, err := toJSON(in.Metadata)
	if err != nil {
		return nil, err
	}
	c := &course.Course{
		ID:          uuid.New(),
		OwnerUserID: in.OwnerUserID,
		UploadID:    in.UploadID,
		Title:       title,
		Description: desc,
		Status:      course.StatusDraft,
		Source:      in.Source,
		Metadata:    meta,
	}

	projects := make([]curriculum.ProjectResult, len(gen.Projects))
	copy(projects, gen.Projects)
	sort.SliceStable(projects, func(i, j int) bool { return projects[i].Order < projects[j].Order })

	for i, p := range projects {
		q, err := buildQuest(p, i+1)
		if err != nil {
			return nil, err
		}
		q.CourseID = c.ID
		c.Quests = append(c.Quests, q)
	}
	return c, nil
}

func buildQuest(p curriculum.ProjectResult, order int) (course.Quest, error) {
	title := CleanTitle(p.Title)
	if title == "" {
		title = fmt.Sprintf("Project %d", order)
	}
	bigIdea := Truncate(CleanText(p.BigIdea), MaxBigIdeaLength)
	desc := CleanProjectDescription(p.Description)
	if desc == "" {
		desc = bigIdea
	}
	q := course.Quest{
		ID:              uuid.New(),
		Title:           title,
		Description:     desc,
		BigIdea:         bigIdea,
		OrderIndex:      order,
		SourceObjective: p.SourceObjective,
	}

	lessons := make([]curriculum.LessonResult, len(p.Lessons))
	copy(lessons, p.Lessons)
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
	for j, l := range lessons {
		lesson, err := buildLesson(l, j+1)
		if err != nil {
			return q, err
		}
		lesson.QuestID = q.ID
		q.Lessons = append(q.Lessons, lesson)
	}
	return q, nil
}

func buildLesson(l curriculum.LessonResult, order int) (course.Lesson, error) {
	title := CleanTitle(l.Title)
	if title == "" {
		title = fmt.Sprintf("Lesson %d", order)
	}
	desc := Truncate(CleanText(StripInstructorVoice(l.Description)), MaxDescriptionLength)
	steps := NormalizeSteps(l.Steps)
	if len(steps) == 0 {
		body := desc
		if body == "" {
			body = title
		}
		steps = []curriculum.Step{{ID: uuid.NewString(), Type: curriculum.StepText, Content: body, Order: 1}}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return course.Lesson{}, fmt.Errorf("encode lesson steps: %w", err)
	}
	return course.Lesson{
		ID:          uuid.New(),
		Title:       title,
		Description: desc,
		OrderIndex:  order,
		Steps:       datatypes.JSON(raw),
	}, nil
}

// NormalizeSteps coerces step types to text, video or file, cleans text,
// drops empty steps and renumbers the rest.
func NormalizeSteps(in []curriculum.Step) []curriculum.Step {
	ordered := make([]curriculum.Step, len(in))
	copy(ordered, in)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	out := make([]curriculum.Step, 0, len(ordered))
	for _, s := range ordered {
		s.Type = normalizeStepType(s.Type, s)
		s.Title = CleanTitle(s.Title)
		s.Content = CleanLessonContent(s.Content)
		s.VideoURL = strings.TrimSpace(s.VideoURL)
		switch s.Type {
		case curriculum.StepVideo:
			if s.VideoURL == "" && s.Content == "" {
				continue
			}
		case curriculum.StepFile:
			if len(s.Files) == 0 && s.Content == "" {
				continue
			}
		default:
			if s.Content == "" {
				continue
			}
		}
		if strings.TrimSpace(s.ID) == "" {
			s.ID = uuid.NewString()
		}
		s.Order = len(out) + 1
		out = append(out, s)
	}
	return out
}

func normalizeStepType(t string, s curriculum.Step) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case curriculum.StepVideo:
		return curriculum.StepVideo
	case curriculum.StepFile, "download", "attachment":
		return curriculum.StepFile
	case curriculum.StepText, "reading", "content", "":
		if s.VideoURL != "" {
			return curriculum.StepVideo
		}
		return curriculum.StepText
	default:
		return curriculum.StepText
	}
}

func toJSON(v map[string]any) (datatypes.JSON, error) {
	if len(v) == 0 {
		return datatypes.JSON([]byte("{}")), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode course metadata: %w", err)
	}
	return datatypes.JSON(raw), nil
}
