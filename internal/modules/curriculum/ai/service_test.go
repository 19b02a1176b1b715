package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/platform/openai"
)

func TestDetectStructureFallbackKeys(t *testing.T) {
	llm := &fakeLLM{replies: []fakeReply{{out: obj{
		"course": obj{"name": "Module 1: Algebra I"},
		"units": list{
			obj{"name": "Linear Equations", "topics": list{"Intro", obj{"title": "Practice", "summary": "Work problems."}}},
		},
		"assignments": list{obj{"title": "Quiz 1", "module": "Linear Equations"}},
	}}}}
	svc := newTestService(llm, Config{})

	res, err := svc.DetectStructure(context.Background(), curriculum.ParsedContent{Text: "Algebra I syllabus", SourceType: "text"})
	if err != nil {
		t.Fatalf("DetectStructure: %v", err)
	}
	if res.Course.Title != "Algebra I" {
		t.Fatalf("course title = %q", res.Course.Title)
	}
	if len(res.Modules) != 1 || res.Modules[0].ID != "module_1" || res.Modules[0].Title != "Linear Equations" {
		t.Fatalf("modules = %+v", res.Modules)
	}
	if got := res.Modules[0].Lessons; len(got) != 2 || got[1].ID != "lesson_1_2" || got[1].Description != "Work problems." {
		t.Fatalf("lessons = %+v", got)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].ModuleID != "module_1" || res.Tasks[0].ID != "task_1" {
		t.Fatalf("tasks = %+v", res.Tasks)
	}
	if llm.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", llm.callCount())
	}
}

func TestDetectStructureEmptyOutputUsesMetadataAndPlaceholder(t *testing.T) {
	svc := newTestService(&fakeLLM{}, Config{})
	res, err := svc.DetectStructure(context.Background(), curriculum.ParsedContent{
		Text:     "notes",
		Metadata: curriculum.SourceMetadata{Title: "Biology"},
	})
	if err != nil {
		t.Fatalf("DetectStructure: %v", err)
	}
	if res.Course.Title != "Biology" {
		t.Fatalf("course title = %q", res.Course.Title)
	}
	if len(res.Modules) != 1 || res.Modules[0].Title != curriculum.PlaceholderModuleTitle {
		t.Fatalf("expected placeholder module, got %+v", res.Modules)
	}
}

func TestDetectStructureTruncatesSummary(t *testing.T) {
	llm := &fakeLLM{}
	svc := newTestService(llm, Config{SummaryChars: 50})
	text := strings.Repeat("a", 120)
	if _, err := svc.DetectStructure(context.Background(), curriculum.ParsedContent{Text: text}); err != nil {
		t.Fatalf("DetectStructure: %v", err)
	}
	user := llm.calls[0].user
	if !strings.Contains(user, TruncationMarker) {
		t.Fatalf("expected truncation marker in prompt")
	}
	if strings.Contains(user, strings.Repeat("a", 51)) {
		t.Fatalf("summary not truncated to 50 chars")
	}
}

func sectionedContent(n int) curriculum.ParsedContent {
	var sections []curriculum.Section
	for i := 0; i < n; i++ {
		sections = append(sections, curriculum.Section{
			Type:    curriculum.SectionModule,
			Title:   fmt.Sprintf("Section %d", i+1),
			Content: strings.Repeat("x", 800),
		})
	}
	return curriculum.ParsedContent{
		Text:       curriculum.RenderSections(sections),
		Sections:   sections,
		SourceType: "json_export",
	}
}

func TestDetectStructureChunkedToleratesFailures(t *testing.T) {
	llm := &fakeLLM{respond: func(user string) (map[string]any, error) {
		switch {
		case strings.Contains(user, "part 1 of 3"):
			return obj{"course": obj{"title": "Life Science"}, "modules": list{obj{"title": "Cells"}}}, nil
		case strings.Contains(user, "part 2 of 3"):
			return nil, &openai.StatusError{Status: 503, Err: errors.New("unavailable")}
		case strings.Contains(user, "part 3 of 3"):
			return obj{"modules": list{obj{"title": "Genetics", "lessons": list{"DNA"}}}}, nil
		}
		return nil, errors.New("unexpected prompt")
	}}
	svc := newTestService(llm, Config{MaxChunkChars: 1000})

	res, err := svc.DetectStructure(context.Background(), sectionedContent(3))
	if err != nil {
		t.Fatalf("DetectStructure: %v", err)
	}
	if llm.callCount() != 3 {
		t.Fatalf("calls = %d, want 3", llm.callCount())
	}
	if res.Course.Title != "Life Science" {
		t.Fatalf("course title = %q", res.Course.Title)
	}
	if len(res.Modules) != 2 || res.Modules[0].Title != "Cells" || res.Modules[1].Title != "Genetics" {
		t.Fatalf("modules = %+v", res.Modules)
	}
	if res.Modules[1].ID != "module_2" || res.Modules[1].Lessons[0].ID != "lesson_2_1" {
		t.Fatalf("merged ids not renumbered: %+v", res.Modules[1])
	}
}

func TestDetectStructureChunkWithoutModulesAddsNoPlaceholder(t *testing.T) {
	llm := &fakeLLM{respond: func(user string) (map[string]any, error) {
		if strings.Contains(user, "part 1 of 2") {
			return obj{"modules": list{obj{"title": "Cells"}}}, nil
		}
		return obj{}, nil
	}}
	svc := newTestService(llm, Config{MaxChunkChars: 1000})
	res, err := svc.DetectStructure(context.Background(), sectionedContent(2))
	if err != nil {
		t.Fatalf("DetectStructure: %v", err)
	}
	if len(res.Modules) != 1 || res.Modules[0].Title != "Cells" {
		t.Fatalf("modules = %+v", res.Modules)
	}
}

func TestDetectStructureAllChunksFail(t *testing.T) {
	llm := &fakeLLM{respond: func(string) (map[string]any, error) {
		return nil, &openai.StatusError{Status: 502, Err: errors.New("bad gateway")}
	}}
	svc := newTestService(llm, Config{MaxChunkChars: 1000})
	_, err := svc.DetectStructure(context.Background(), sectionedContent(3))
	if err == nil {
		t.Fatalf("expected error when every chunk fails")
	}
	if !IsTransient(err) {
		t.Fatalf("upstream 502 should stay transient: %v", err)
	}
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Op != OpDetectStructure {
		t.Fatalf("expected GenerationError for %s, got %v", OpDetectStructure, err)
	}
}

func TestMalformedOutputIsNotTransient(t *testing.T) {
	llm := &fakeLLM{replies: []fakeReply{{err: fmt.Errorf("%w: not an object", openai.ErrMalformedJSON)}}}
	svc := newTestService(llm, Config{})
	_, err := svc.DetectStructure(context.Background(), curriculum.ParsedContent{Text: "x"})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("malformed output must not be transient")
	}
}

func sampleStructure() curriculum.StructureResult {
	s := curriculum.StructureResult{
		Course: curriculum.CourseInfo{Title: "Algebra I", Description: "Equations and graphs."},
		Modules: []curriculum.ModuleDraft{{
			Title: "Linear Equations",
			Lessons: []curriculum.LessonDraft{
				{Title: "One-step equations"},
				{Title: "Two-step equations"},
			},
		}},
	}
	s.Renumber()
	return s
}

func TestAlignPhilosophyPreserveKeepsLayout(t *testing.T) {
	llm := &fakeLLM{replies: []fakeReply{{out: obj{
		"course": obj{"title": "Exploring Algebra"},
		"modules": list{
			obj{"title": "Balancing Acts", "lessons": list{obj{"title": "Undo one move"}}},
			obj{"title": "Extra module"},
		},
		"changes":                    list{"Reframed module as exploration"},
		"philosophy_alignment_score": 85,
	}}}}
	svc := newTestService(llm, Config{})

	res, err := svc.AlignPhilosophy(context.Background(), sampleStructure(), curriculum.TransformationLevel("light"), true)
	if err != nil {
		t.Fatalf("AlignPhilosophy: %v", err)
	}
	if len(res.Modules) != 1 || res.Modules[0].Title != "Balancing Acts" {
		t.Fatalf("modules = %+v", res.Modules)
	}
	lessons := res.Modules[0].Lessons
	if len(lessons) != 2 || lessons[0].Title != "Undo one move" || lessons[1].Title != "Two-step equations" {
		t.Fatalf("lessons = %+v", lessons)
	}
	if res.Course.Title != "Exploring Algebra" || res.Course.Description != "Equations and graphs." {
		t.Fatalf("course = %+v", res.Course)
	}
	if res.AlignmentScore != 0.85 {
		t.Fatalf("score = %v, want 0.85", res.AlignmentScore)
	}
	if len(res.TransformationNotes) != 1 {
		t.Fatalf("notes = %v", res.TransformationNotes)
	}
	if !strings.Contains(llm.calls[0].user, "PRESERVE STRUCTURE") {
		t.Fatalf("preserve flag not passed to prompt")
	}
}

func TestAlignPhilosophyEmptyOutputKeepsInput(t *testing.T) {
	svc := newTestService(&fakeLLM{}, Config{})
	in := sampleStructure()
	res, err := svc.AlignPhilosophy(context.Background(), in, "", false)
	if err != nil {
		t.Fatalf("AlignPhilosophy: %v", err)
	}
	if len(res.Modules) != 1 || res.Modules[0].Title != "Linear Equations" || len(res.Modules[0].Lessons) != 2 {
		t.Fatalf("expected input structure, got %+v", res.Modules)
	}
	if len(res.TransformationNotes) != 1 {
		t.Fatalf("expected fallback note, got %v", res.TransformationNotes)
	}
}

func project(title, objective string) obj {
	return obj{
		"title":            title,
		"description":      "Build something real.",
		"source_objective": objective,
		"lessons": list{obj{
			"title": "Start",
			"steps": list{obj{"type": "text", "content": "Look around you."}},
		}},
	}
}

func TestGenerateCourseContentMatchesObjectives(t *testing.T) {
	llm := &fakeLLM{replies: []fakeReply{{out: obj{
		"course": obj{"title": "Algebra Quests"},
		"projects": list{
			project("Graph your walk", "  graph LINES "),
			project("Balance a mobile", "solve linear equations"),
		},
	}}}}
	svc := newTestService(llm, Config{})
	objectives := []string{"Solve linear equations", "Graph lines"}

	res, err := svc.GenerateCourseContent(context.Background(), curriculum.AlignmentResult{StructureResult: sampleStructure()}, objectives)
	if err != nil {
		t.Fatalf("GenerateCourseContent: %v", err)
	}
	if len(res.Projects) != 2 {
		t.Fatalf("projects = %d", len(res.Projects))
	}
	if res.Projects[0].SourceObjective != "Graph lines" || res.Projects[1].SourceObjective != "Solve linear equations" {
		t.Fatalf("objectives not written back exactly: %q, %q", res.Projects[0].SourceObjective, res.Projects[1].SourceObjective)
	}
	if got := res.Projects[0].Lessons[0].Steps; len(got) != 1 || got[0].Content != "Look around you." {
		t.Fatalf("steps = %+v", got)
	}
}

func TestGenerateCourseContentRetriesOnCountMismatch(t *testing.T) {
	llm := &fakeLLM{replies: []fakeReply{
		{out: obj{"projects": list{project("Only one", "Solve linear equations")}}},
		{out: obj{"projects": list{project("One", "graph lines"), project("Two", "Solve linear equations")}}},
	}}
	svc := newTestService(llm, Config{})
	objectives := []string{"Solve linear equations", "Graph lines"}

	res, err := svc.GenerateCourseContent(context.Background(), curriculum.AlignmentResult{StructureResult: sampleStructure()}, objectives)
	if err != nil {
		t.Fatalf("GenerateCourseContent: %v", err)
	}
	if llm.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", llm.callCount())
	}
	if !strings.Contains(llm.calls[1].user, "previous answer was rejected") {
		t.Fatalf("retry prompt missing correction note")
	}
	if res.Projects[0].SourceObjective != objectives[1] || res.Projects[1].SourceObjective != objectives[0] {
		t.Fatalf("objectives not matched by name: %+v", res.Projects)
	}
	if res.Course.Title != "Algebra I" {
		t.Fatalf("course title fallback = %q", res.Course.Title)
	}
}

func TestGenerateCourseContentRetriesOnMissingObjective(t *testing.T) {
	llm := &fakeLLM{replies: []fakeReply{
		{out: obj{"projects": list{project("One", ""), project("Two", "Graph lines")}}},
		{out: obj{"projects": list{project("One", "Solve linear equations"), project("Two", "Graph lines")}}},
	}}
	svc := newTestService(llm, Config{GenerationAttempts: 2})

	res, err := svc.GenerateCourseContent(context.Background(), curriculum.AlignmentResult{StructureResult: sampleStructure()}, []string{"Solve linear equations", "Graph lines"})
	if err != nil {
		t.Fatalf("GenerateCourseContent: %v", err)
	}
	if llm.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", llm.callCount())
	}
	if res.Projects[0].SourceObjective != "Solve linear equations" {
		t.Fatalf("objective = %q", res.Projects[0].SourceObjective)
	}
}

func TestGenerateCourseContentValidationError(t *testing.T) {
	llm := &fakeLLM{replies: []fakeReply{{out: obj{"projects": list{
		project("One", "Solve linear equations"),
		project("Two", "Something else"),
	}}}}}
	svc := newTestService(llm, Config{GenerationAttempts: 2})

	_, err := svc.GenerateCourseContent(context.Background(), curriculum.AlignmentResult{}, []string{"Solve linear equations", "Graph lines"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if IsTransient(err) {
		t.Fatalf("validation errors are not transient")
	}
	if llm.callCount() != 2 {
		t.Fatalf("calls = %d, want 2", llm.callCount())
	}
}

func TestGenerateWithoutObjectivesNeedsProjects(t *testing.T) {
	svc := newTestService(&fakeLLM{}, Config{GenerationAttempts: 1})
	_, err := svc.GenerateCourseContent(context.Background(), curriculum.AlignmentResult{}, nil)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty output, got %v", err)
	}
}

func TestGenerateFromTopic(t *testing.T) {
	svc := newTestService(&fakeLLM{}, Config{})
	if _, err := svc.GenerateFromTopic(context.Background(), "   ", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank topic, got %v", err)
	}

	llm := &fakeLLM{replies: []fakeReply{{out: obj{"quests": list{
		obj{"name": "Read the sky", "lessons": list{obj{"title": "Night one", "content": "Go outside after dark."}}},
	}}}}}
	svc = newTestService(llm, Config{})
	res, err := svc.GenerateFromTopic(context.Background(), "astronomy basics", nil)
	if err != nil {
		t.Fatalf("GenerateFromTopic: %v", err)
	}
	if res.Course.Title != "Astronomy basics" {
		t.Fatalf("course title = %q", res.Course.Title)
	}
	steps := res.Projects[0].Lessons[0].Steps
	if len(steps) != 1 || steps[0].Type != curriculum.StepText || steps[0].Content != "Go outside after dark." {
		t.Fatalf("steps = %+v", steps)
	}
}
