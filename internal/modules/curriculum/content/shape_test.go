package content

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/optio-learning/optio-backend/internal/domain/course"
	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

func TestBuildCourse(t *testing.T) {
	uploadID := uuid.New()
	gen := curriculum.GenerationResult{
		Course: curriculum.CourseInfo{Title: "Module 1: Algebra", Description: "Welcome to class! Equations describe balance."},
		Projects: []curriculum.ProjectResult{
			{Title: "Second", Order: 2, SourceObjective: "Graph lines", Lessons: []curriculum.LessonResult{{Title: "Plot", Order: 1}}},
			{
				Title:           "First",
				Order:           1,
				Description:     "In this project, you balance equations.",
				SourceObjective: "Solve equations",
				Lessons: []curriculum.LessonResult{
					{Title: "Lesson 2: Two steps", Order: 2, Steps: []curriculum.Step{{Type: "reading", Content: "Undo operations in reverse.", Order: 1}}},
					{Title: "One step", Order: 1, Steps: []curriculum.Step{
						{Type: "video", VideoURL: "https://example.com/v", Order: 2},
						{Type: "text", Content: "   ", Order: 1},
						{Type: "quiz", Content: "Try x + 2 = 5.", Order: 3},
					}},
				},
			},
		},
	}
	c, err := BuildCourse(gen, BuildInput{OwnerUserID: uuid.New(), UploadID: &uploadID, Source: course.SourceUpload})
	if err != nil {
		t.Fatalf("BuildCourse: %v", err)
	}
	if c.Title != "Algebra" || c.Description != "Equations describe balance." {
		t.Fatalf("course=%q / %q", c.Title, c.Description)
	}
	if len(c.Quests) != 2 || c.Quests[0].Title != "First" || c.Quests[0].OrderIndex != 1 {
		t.Fatalf("quests not ordered: %+v", c.Quests)
	}
	q := c.Quests[0]
	if q.CourseID != c.ID || q.SourceObjective != "Solve equations" || q.Description != "You balance equations." {
		t.Fatalf("quest=%+v", q)
	}
	if len(q.Lessons) != 2 || q.Lessons[0].Title != "One step" || q.Lessons[1].Title != "Two steps" {
		t.Fatalf("lessons=%+v", q.Lessons)
	}
	var steps []curriculum.Step
	if err := json.Unmarshal(q.Lessons[0].Steps, &steps); err != nil {
		t.Fatalf("decode steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps=%+v", steps)
	}
	if steps[0].Type != curriculum.StepVideo || steps[0].Order != 1 || steps[1].Type != curriculum.StepText || steps[1].ID == "" {
		t.Fatalf("steps not normalized: %+v", steps)
	}

	var fallback []curriculum.Step
	if err := json.Unmarshal(c.Quests[1].Lessons[0].Steps, &fallback); err != nil || len(fallback) != 1 || fallback[0].Content != "Plot" {
		t.Fatalf("empty lesson should get a text step: %+v err=%v", fallback, err)
	}
}

func TestBuildCourseRejectsEmpty(t *testing.T) {
	_, err := BuildCourse(curriculum.GenerationResult{Course: curriculum.CourseInfo{Title: "X"}}, BuildInput{})
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected ErrInvalidContent, got %v", err)
	}
	_, err = BuildCourse(curriculum.GenerationResult{Projects: []curriculum.ProjectResult{{Title: "P"}}}, BuildInput{})
	if !errors.Is(err, ErrInvalidContent) {
		t.Fatalf("expected ErrInvalidContent for missing title, got %v", err)
	}
}
