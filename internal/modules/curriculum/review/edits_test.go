package review

import (
	"errors"
	"testing"

	"github.com/optio-learning/optio-backend/internal/data/repos/testutil"
	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

func TestApplyEdits(t *testing.T) {
	base := testutil.SampleStructure()
	edits := curriculum.StructureEdits{
		"module_1":   {"title": "Balancing Equations", "id": "module_9"},
		"lesson_1_2": {"description": "Two moves to isolate x."},
		"task_1":     {"title": "Build a balance"},
		"lesson_7_7": {"title": "ignored"},
	}
	got, err := ApplyEdits(base, edits)
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	m := got.Modules[0]
	if m.ID != "module_1" || m.Title != "Balancing Equations" {
		t.Fatalf("module = %+v", m)
	}
	if m.Lessons[1].Description != "Two moves to isolate x." || m.Lessons[1].Title != "Two-step equations" {
		t.Fatalf("lesson = %+v", m.Lessons[1])
	}
	if got.Tasks[0].Title != "Build a balance" || got.Tasks[0].ModuleID != "module_1" {
		t.Fatalf("task = %+v", got.Tasks[0])
	}
	if base.Modules[0].Title != "Linear Equations" {
		t.Fatalf("input structure mutated")
	}
}

func TestApplyEditsRejectsWrongTypes(t *testing.T) {
	_, err := ApplyEdits(testutil.SampleStructure(), curriculum.StructureEdits{"module_1": {"lessons": "not a list"}})
	if !errors.Is(err, ErrInvalidEdits) {
		t.Fatalf("err = %v, want ErrInvalidEdits", err)
	}
}

func TestApplyEditsReorders(t *testing.T) {
	base := testutil.SampleStructure()
	base.Modules = append(base.Modules, curriculum.ModuleDraft{
		ID:      "module_2",
		Title:   "Graphing Lines",
		Order:   2,
		Lessons: []curriculum.LessonDraft{{ID: "lesson_2_1", Title: "Slope", Order: 1}},
	})
	got, err := ApplyEdits(base, curriculum.StructureEdits{
		"module_2":   {"order": 1},
		"lesson_1_2": {"order": 1},
	})
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	if got.Modules[0].Title != "Graphing Lines" || got.Modules[0].ID != "module_1" || got.Modules[0].Order != 1 {
		t.Fatalf("first module = %+v", got.Modules[0])
	}
	if got.Modules[0].Lessons[0].ID != "lesson_1_1" || got.Modules[0].Lessons[0].Title != "Slope" {
		t.Fatalf("moved module lessons = %+v", got.Modules[0].Lessons)
	}
	second := got.Modules[1]
	if second.Title != "Linear Equations" || second.Lessons[0].Title != "Two-step equations" || second.Lessons[1].Title != "One-step equations" {
		t.Fatalf("second module = %+v", second)
	}
	if second.Lessons[0].Order != 1 || second.Lessons[0].ID != "lesson_2_1" {
		t.Fatalf("lessons not renumbered: %+v", second.Lessons)
	}
	if got.Tasks[0].ModuleID != "module_2" {
		t.Fatalf("task did not follow its module: %+v", got.Tasks[0])
	}
}
