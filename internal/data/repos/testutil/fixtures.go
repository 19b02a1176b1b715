package testutil

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

func JSON(tb testing.TB, v any) datatypes.JSON {
	tb.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal fixture: %v", err)
	}
	return datatypes.JSON(b)
}

// SeedUpload inserts an upload in the given status and stage. When stage is
// past structure detection a minimal stage-2 checkpoint is attached.
func SeedUpload(tb testing.TB, gdb *gorm.DB, status curriculum.Status, stage int, structure *curriculum.StructureResult) *curriculum.UploadRecord {
	tb.Helper()
	rec := &curriculum.UploadRecord{
		ID:             uuid.New(),
		OwnerUserID:    uuid.New(),
		SourceFilename: "algebra.txt",
		Status:         status,
		CurrentStage:   stage,
		Config: JSON(tb, curriculum.UploadConfig{
			TransformationLevel: curriculum.TransformModerate,
		}),
	}
	if structure != nil {
		rec.Stage2Checkpoint = JSON(tb, structure)
	}
	if err := gdb.Create(rec).Error; err != nil {
		tb.Fatalf("seed upload: %v", err)
	}
	return rec
}

// SampleStructure is a small reviewed-shape structure with stable ids.
func SampleStructure() curriculum.StructureResult {
	return curriculum.StructureResult{
		Course: curriculum.CourseInfo{Title: "Algebra I", Description: "Solve linear equations."},
		Modules: []curriculum.ModuleDraft{
			{
				ID:    "module_1",
				Title: "Linear Equations",
				Order: 1,
				Lessons: []curriculum.LessonDraft{
					{ID: "lesson_1_1", Title: "One-step equations", Order: 1},
					{ID: "lesson_1_2", Title: "Two-step equations", Order: 2},
				},
			},
		},
		Tasks:          []curriculum.TaskDraft{{ID: "task_1", Title: "Worksheet", ModuleID: "module_1"}},
		CurriculumType: "course",
	}
}
