package chunker

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

func sampleResults() []ChunkResult {
	return []ChunkResult{
		{ChunkIndex: 0, Structure: curriculum.StructureResult{
			Course: curriculum.CourseInfo{Title: "", Description: "First description"},
			Modules: []curriculum.ModuleDraft{
				{ID: "module_1", Title: "Foundations", Lessons: []curriculum.LessonDraft{{Title: "Intro"}, {Title: "Terms"}}},
			},
			Tasks: []curriculum.TaskDraft{{Title: "Glossary", ModuleID: "module_1"}},
		}},
		{ChunkIndex: 1, Structure: curriculum.StructureResult{
			Course: curriculum.CourseInfo{Title: "Chemistry", Description: "Second description"},
			Modules: []curriculum.ModuleDraft{
				{ID: "module_1", Title: "Reactions", Lessons: []curriculum.LessonDraft{{Title: "Balancing"}}},
				{ID: "module_2", Title: "Foundations", Lessons: []curriculum.LessonDraft{{Title: "Terms"}, {Title: "Units"}}},
			},
			Tasks: []curriculum.TaskDraft{{Title: "Lab", ModuleID: "module_1"}, {Title: "Glossary"}},
		}},
		{ChunkIndex: 2, Err: errors.New("model timeout")},
	}
}

func TestMergeCombinesModules(t *testing.T) {
	got := Merge(sampleResults())
	if got.Course.Title != "Chemistry" || got.Course.Description != "First description" {
		t.Fatalf("course=%+v", got.Course)
	}
	if len(got.Modules) != 2 {
		t.Fatalf("modules=%+v", got.Modules)
	}
	found := got.Modules[0]
	if found.Title != "Foundations" || found.ID != "module_1" {
		t.Fatalf("first module=%+v", found)
	}
	var titles []string
	for _, l := range found.Lessons {
		titles = append(titles, l.Title)
	}
	if !reflect.DeepEqual(titles, []string{"Intro", "Terms", "Units"}) {
		t.Fatalf("lessons=%v", titles)
	}
	if found.Lessons[2].ID != "lesson_1_3" || found.Lessons[2].Order != 3 {
		t.Fatalf("lesson not renumbered: %+v", found.Lessons[2])
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("tasks=%+v", got.Tasks)
	}
	if got.Tasks[0].ModuleID != "module_1" || got.Tasks[1].Title != "Lab" || got.Tasks[1].ModuleID != "module_2" {
		t.Fatalf("task module refs=%+v", got.Tasks)
	}
}

func TestMergeOrderInsensitive(t *testing.T) {
	in := sampleResults()
	want := Merge(in)
	permutations := [][]int{{2, 1, 0}, {1, 0, 2}, {1, 2, 0}}
	for _, p := range permutations {
		shuffled := []ChunkResult{in[p[0]], in[p[1]], in[p[2]]}
		if got := Merge(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("merge depends on order %v:\n got %+v\nwant %+v", p, got, want)
		}
	}
}

func TestMergePlaceholderModule(t *testing.T) {
	got := Merge([]ChunkResult{{ChunkIndex: 0, Err: errors.New("boom")}})
	if len(got.Modules) != 1 || got.Modules[0].Title != curriculum.PlaceholderModuleTitle {
		t.Fatalf("expected placeholder module, got %+v", got.Modules)
	}
}

func TestProcessParallelBoundedAndTolerant(t *testing.T) {
	chunks := make([]curriculum.ContentChunk, 8)
	for i := range chunks {
		chunks[i] = curriculum.ContentChunk{ChunkIndex: i, TotalChunks: len(chunks)}
	}
	var inFlight, peak int32
	fn := func(ctx context.Context, c curriculum.ContentChunk) (curriculum.StructureResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		switch c.ChunkIndex {
		case 3:
			return curriculum.StructureResult{}, errors.New("malformed")
		case 5:
			panic("unexpected")
		}
		return curriculum.StructureResult{Course: curriculum.CourseInfo{Title: "T"}}, nil
	}

	got := ProcessParallel(context.Background(), logger.NewNop(), chunks, 3, fn)
	if len(got) != len(chunks) {
		t.Fatalf("len=%d", len(got))
	}
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds 3", peak)
	}
	if Failed(got) != 2 {
		t.Fatalf("failed=%d want 2", Failed(got))
	}
	for i, r := range got {
		if r.ChunkIndex != i {
			t.Fatalf("result %d has index %d", i, r.ChunkIndex)
		}
		if (i == 3 || i == 5) != (r.Err != nil) {
			t.Fatalf("result %d err=%v", i, r.Err)
		}
		if r.Err != nil && r.Structure.Course.Title != "" {
			t.Fatalf("failed chunk %d contributed content", i)
		}
	}
}

func TestMergeSingleChunkUnchanged(t *testing.T) {
	structure := curriculum.StructureResult{
		Course: curriculum.CourseInfo{Title: "Biology", Description: "Living systems."},
		Modules: []curriculum.ModuleDraft{
			{ID: "module_1", Title: "Cells", Order: 1, Lessons: []curriculum.LessonDraft{
				{ID: "lesson_1_1", Title: "Practice", Order: 1},
				{ID: "lesson_1_2", Title: "Mitosis", Order: 2, Content: "Cells divide."},
				{ID: "lesson_1_3", Title: "Practice", Order: 3},
			}},
			{ID: "module_2", Title: "Cells", Description: "More cells.", Order: 2, Lessons: []curriculum.LessonDraft{
				{ID: "lesson_2_1", Title: "Meiosis", Order: 1},
			}},
		},
		Tasks: []curriculum.TaskDraft{
			{ID: "task_1", Title: "Lab report", ModuleID: "module_2"},
			{ID: "task_2", Title: "Lab report", ModuleID: "module_1"},
		},
		CurriculumType: "course",
	}
	got := Merge([]ChunkResult{{ChunkIndex: 0, Structure: structure}})
	if !reflect.DeepEqual(got, structure) {
		t.Fatalf("single chunk changed:\n got %+v\nwant %+v", got, structure)
	}
}

func TestMergeDedupesOnlyAgainstEarlierChunks(t *testing.T) {
	got := Merge([]ChunkResult{
		{ChunkIndex: 0, Structure: curriculum.StructureResult{Modules: []curriculum.ModuleDraft{
			{ID: "module_1", Title: "Cells", Lessons: []curriculum.LessonDraft{{Title: "Mitosis"}}},
		}}},
		{ChunkIndex: 1, Structure: curriculum.StructureResult{Modules: []curriculum.ModuleDraft{
			{ID: "module_1", Title: "Cells", Lessons: []curriculum.LessonDraft{{Title: "Mitosis"}, {Title: "Review"}, {Title: "Review"}}},
		}}},
	})
	if len(got.Modules) != 1 {
		t.Fatalf("modules=%+v", got.Modules)
	}
	var titles []string
	for _, l := range got.Modules[0].Lessons {
		titles = append(titles, l.Title)
	}
	if !reflect.DeepEqual(titles, []string{"Mitosis", "Review", "Review"}) {
		t.Fatalf("lessons=%v", titles)
	}
}
