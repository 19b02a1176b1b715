package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

// ChunkResult is the structure detected for one chunk. A failed chunk
// carries Err and a zero Structure.
type ChunkResult struct {
	ChunkIndex int
	Structure  curriculum.StructureResult
	Err        error
}

// Merge combines per-chunk structures into one. Input order does not
// matter: results are processed by ChunkIndex. The first non-empty course
// title and description win, and a placeholder module is added when no
// chunk produced one. A module whose title matches one from an earlier
// chunk is folded into it, skipping lessons that chunk already listed;
// tasks are de-duplicated the same way. Repeats inside a single chunk are
// kept as detected.
func Merge(results []ChunkResult) curriculum.StructureResult {
	ordered := make([]ChunkResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ChunkIndex < ordered[j].ChunkIndex })

	var out curriculum.StructureResult
	// Titles contributed by earlier chunks.
	moduleAt := map[string]int{}
	lessonsIn := map[int]map[string]bool{}
	taskSeen := map[string]bool{}

	for _, res := range ordered {
		s := res.Structure
		if out.Course.Title == "" {
			out.Course.Title = strings.TrimSpace(s.Course.Title)
		}
		if out.Course.Description == "" {
			out.Course.Description = strings.TrimSpace(s.Course.Description)
		}
		if out.CurriculumType == "" {
			out.CurriculumType = strings.TrimSpace(s.CurriculumType)
		}

		newModules := map[string]int{}
		newLessons := map[int][]string{}
		// chunk-local module id -> merged index
		local := map[string]int{}
		for _, m := range s.Modules {
			key := strings.TrimSpace(m.Title)
			idx, earlier := moduleAt[key]
			if !earlier {
				idx = len(out.Modules)
				if _, ok := newModules[key]; !ok {
					newModules[key] = idx
				}
				out.Modules = append(out.Modules, curriculum.ModuleDraft{
					ID:    fmt.Sprintf("merged_%d", idx),
					Title: key,
				})
			}
			dst := &out.Modules[idx]
			if dst.Description == "" {
				dst.Description = strings.TrimSpace(m.Description)
			}
			if m.ID != "" {
				local[m.ID] = idx
			}
			for _, l := range m.Lessons {
				lk := strings.TrimSpace(l.Title)
				if lessonsIn[idx][lk] {
					continue
				}
				l.Title = lk
				dst.Lessons = append(dst.Lessons, l)
				newLessons[idx] = append(newLessons[idx], lk)
			}
		}

		var newTasks []string
		for _, t := range s.Tasks {
			key := strings.TrimSpace(t.Title)
			if key == "" || taskSeen[key] {
				continue
			}
			newTasks = append(newTasks, key)
			task := t
			task.Title = key
			task.ModuleID = ""
			if idx, ok := local[t.ModuleID]; ok {
				task.ModuleID = out.Modules[idx].ID
			}
			out.Tasks = append(out.Tasks, task)
		}

		for key, idx := range newModules {
			moduleAt[key] = idx
		}
		for idx, titles := range newLessons {
			if lessonsIn[idx] == nil {
				lessonsIn[idx] = map[string]bool{}
			}
			for _, title := range titles {
				lessonsIn[idx][title] = true
			}
		}
		for _, key := range newTasks {
			taskSeen[key] = true
		}
	}

	if len(out.Modules) == 0 {
		out.Modules = []curriculum.ModuleDraft{{Title: curriculum.PlaceholderModuleTitle}}
	}
	out.Renumber()
	return out
}
