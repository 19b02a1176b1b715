package review

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

// CourseKey addresses the course itself in StructureEdits.
const CourseKey = "course"

// ApplyEdits shallow-merges edits into s by element id. Unknown ids are
// ignored and ids themselves cannot be edited. An edited "order" moves a
// module among modules, or a lesson within its module, ahead of any
// unedited element holding the same position. The result is renumbered.
func ApplyEdits(s curriculum.StructureResult, edits curriculum.StructureEdits) (curriculum.StructureResult, error) {
	out, err := clone(s)
	if err != nil {
		return s, err
	}
	if len(edits) == 0 {
		return out, nil
	}
	for i := range out.Modules {
		out.Modules[i].Order = i + 1
		for j := range out.Modules[i].Lessons {
			out.Modules[i].Lessons[j].Order = j + 1
		}
	}
	if fields, ok := edits[CourseKey]; ok {
		if err := merge(&out.Course, fields); err != nil {
			return s, fmt.Errorf("course: %w", err)
		}
	}
	for i := range out.Modules {
		m := &out.Modules[i]
		for j := range m.Lessons {
			l := &m.Lessons[j]
			if fields, ok := edits[l.ID]; ok {
				if err := merge(l, fields); err != nil {
					return s, fmt.Errorf("%s: %w", l.ID, err)
				}
			}
		}
		if fields, ok := edits[m.ID]; ok {
			if err := merge(m, fields); err != nil {
				return s, fmt.Errorf("%s: %w", m.ID, err)
			}
		}
	}
	for k := range out.Tasks {
		t := &out.Tasks[k]
		if fields, ok := edits[t.ID]; ok {
			if err := merge(t, fields); err != nil {
				return s, fmt.Errorf("%s: %w", t.ID, err)
			}
		}
	}
	reorder(out.Modules, func(m curriculum.ModuleDraft) (int, bool) {
		return m.Order, hasOrder(edits, m.ID)
	})
	for i := range out.Modules {
		reorder(out.Modules[i].Lessons, func(l curriculum.LessonDraft) (int, bool) {
			return l.Order, hasOrder(edits, l.ID)
		})
	}
	out.Renumber()
	return out, nil
}

// reorder stably sorts items by order. Ties go to the edited item.
func reorder[T any](items []T, key func(T) (order int, edited bool)) {
	sort.SliceStable(items, func(a, b int) bool {
		oa, ea := key(items[a])
		ob, eb := key(items[b])
		if oa != ob {
			return oa < ob
		}
		return ea && !eb
	})
}

func hasOrder(edits curriculum.StructureEdits, id string) bool {
	_, ok := edits[id]["order"]
	return ok
}

// merge overlays fields onto the JSON form of dst.
func merge(dst any, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(dst)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		m[k] = v
	}
	raw, err = json.Marshal(m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEdits, err)
	}
	return nil
}

func clone(s curriculum.StructureResult) (curriculum.StructureResult, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return s, err
	}
	var out curriculum.StructureResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return s, err
	}
	return out, nil
}
