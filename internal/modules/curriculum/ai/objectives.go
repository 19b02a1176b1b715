package ai

import (
	"fmt"
	"strings"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

// NormalizeObjectives trims objectives and drops blanks and
// case-insensitive duplicates, keeping first occurrences in order.
func NormalizeObjectives(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, o := range in {
		o = strings.TrimSpace(o)
		key := ObjectiveKey(o)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

// ObjectiveKey is the form objectives are compared in: case and spacing
// are ignored.
func ObjectiveKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// MatchObjectives enforces the project/objective contract. With no
// objectives it only requires at least one project. Otherwise the projects
// must map one to one onto objectives; each project's SourceObjective is
// rewritten to the exact input text. Every project must name its objective.
func MatchObjectives(res *curriculum.GenerationResult, objectives []string) error {
	if len(objectives) == 0 {
		if len(res.Projects) == 0 {
			return fmt.Errorf("%w: no projects generated", ErrValidation)
		}
		return nil
	}
	if len(res.Projects) != len(objectives) {
		return fmt.Errorf("%w: expected %d projects (one per objective), got %d", ErrValidation, len(objectives), len(res.Projects))
	}

	byKey := make(map[string]int, len(objectives))
	for i, o := range objectives {
		byKey[ObjectiveKey(o)] = i
	}
	used := make([]bool, len(objectives))
	for i := range res.Projects {
		src := res.Projects[i].SourceObjective
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("%w: project %q is missing source_objective", ErrValidation, res.Projects[i].Title)
		}
		idx, ok := byKey[ObjectiveKey(src)]
		if !ok {
			return fmt.Errorf("%w: project %q names unknown objective %q", ErrValidation, res.Projects[i].Title, src)
		}
		if used[idx] {
			return fmt.Errorf("%w: objective %q covered by more than one project", ErrValidation, objectives[idx])
		}
		used[idx] = true
		res.Projects[i].SourceObjective = objectives[idx]
	}
	return nil
}
