package prompts

import (
	"fmt"
	"strings"
)

type Validator func(Input) error

func RequireNonEmpty(field string, get func(Input) string) Validator {
	return func(in Input) error {
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("missing required input: %s", field)
		}
		return nil
	}
}

// LevelGuidance describes how far alignment may rewrite the source.
func LevelGuidance(level string) string {
	switch level {
	case "light":
		return "Light touch: keep the author's wording where it already fits. Fix tone, remove grading and competition language, and add short real-world connections."
	case "full":
		return "Full transformation: reimagine modules as learner-driven explorations. Rewrite titles and descriptions freely while keeping the subject matter."
	default:
		return "Moderate: rewrite titles and descriptions in the learner-facing voice, reframe assessments as projects, and keep the sequence of ideas."
	}
}
