// Package promptstyle prefixes system prompts with the house output rules
// shared by every curriculum model call.
package promptstyle

import "strings"

const marker = "OPTIO_PROMPT_STYLE_V1"

// ApplySystem prepends the guidance block to system. It is idempotent and
// leaves an empty prompt empty. mode "json" adds the single-object rule.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, marker) {
		return base
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou turn teaching material into structured course content for Optio.")
	b.WriteString("\nWork only from the material provided; never invent sources, dates or credentials.")
	b.WriteString("\nKeep the learner-facing wording plain and direct.")
	if strings.EqualFold(strings.TrimSpace(mode), "json") {
		b.WriteString("\nReturn exactly one JSON object matching the requested shape, with no prose around it.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}
