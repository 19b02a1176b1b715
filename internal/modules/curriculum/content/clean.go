// Package content cleans AI-produced text and shapes generation output into
// persisted course records.
package content

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 1000
	MaxBigIdeaLength     = 300
)

var (
	reGreeting  = regexp.MustCompile(`(?i)^\s*(welcome|hello|hi|hey|greetings|good (morning|afternoon|evening)|dear (students|learners|class|everyone))\b`)
	reFirstPers = regexp.MustCompile(`(?i)\b(i|i'm|i am|i've|i'll|i will|i'd|me|my|myself|as your (teacher|instructor|professor))\b`)
	reLatinAbbr = regexp.MustCompile(`(?i)\b(i\.e|e\.g)\.`)
	reSelfRef   = regexp.MustCompile(`(?i)\b(in|throughout|during|for|by the end of) this (project|course|class|unit|module|lesson),?\s*`)
	reThisUnit  = regexp.MustCompile(`(?i)\bthis (project|course|class)\b`)
	reTitleNum  = regexp.MustCompile(`(?i)^\s*(module|unit|week|lesson|chapter|part|section|quest|project)\s+[0-9ivx]+\s*[:.\-–—)]\s*`)
	reSpaces    = regexp.MustCompile(`[ \t\f\v]+`)
	reBlank     = regexp.MustCompile(`\n{3,}`)
	reBangs     = regexp.MustCompile(`!{2,}`)
	reQuestions = regexp.MustCompile(`\?{2,}`)
	reCommas    = regexp.MustCompile(`,{2,}`)
	reSemis     = regexp.MustCompile(`;{2,}`)
	reDots      = regexp.MustCompile(`\.{4,}`)
	reSpaceP    = regexp.MustCompile(`\s+([,.;:!?])`)
)

// CleanText normalizes whitespace and repeated punctuation and capitalizes
// the first letter. Paragraph breaks survive.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.NewReplacer("’", "'", "‘", "'", "\u00a0", " ").Replace(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(reSpaces.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = reBlank.ReplaceAllString(s, "\n\n")
	s = reBangs.ReplaceAllString(s, "!")
	s = reQuestions.ReplaceAllString(s, "?")
	s = reCommas.ReplaceAllString(s, ",")
	s = reSemis.ReplaceAllString(s, ";")
	s = reDots.ReplaceAllString(s, "...")
	s = reSpaceP.ReplaceAllString(s, "$1")
	return capitalize(strings.TrimSpace(s))
}

// StripGreetings drops leading greeting sentences ("Welcome to ...").
func StripGreetings(s string) string {
	greeting := true
	return keepSentences(s, func(sent string) bool {
		greeting = greeting && reGreeting.MatchString(sent)
		return !greeting
	})
}

// StripInstructorVoice drops sentences written in the instructor's first
// person.
func StripInstructorVoice(s string) string {
	return keepSentences(normalizeQuotes(s), func(sent string) bool {
		return !reFirstPers.MatchString(reLatinAbbr.ReplaceAllString(sent, ""))
	})
}

// CleanCourseDescription removes greetings and instructor voice.
func CleanCourseDescription(s string) string {
	s = StripGreetings(normalizeQuotes(s))
	s = StripInstructorVoice(s)
	return Truncate(CleanText(s), MaxDescriptionLength)
}

// CleanProjectDescription additionally removes references to an enclosing
// project or course so the quest reads standalone.
func CleanProjectDescription(s string) string {
	s = StripGreetings(normalizeQuotes(s))
	s = StripInstructorVoice(s)
	s = reSelfRef.ReplaceAllString(s, "")
	s = reThisUnit.ReplaceAllString(s, "this quest")
	return Truncate(CleanText(s), MaxDescriptionLength)
}

// CleanTitle strips numbering prefixes and trailing punctuation.
func CleanTitle(s string) string {
	s = strings.TrimSpace(reSpaces.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " "))
	s = reTitleNum.ReplaceAllString(s, "")
	s = strings.Trim(s, " \"'`*#")
	s = strings.TrimRight(s, ".:;,-")
	return Truncate(capitalize(strings.TrimSpace(s)), MaxTitleLength)
}

// CleanLessonContent tidies step text without dropping sentences other than
// an opening greeting.
func CleanLessonContent(s string) string {
	paras := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n")
	if len(paras) > 0 {
		paras[0] = StripGreetings(normalizeQuotes(paras[0]))
	}
	return CleanText(strings.Join(paras, "\n\n"))
}

// Truncate shortens s to at most max characters, preferring a word
// boundary, and marks the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	cut := max - 3
	if cut < 1 {
		return string(r[:max])
	}
	for i := cut; i > cut/2; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(r[:cut]), " ,;:") + "..."
}

// sentence is one sentence of a text and the whitespace that followed it.
type sentence struct {
	body string
	sep  string
}

// splitSentences cuts s at paragraph breaks and at terminal punctuation
// followed by whitespace and an upper case letter, optionally quoted. Abbreviations and
// decimals ("U.S.", "3.14", "i.e. with") stay inside their sentence.
// Concatenating every body and sep gives back s without leading space.
func splitSentences(s string) []sentence {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	var out []sentence
	start := 0
	cut := func(end int) int {
		k := end
		for k < len(s) && isSpaceByte(s[k]) {
			k++
		}
		out = append(out, sentence{body: s[start:end], sep: s[end:k]})
		start = k
		return k
	}
	for i := 0; i < len(s); {
		switch s[i] {
		case '\n':
			k := i + 1
			for k < len(s) && (s[k] == ' ' || s[k] == '\t' || s[k] == '\r') {
				k++
			}
			if k < len(s) && s[k] == '\n' && i > start {
				i = cut(i)
				continue
			}
		case '.', '!', '?':
			j := i
			for j < len(s) && strings.IndexByte(".!?", s[j]) >= 0 {
				j++
			}
			for j < len(s) && strings.IndexByte("\"')]", s[j]) >= 0 {
				j++
			}
			k := j
			for k < len(s) && isSpaceByte(s[k]) {
				k++
			}
			if k == len(s) {
				cut(j)
				i = len(s)
				continue
			}
			m := k
			for m < len(s) && strings.IndexByte("\"'(", s[m]) >= 0 {
				m++
			}
			if next, _ := utf8.DecodeRuneInString(s[m:]); k > j && unicode.IsUpper(next) {
				i = cut(j)
				continue
			}
			i = j
			continue
		}
		i++
	}
	if start < len(s) {
		out = append(out, sentence{body: s[start:]})
	}
	return out
}

// keepSentences rebuilds s from the sentences keep accepts, in order and
// with their original separators. A dropped sentence hands a paragraph
// break on to the sentence before it.
func keepSentences(s string, keep func(sent string) bool) string {
	var b strings.Builder
	pending := ""
	for _, sent := range splitSentences(s) {
		if !keep(strings.TrimSpace(sent.body)) {
			if strings.Count(sent.sep, "\n") > strings.Count(pending, "\n") {
				pending = sent.sep
			}
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pending)
		}
		b.WriteString(sent.body)
		pending = sent.sep
	}
	return strings.TrimSpace(b.String())
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func normalizeQuotes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
