// Package chunker splits large parsed sources into bounded pieces for
// structure detection and merges the per-piece results back together.
package chunker

import (
	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

// DefaultMaxChars bounds a chunk's text, in characters.
const DefaultMaxChars = 12000

// Chunk splits parsed into ordered chunks of at most maxChars characters.
// Sections are never split: they are packed greedily and a section larger
// than maxChars becomes a chunk of its own. Sectionless text is cut at the
// last paragraph break past the halfway point of each window, else at
// exactly maxChars. Chunk texts concatenate back to the source text.
func Chunk(parsed curriculum.ParsedContent, maxChars int) []curriculum.ContentChunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	var chunks []curriculum.ContentChunk
	switch {
	case len(parsed.Sections) > 0:
		chunks = chunkSections(parsed, maxChars)
	case runeLen(parsed.Text) <= maxChars:
		chunks = []curriculum.ContentChunk{{Text: parsed.Text, SourceType: parsed.SourceType}}
	default:
		chunks = chunkText(parsed, maxChars)
	}
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}

func chunkSections(parsed curriculum.ParsedContent, maxChars int) []curriculum.ContentChunk {
	var (
		out    []curriculum.ContentChunk
		cur    []curriculum.Section
		curLen int
	)
	emit := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, curriculum.ContentChunk{
			Text:       curriculum.RenderSections(cur),
			Sections:   cur,
			SourceType: parsed.SourceType,
		})
		cur = nil
		curLen = 0
	}
	for _, s := range parsed.Sections {
		n := runeLen(s.Render())
		if len(cur) > 0 && curLen+n > maxChars {
			emit()
		}
		cur = append(cur, s)
		curLen += n
	}
	emit()
	return out
}

func chunkText(parsed curriculum.ParsedContent, maxChars int) []curriculum.ContentChunk {
	r := []rune(parsed.Text)
	var out []curriculum.ContentChunk
	for start := 0; start < len(r); {
		if len(r)-start <= maxChars {
			out = append(out, curriculum.ContentChunk{Text: string(r[start:]), SourceType: parsed.SourceType})
			break
		}
		end := start + maxChars
		cut := end
		half := start + maxChars/2
		// i is the second rune of a "\n\n" pair that starts past half.
		for i := end - 1; i-1 > half; i-- {
			if r[i] == '\n' && r[i-1] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, curriculum.ContentChunk{Text: string(r[start:cut]), SourceType: parsed.SourceType})
		start = cut
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
