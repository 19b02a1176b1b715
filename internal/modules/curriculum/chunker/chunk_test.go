package chunker

import (
	"strings"
	"testing"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

func concat(chunks []curriculum.ContentChunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
	}
	return b.String()
}

func TestChunkSmallTextIsSingleChunk(t *testing.T) {
	parsed := curriculum.ParsedContent{Text: "short text", SourceType: "text"}
	got := Chunk(parsed, 100)
	if len(got) != 1 {
		t.Fatalf("len=%d want 1", len(got))
	}
	if got[0].ChunkIndex != 0 || got[0].TotalChunks != 1 || got[0].Text != "short text" || got[0].SourceType != "text" {
		t.Fatalf("unexpected chunk %+v", got[0])
	}
}

func TestChunkPlainTextParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("a", 70)
	text := para + "\n\n" + para + "\n\n" + para + "\n\n" + para
	got := Chunk(curriculum.ParsedContent{Text: text}, 100)

	if concat(got) != text {
		t.Fatalf("chunks do not reproduce the source text")
	}
	for i, c := range got {
		if n := len([]rune(c.Text)); n > 100 {
			t.Fatalf("chunk %d has %d chars", i, n)
		}
		if c.ChunkIndex != i || c.TotalChunks != len(got) {
			t.Fatalf("chunk %d numbering %d/%d", i, c.ChunkIndex, c.TotalChunks)
		}
		if i < len(got)-1 && !strings.HasSuffix(c.Text, "\n\n") {
			t.Fatalf("chunk %d not cut at a paragraph boundary: %q", i, c.Text[len(c.Text)-5:])
		}
	}
}

func TestChunkPlainTextHardCut(t *testing.T) {
	text := strings.Repeat("é", 250)
	got := Chunk(curriculum.ParsedContent{Text: text}, 100)
	if len(got) != 3 {
		t.Fatalf("len=%d want 3", len(got))
	}
	if len([]rune(got[0].Text)) != 100 || len([]rune(got[2].Text)) != 50 {
		t.Fatalf("unexpected cut sizes")
	}
	if concat(got) != text {
		t.Fatalf("hard cut lost characters")
	}
}

func TestChunkBoundaryBeforeHalfIsIgnored(t *testing.T) {
	text := strings.Repeat("a", 20) + "\n\n" + strings.Repeat("b", 200)
	got := Chunk(curriculum.ParsedContent{Text: text}, 100)
	if len([]rune(got[0].Text)) != 100 {
		t.Fatalf("expected hard cut at 100, got %d", len([]rune(got[0].Text)))
	}
}

func TestChunkSectionsNeverSplit(t *testing.T) {
	sections := []curriculum.Section{
		{Type: "page", Title: "A", Content: strings.Repeat("a", 30)},
		{Type: "page", Title: "B", Content: strings.Repeat("b", 30)},
		{Type: "page", Title: "Huge", Content: strings.Repeat("h", 300)},
		{Type: "quiz", Title: "C", Content: strings.Repeat("c", 30)},
		{Type: "page", Title: "D", Content: strings.Repeat("d", 30)},
		{Type: "page", Title: "E", Content: strings.Repeat("e", 30)},
	}
	parsed := curriculum.ParsedContent{Sections: sections, Text: curriculum.RenderSections(sections)}
	got := Chunk(parsed, 100)

	var order []string
	for i, c := range got {
		n := len([]rune(c.Text))
		if n > 100 && len(c.Sections) != 1 {
			t.Fatalf("chunk %d exceeds limit with %d sections", i, len(c.Sections))
		}
		if c.Text != curriculum.RenderSections(c.Sections) {
			t.Fatalf("chunk %d text does not match its sections", i)
		}
		for _, s := range c.Sections {
			order = append(order, s.Title)
		}
	}
	if strings.Join(order, ",") != "A,B,Huge,C,D,E" {
		t.Fatalf("section order changed: %v", order)
	}
	if concat(got) != parsed.Text {
		t.Fatalf("chunks do not reproduce the sectioned text")
	}
	if len(got) != 4 {
		t.Fatalf("len=%d want 4 (A+B, Huge, C+D, E)", len(got))
	}
	if len(got[1].Sections) != 1 || got[1].Sections[0].Title != "Huge" {
		t.Fatalf("oversized section not alone: %+v", got[1].Sections)
	}
}

func TestChunkFiftyThousandChars(t *testing.T) {
	var b strings.Builder
	for b.Len() < 50000 {
		b.WriteString(strings.Repeat("lorem ipsum ", 40))
		b.WriteString("\n\n")
	}
	text := b.String()
	got := Chunk(curriculum.ParsedContent{Text: text}, 12000)
	if len(got) < 4 {
		t.Fatalf("len=%d want >= 4", len(got))
	}
	if concat(got) != text {
		t.Fatalf("chunks do not reproduce the source")
	}
}
