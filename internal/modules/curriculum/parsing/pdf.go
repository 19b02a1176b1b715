package parsing

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

func parsePDF(data []byte) (curriculum.ParsedContent, error) {
	out := curriculum.ParsedContent{SourceType: SourcePDF}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return out, fmt.Errorf("%w: open pdf: %v", ErrUnsupportedFormat, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return out, fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return out, fmt.Errorf("read pdf text: %w", err)
	}
	out.Text = normalizeNewlines(buf.String())
	if first := firstLine(out.Text); first != "" && len([]rune(first)) <= 120 {
		out.Metadata.Title = strings.TrimSpace(first)
	}
	return out, nil
}
