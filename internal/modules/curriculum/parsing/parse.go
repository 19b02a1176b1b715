// Package parsing turns raw curriculum files into ParsedContent.
package parsing

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported source format")
	ErrEmptyContent      = errors.New("source contains no extractable content")
)

// Source types recorded on ParsedContent.
const (
	SourceText       = "text"
	SourceMarkdown   = "markdown"
	SourceJSONExport = "json_export"
	SourcePDF        = "pdf"
	SourceCartridge  = "imscc"
)

// RawPackage is an uploaded file as received.
type RawPackage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ParseSource detects the format of raw and normalizes it.
func ParseSource(raw RawPackage) (curriculum.ParsedContent, error) {
	var (
		out curriculum.ParsedContent
		err error
	)
	switch detectFormat(raw) {
	case SourceJSONExport:
		out, err = parseExport(raw.Data)
	case SourcePDF:
		out, err = parsePDF(raw.Data)
	case SourceCartridge:
		out, err = parseCartridge(raw.Data)
	case SourceMarkdown:
		out = parseMarkdown(string(raw.Data))
	case SourceText:
		out = parsePlainText(string(raw.Data))
	default:
		return out, fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw.Filename)
	}
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(out.Text) == "" && len(out.Sections) == 0 {
		return out, ErrEmptyContent
	}
	out.Metadata.Filename = raw.Filename
	if out.Metadata.Title == "" {
		out.Metadata.Title = titleFromFilename(raw.Filename)
	}
	return out, nil
}

// Supported reports whether raw is in a format ParseSource understands.
func Supported(raw RawPackage) bool { return detectFormat(raw) != "" }

func detectFormat(raw RawPackage) string {
	ext := strings.ToLower(filepath.Ext(raw.Filename))
	ct := strings.ToLower(strings.TrimSpace(raw.ContentType))
	switch {
	case ext == ".json" || strings.HasPrefix(ct, "application/json"):
		return SourceJSONExport
	case ext == ".pdf" || strings.HasPrefix(ct, "application/pdf"):
		return SourcePDF
	case ext == ".imscc" || ext == ".zip" || strings.HasPrefix(ct, "application/zip"):
		return SourceCartridge
	case ext == ".md" || ext == ".markdown" || strings.HasPrefix(ct, "text/markdown"):
		return SourceMarkdown
	case utf8.Valid(raw.Data):
		return SourceText
	default:
		return ""
	}
}

func titleFromFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.TrimSpace(base)
}
