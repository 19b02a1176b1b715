package parsing

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
)

const maxCartridgeFile = 4 << 20

type ccManifest struct {
	Title         string           `xml:"metadata>lom>general>title>string"`
	Organizations []ccOrganization `xml:"organizations>organization"`
	Resources     []ccResource     `xml:"resources>resource"`
}

type ccOrganization struct {
	Items []ccItem `xml:"item"`
}

type ccItem struct {
	Identifier    string   `xml:"identifier,attr"`
	IdentifierRef string   `xml:"identifierref,attr"`
	Title         string   `xml:"title"`
	Items         []ccItem `xml:"item"`
}

type ccResource struct {
	Identifier string   `xml:"identifier,attr"`
	Type       string   `xml:"type,attr"`
	Href       string   `xml:"href,attr"`
	Files      []ccFile `xml:"file"`
}

type ccFile struct {
	Href string `xml:"href,attr"`
}

// parseCartridge reads an IMS Common Cartridge: each organization module
// becomes a module section followed by one section per referenced resource.
func parseCartridge(data []byte) (curriculum.ParsedContent, error) {
	out := curriculum.ParsedContent{SourceType: SourceCartridge}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return out, fmt.Errorf("%w: open cartridge: %v", ErrUnsupportedFormat, err)
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[path.Clean(f.Name)] = f
	}
	mf, ok := files["imsmanifest.xml"]
	if !ok {
		return out, fmt.Errorf("%w: imsmanifest.xml missing", ErrUnsupportedFormat)
	}
	raw, err := readZipFile(mf)
	if err != nil {
		return out, err
	}
	var m ccManifest
	if err := xml.Unmarshal(raw, &m); err != nil {
		return out, fmt.Errorf("%w: manifest: %v", ErrUnsupportedFormat, err)
	}
	out.Metadata.Title = strings.TrimSpace(m.Title)

	resources := map[string]ccResource{}
	for _, r := range m.Resources {
		resources[r.Identifier] = r
	}

	for _, org := range m.Organizations {
		for _, root := range org.Items {
			modules := root.Items
			if len(modules) == 0 {
				modules = []ccItem{root}
			}
			for _, mod := range modules {
				out.Sections = append(out.Sections, cartridgeModule(mod))
				for _, child := range flatten(mod.Items) {
					res, ok := resources[child.IdentifierRef]
					if !ok {
						continue
					}
					out.Sections = append(out.Sections, cartridgeResource(child, res, files))
				}
			}
		}
	}
	out.Text = curriculum.RenderSections(out.Sections)
	return out, nil
}

func cartridgeModule(mod ccItem) curriculum.Section {
	var b strings.Builder
	for _, child := range flatten(mod.Items) {
		if t := strings.TrimSpace(child.Title); t != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- " + t)
		}
	}
	return curriculum.Section{
		Type:    curriculum.SectionModule,
		Title:   strings.TrimSpace(mod.Title),
		Content: b.String(),
	}
}

func cartridgeResource(item ccItem, res ccResource, files map[string]*zip.File) curriculum.Section {
	typ := resourceSectionType(res)
	sec := curriculum.Section{
		Type:     typ,
		Title:    strings.TrimSpace(item.Title),
		Metadata: map[string]string{"resource_type": res.Type},
	}
	if typ == curriculum.SectionUnknown {
		sec.Metadata["original_type"] = res.Type
	}
	href := res.Href
	if href == "" && len(res.Files) > 0 {
		href = res.Files[0].Href
	}
	if href != "" {
		sec.Metadata["href"] = href
	}
	if f, ok := files[path.Clean(href)]; ok && readableHref(href) {
		if raw, err := readZipFile(f); err == nil {
			sec.Content = stripHTML(string(raw))
		}
	}
	return sec
}

func resourceSectionType(res ccResource) string {
	t := strings.ToLower(res.Type)
	href := strings.ToLower(res.Href)
	switch {
	case strings.Contains(t, "imsdt"):
		return curriculum.SectionDiscussion
	case strings.Contains(t, "imsqti") || strings.Contains(t, "assessment"):
		return curriculum.SectionQuiz
	case strings.Contains(t, "assignment") || strings.Contains(href, "assignment"):
		return curriculum.SectionAssignment
	case t == "webcontent" && (strings.HasSuffix(href, ".html") || strings.HasSuffix(href, ".htm")):
		return curriculum.SectionPage
	case t == "webcontent":
		return curriculum.SectionFile
	default:
		return curriculum.SectionUnknown
	}
}

func readableHref(href string) bool {
	switch strings.ToLower(path.Ext(href)) {
	case ".html", ".htm", ".xml", ".txt", ".md":
		return true
	default:
		return false
	}
}

func flatten(items []ccItem) []ccItem {
	var out []ccItem
	for _, it := range items {
		out = append(out, it)
		out = append(out, flatten(it.Items)...)
	}
	return out
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxCartridgeFile))
}
