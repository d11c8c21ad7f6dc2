package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultPath     = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
	odfContentPath      = "content.xml"
)

// xmlTextRules describes how a document XML dialect carries text. Character
// data is kept only inside text elements; paragraph ends emit a newline and
// inline elements are replaced by their text.
type xmlTextRules struct {
	text   map[string]bool
	para   map[string]bool
	inline map[string]string
}

var ooxmlRules = xmlTextRules{
	text:   map[string]bool{"t": true},
	para:   map[string]bool{"p": true},
	inline: map[string]string{"tab": "\t", "br": "\n"},
}

var odfRules = xmlTextRules{
	text:   map[string]bool{"p": true, "h": true, "span": true},
	para:   map[string]bool{"p": true, "h": true},
	inline: map[string]string{"s": " ", "tab": "\t", "line-break": "\n"},
}

// xmlText walks the token stream of r, keeping text per rules. Empty lines are
// dropped and surrounding whitespace trimmed from each line.
func xmlText(r io.Reader, rules xmlTextRules) (string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	var b strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if rules.text[t.Name.Local] {
				depth++
			} else if s, ok := rules.inline[t.Name.Local]; ok {
				b.WriteString(s)
			}
		case xml.EndElement:
			if rules.text[t.Name.Local] && depth > 0 {
				depth--
			}
			if rules.para[t.Name.Local] {
				b.WriteByte('\n')
			}
		case xml.CharData:
			if depth > 0 {
				b.Write(t)
			}
		}
	}
	return compactLines(b.String()), nil
}

func compactLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

func zipPartText(f *zip.File, rules xmlTextRules, format string) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("extract %s: open %s: %w", format, f.Name, err)
	}
	defer rc.Close()
	text, err := xmlText(rc, rules)
	if err != nil {
		return "", fmt.Errorf("extract %s: parse %s: %w", format, f.Name, err)
	}
	return text, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// docxMainPath resolves the main document part from [Content_Types].xml,
// falling back to word/document.xml.
func docxMainPath(zr *zip.Reader) string {
	f := findZipFile(zr, contentTypesPath)
	if f == nil {
		return docxDefaultPath
	}
	rc, err := f.Open()
	if err != nil {
		return docxDefaultPath
	}
	defer rc.Close()
	var ct contentTypes
	if err := xml.NewDecoder(rc).Decode(&ct); err != nil {
		return docxDefaultPath
	}
	for _, o := range ct.Overrides {
		if o.ContentType == docxMainContentType {
			return strings.TrimPrefix(o.PartName, "/")
		}
	}
	return docxDefaultPath
}

func extractDOCX(content []byte) (string, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return "", err
	}
	path := docxMainPath(zr)
	f := findZipFile(zr, path)
	if f == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", path)
	}
	return zipPartText(f, ooxmlRules, "DOCX")
}

// extractPPTX returns slide text in slide-number order, one paragraph per slide.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.Name, pptxSlidePrefix), ".xml"))
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, f: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	parts := make([]string, 0, len(slides))
	for _, s := range slides {
		text, err := zipPartText(s.f, ooxmlRules, "PPTX")
		if err != nil {
			return "", err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// extractODF handles OpenDocument text, presentation and spreadsheet files.
func extractODF(content []byte) (string, error) {
	zr, err := openZip(content, "ODF")
	if err != nil {
		return "", err
	}
	f := findZipFile(zr, odfContentPath)
	if f == nil {
		return "", fmt.Errorf("extract ODF: %s not found", odfContentPath)
	}
	return zipPartText(f, odfRules, "ODF")
}
