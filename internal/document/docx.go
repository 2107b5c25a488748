package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCXText concatenates the text runs of every paragraph in
// word/document.xml, one line per paragraph.
func extractDOCXText(data []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	f, err := archive.Open("word/document.xml")
	if err != nil {
		return "", fmt.Errorf("missing word/document.xml: %w", err)
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var (
		lines       []string
		current     strings.Builder
		inParagraph bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" {
				inParagraph = true
				current.Reset()
			}
		case xml.EndElement:
			if t.Name.Local == "p" {
				if line := strings.TrimSpace(current.String()); line != "" {
					lines = append(lines, line)
				}
				current.Reset()
				inParagraph = false
			}
		case xml.CharData:
			if inParagraph {
				current.Write(t)
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}
