package docpipe

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// maxXMLDepth guards against deeply nested document.xml (XML bomb).
const maxXMLDepth = 256

// extractDocx pulls paragraph text out of word/document.xml in the OOXML
// archive. Paragraphs become lines; styling is discarded.
func extractDocx(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open zip: %w", err)
	}

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sb strings.Builder
	var para strings.Builder
	inParagraph := false
	depth := 0

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > maxXMLDepth {
				return "", fmt.Errorf("document.xml exceeds nesting depth %d", maxXMLDepth)
			}
			if t.Name.Local == "p" {
				inParagraph = true
				para.Reset()
			}

		case xml.CharData:
			if inParagraph {
				para.Write(t)
			}

		case xml.EndElement:
			depth--
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				if text := strings.TrimSpace(para.String()); text != "" {
					if sb.Len() > 0 {
						sb.WriteByte('\n')
					}
					sb.WriteString(text)
				}
			}
		}
	}

	return sb.String(), nil
}
