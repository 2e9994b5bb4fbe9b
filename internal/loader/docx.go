package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// errNoDocumentXML reports a zip archive without a Word main part.
var errNoDocumentXML = errors.New("docx: word/document.xml not found")

// extractDOCX reads word/document.xml and returns one line per paragraph.
// Tabs and explicit breaks inside a paragraph are preserved.
func extractDOCX(_ context.Context, raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("docx: open archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("docx: open %s: %w", f.Name, err)
		}
		defer rc.Close()
		return parseDocumentXML(rc)
	}
	return "", errNoDocumentXML
}

// parseDocumentXML streams the WordprocessingML body. Tables come out as one
// paragraph per cell, which keeps cell text contiguous for chunking.
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb     strings.Builder
		para   strings.Builder
		inText bool
	)

	flush := func() {
		line := strings.TrimRight(para.String(), " \t")
		para.Reset()
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx: parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	if para.Len() > 0 {
		flush()
	}
	return strings.TrimSpace(sb.String()), nil
}
