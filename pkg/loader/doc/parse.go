package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// docxText accumulates the visible text of word/document.xml. Runs inside
// w:del are tracked deletions and skipped, table cells are tab separated.
type docxText struct {
	sb       strings.Builder
	inText   bool
	delDepth int
	inTable  bool
	cell     int
}

func (d *docxText) visible() bool { return d.delDepth == 0 }

func (d *docxText) newline() {
	if d.sb.Len() > 0 && !strings.HasSuffix(d.sb.String(), "\n") {
		d.sb.WriteByte('\n')
	}
}

func (d *docxText) start(name string) {
	switch name {
	case "del":
		d.delDepth++
	case "t":
		d.inText = true
	case "tab":
		if d.visible() {
			d.sb.WriteByte('\t')
		}
	case "br", "cr":
		if d.visible() {
			d.sb.WriteByte('\n')
		}
	case "noBreakHyphen":
		if d.visible() {
			d.sb.WriteByte('-')
		}
	case "tbl":
		d.inTable = true
		d.cell = 0
		d.newline()
	case "tr":
		d.cell = 0
	case "tc":
		if d.inTable && d.visible() {
			if d.cell > 0 {
				d.sb.WriteByte('\t')
			}
			d.cell++
		}
	}
}

func (d *docxText) end(name string) {
	switch name {
	case "t":
		d.inText = false
	case "p":
		if d.visible() && !d.inTable {
			d.sb.WriteByte('\n')
		}
	case "tr":
		if d.visible() {
			d.sb.WriteByte('\n')
		}
	case "tbl":
		d.inTable = false
		if d.visible() {
			d.sb.WriteByte('\n')
		}
	case "del":
		if d.delDepth > 0 {
			d.delDepth--
		}
	}
}

func (d *docxText) chars(b []byte) {
	if d.inText && d.visible() {
		d.sb.Write(b)
	}
}

func (d *docxText) String() string {
	text := strings.TrimSpace(d.sb.String())
	text = extraNewlines.ReplaceAllString(text, "\n\n")
	if text != "" {
		text += "\n"
	}
	return text
}

func openDocumentXML(content []byte) (io.ReadCloser, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		if f.UncompressedSize64 > docXMLMax {
			return nil, fmt.Errorf("document.xml too large: %d bytes", f.UncompressedSize64)
		}
		return f.Open()
	}
	return nil, errors.New("document.xml not found in docx")
}

func parseDocx(content []byte) ([]byte, error) {
	rc, err := openDocumentXML(content)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var text docxText
	dec := xml.NewDecoder(io.LimitReader(rc, docXMLMax))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			text.start(t.Name.Local)
		case xml.EndElement:
			text.end(t.Name.Local)
		case xml.CharData:
			text.chars(t)
		}
	}

	return []byte(text.String()), nil
}
