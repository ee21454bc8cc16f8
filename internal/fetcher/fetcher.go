// Package fetcher turns uploaded statement and contributor files into the
// engine's input types: delimited text, XLSX, OFX/QFX, PDF and single-file
// ZIP archives.
package fetcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/ocr"
)

// MIME hints recorded on loaded documents.
const (
	MimeText = "text/plain"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeOFX  = "application/x-ofx"
	MimePDF  = "application/pdf"
)

// RowDelimiter joins spreadsheet and OFX cells into text rows.
const RowDelimiter = ";"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Loader converts statement files into RawDocuments.
type Loader struct {
	pdf ocr.Extractor
}

// NewLoader creates a loader. pdf may be nil, in which case PDF files are
// rejected.
func NewLoader(pdf ocr.Extractor) *Loader {
	return &Loader{pdf: pdf}
}

// LoadFile reads path from disk and loads it.
func (l *Loader) LoadFile(ctx context.Context, path string) (*model.RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", path)
	}
	return l.Load(ctx, filepath.Base(path), data)
}

// Load picks a decoder from the file extension of name. Unknown extensions
// are treated as delimited text.
func (l *Loader) Load(ctx context.Context, name string, data []byte) (*model.RawDocument, error) {
	return l.load(ctx, name, data, true)
}

func (l *Loader) load(ctx context.Context, name string, data []byte, allowZIP bool) (*model.RawDocument, error) {
	doc := &model.RawDocument{FileName: name}
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".xlsx":
		rows, err := ReadXLSX(data, XLSXOptions{})
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: load %s", name)
		}
		doc.MimeHint = MimeXLSX
		doc.RawText = JoinRows(rows)
	case ".ofx", ".qfx":
		text, err := ReadOFX(bytes.NewReader(data))
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: load %s", name)
		}
		doc.MimeHint = MimeOFX
		doc.RawText = text
	case ".pdf":
		if l.pdf == nil {
			return nil, eris.Errorf("fetcher: no PDF extractor configured for %s", name)
		}
		text, err := l.pdf.ExtractText(ctx, name, data)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: load %s", name)
		}
		doc.MimeHint = MimePDF
		doc.RawText = text
		doc.RawBinary = data
	case ".zip":
		if !allowZIP {
			return nil, eris.Errorf("fetcher: nested archive %s", name)
		}
		inner, content, err := SingleFromZIP(data)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: load %s", name)
		}
		return l.load(ctx, inner, content, false)
	default:
		doc.MimeHint = MimeText
		doc.RawText = DecodeText(data)
	}

	zap.L().Debug("document loaded",
		zap.String("component", "fetcher"),
		zap.String("file", name),
		zap.String("mime", doc.MimeHint),
		zap.Int("bytes", len(data)),
	)
	return doc, nil
}

// DecodeText returns data as UTF-8. Bank exports that are not valid UTF-8
// are decoded as Windows-1252, the usual encoding of Brazilian CSV exports.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(out)
}

// JoinRows renders cell rows as delimited text lines. Cells containing the
// delimiter have it replaced by a space.
func JoinRows(rows [][]string) string {
	var sb strings.Builder
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.ReplaceAll(strings.TrimSpace(c), RowDelimiter, " ")
		}
		sb.WriteString(strings.Join(cells, RowDelimiter))
		sb.WriteByte('\n')
	}
	return sb.String()
}
