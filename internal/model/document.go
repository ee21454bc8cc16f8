package model

import "strings"

// RawDocument is an immutable snapshot of an uploaded statement file.
type RawDocument struct {
	FileName  string `json:"file_name"`
	MimeHint  string `json:"mime_hint,omitempty"`
	RawText   string `json:"raw_text"`
	RawBinary []byte `json:"-"`
}

// Lines splits RawText into lines, dropping carriage returns.
func (d RawDocument) Lines() []string {
	if d.RawText == "" {
		return nil
	}
	text := strings.ReplaceAll(d.RawText, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

// Preview returns at most n lines from the start of the document.
func (d RawDocument) Preview(n int) []string {
	lines := d.Lines()
	if n > 0 && len(lines) > n {
		lines = lines[:n]
	}
	return lines
}

// StructuralFingerprint is the structural signature of a document.
// It is a lookup key only and is recomputed on every ingestion.
type StructuralFingerprint struct {
	ColumnCount         int     `json:"column_count" yaml:"column_count"`
	Delimiter           string  `json:"delimiter" yaml:"delimiter"`
	HeaderHash          *string `json:"header_hash,omitempty" yaml:"header_hash,omitempty"`
	DataTopologyPattern string  `json:"data_topology_pattern" yaml:"data_topology_pattern"`
}

// UnknownPattern is the topology sentinel for documents without data rows.
const UnknownPattern = "UNKNOWN"

// DelimiterRune returns the delimiter as a rune, defaulting to ';'.
func (f StructuralFingerprint) DelimiterRune() rune {
	for _, r := range f.Delimiter {
		return r
	}
	return ';'
}

// HasHeaderHash reports whether the fingerprint carries a header hash.
func (f StructuralFingerprint) HasHeaderHash() bool {
	return f.HeaderHash != nil && *f.HeaderHash != ""
}
