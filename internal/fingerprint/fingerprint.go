// Package fingerprint derives the structural signature of a statement file:
// delimiter, column count, header hash and data-type topology.
package fingerprint

import (
	"strings"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

// TopologySampleRows is how many data rows feed the topology signature.
const TopologySampleRows = 30

// Cell classes used in topology patterns.
const (
	ClassDate   = "DATE"
	ClassNumber = "NUMBER"
	ClassText   = "TEXT"
	ClassEmpty  = "EMPTY"
)

// Compute fingerprints raw text content. It returns nil for empty content.
func Compute(rawText string) *model.StructuralFingerprint {
	if strings.TrimSpace(rawText) == "" {
		return nil
	}

	lines := nonEmptyLines(rawText)
	header := lines[0]
	delim := DetectDelimiter(header)
	cells := TrimCells(SplitLine(header, delim))

	fp := &model.StructuralFingerprint{
		ColumnCount:         len(cells),
		Delimiter:           delim,
		DataTopologyPattern: Topology(lines[1:], delim, len(cells)),
	}
	if len(cells) > 0 {
		h := Hash(strings.ToUpper(strings.Join(cells, delim)))
		fp.HeaderHash = &h
	}
	return fp
}

// Topology returns the most frequent per-row class pattern over the first
// TopologySampleRows data rows, or model.UnknownPattern without data. Rows
// are cut or padded to width so phantom columns do not alter the shape.
func Topology(dataLines []string, delim string, width int) string {
	counts := make(map[string]int)
	var order []string

	rows := 0
	for _, line := range dataLines {
		if rows == TopologySampleRows {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		p := rowPattern(SplitLine(line, delim), width)
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
		rows++
	}

	if len(order) == 0 {
		return model.UnknownPattern
	}
	best := order[0]
	for _, p := range order[1:] {
		if counts[p] > counts[best] {
			best = p
		}
	}
	return best
}

// Classify returns the topology class of one cell.
func Classify(cell string) string {
	cell = strings.TrimSpace(cell)
	switch {
	case cell == "":
		return ClassEmpty
	case resolve.IsDateLike(cell):
		return ClassDate
	case resolve.IsNumeric(cell):
		return ClassNumber
	default:
		return ClassText
	}
}

func rowPattern(cells []string, width int) string {
	if width <= 0 {
		width = len(cells)
	}
	classes := make([]string, width)
	for i := range classes {
		if i < len(cells) {
			classes[i] = Classify(cells[i])
		} else {
			classes[i] = ClassEmpty
		}
	}
	return strings.Join(classes, ",")
}

func nonEmptyLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
