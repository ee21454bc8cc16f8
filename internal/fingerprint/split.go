package fingerprint

import "strings"

// Delimiters in detection priority order.
var Delimiters = []string{";", "\t", ",", "|"}

// DetectDelimiter returns the first delimiter from Delimiters that occurs in
// line, or ";" when none does.
func DetectDelimiter(line string) string {
	for _, d := range Delimiters {
		if strings.Contains(line, d) {
			return d
		}
	}
	return Delimiters[0]
}

// SplitLine splits a delimited line, honouring double-quoted fields and
// doubled quotes inside them. Cells are returned untrimmed.
func SplitLine(line, delim string) []string {
	if delim == "" {
		return []string{line}
	}
	if !strings.Contains(line, `"`) {
		return strings.Split(line, delim)
	}

	var cells []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
		case !inQuotes && strings.HasPrefix(line[i:], delim):
			cells = append(cells, cur.String())
			cur.Reset()
			i += len(delim) - 1
		default:
			cur.WriteByte(c)
		}
	}
	return append(cells, cur.String())
}

// TrimCells trims every cell and drops trailing empty cells left behind by
// spreadsheet exports.
func TrimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	end := len(out)
	for end > 0 && out[end-1] == "" {
		end--
	}
	return out[:end]
}
