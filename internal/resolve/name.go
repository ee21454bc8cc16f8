package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const minNameScore = 0.20

// Fold removes diacritics: "JOÃO" becomes "JOAO".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName uppercases a description and collapses whitespace. It keeps
// every word: stripping keywords such as "PIX" is a display concern.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(raw)), " ")
}

// IdentifyNameColumn returns the column that most looks like free-text
// descriptions: alphabetic, multi-word and not numeric. Returns -1 when no
// column qualifies.
func IdentifyNameColumn(rows [][]string, exclude ...int) int {
	sample := sampleRows(rows)
	if len(sample) == 0 {
		return -1
	}
	skip := make(map[int]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	best, bestScore := -1, 0.0
	for col := 0; col < maxWidth(sample); col++ {
		if skip[col] {
			continue
		}
		var total float64
		for _, row := range sample {
			if col < len(row) {
				total += nameCellScore(row[col])
			}
		}
		score := total / float64(len(sample))
		if score >= minNameScore && score > bestScore {
			best, bestScore = col, score
		}
	}
	return best
}

func nameCellScore(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" || IsNumeric(cell) || IsDateLike(cell) {
		return 0
	}
	letters := 0
	for _, r := range cell {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 2 {
		return 0
	}
	score := 1.0
	if len(strings.Fields(cell)) > 1 {
		score += 0.5
	}
	if float64(letters)/float64(len([]rune(cell))) >= 0.5 {
		score += 0.25
	}
	return score
}
