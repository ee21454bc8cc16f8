// Package resolve scores candidate columns and normalizes raw cell values
// into canonical dates, amounts, names and transaction types.
package resolve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	sampleLimit  = 100
	minDateRatio = 0.20
	minYear      = 1900
	maxYear      = 2100
)

var (
	timeSuffix = `(?:[T\s]+\d{1,2}:\d{2}(?::\d{2})?(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)?`

	dmyRe     = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})` + timeSuffix + `$`)
	isoRe     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})` + timeSuffix + `$`)
	partialRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
	textualRe = regexp.MustCompile(`^(\d{1,2})[\s/.\-]*([A-Za-zÀ-ÿ]{3,9})\.?(?:[\s/.\-]+(\d{4}|\d{2}))?$`)

	anchorContextRe = regexp.MustCompile(`(?i)\b(?:ANO|PER[IÍ]ODO|EXERC[IÍ]CIO|REFER[EÊ]NCIA|M[EÊ]S)\b[^\d\n]{0,40}?(?:\d{1,2}[/.\-])*((?:19|20)\d{2})\b`)
	anchorDateRe    = regexp.MustCompile(`\b(?:\d{1,2}[/.\-]\d{1,2}[/.\-]((?:19|20)\d{2})|((?:19|20)\d{2})-\d{1,2}-\d{1,2})\b`)
)

// monthNames holds the accepted month tokens, folded to lowercase ASCII:
// three-letter abbreviations and full names in Portuguese and English.
var monthNames = map[string]int{
	"jan": 1, "fev": 2, "feb": 2, "mar": 3, "abr": 4, "apr": 4,
	"mai": 5, "may": 5, "jun": 6, "jul": 7, "ago": 8, "aug": 8,
	"set": 9, "sep": 9, "sept": 9, "out": 10, "oct": 10, "nov": 11, "dez": 12, "dec": 12,

	"janeiro": 1, "fevereiro": 2, "marco": 3, "abril": 4, "maio": 5, "junho": 6,
	"julho": 7, "agosto": 8, "setembro": 9, "outubro": 10, "novembro": 11, "dezembro": 12,

	"january": 1, "february": 2, "march": 3, "april": 4, "june": 6, "july": 7,
	"august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

// NormalizeDate converts a raw date cell into YYYY-MM-DD. Partial dates
// (DD/MM or DD MMM) take anchorYear; zero rejects them.
func NormalizeDate(raw string, anchorYear int) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if m := isoRe.FindStringSubmatch(s); m != nil {
		return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dmyRe.FindStringSubmatch(s); m != nil {
		return buildDate(expandYear(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := partialRe.FindStringSubmatch(s); m != nil {
		if anchorYear == 0 {
			return "", false
		}
		return buildDate(anchorYear, atoi(m[2]), atoi(m[1]))
	}
	if m := textualRe.FindStringSubmatch(s); m != nil {
		month, ok := monthFromName(m[2])
		if !ok {
			return "", false
		}
		year := anchorYear
		if m[3] != "" {
			year = expandYear(m[3])
		}
		if year == 0 {
			return "", false
		}
		return buildDate(year, month, atoi(m[1]))
	}
	return "", false
}

// IsDateLike reports whether the cell has a date shape with valid ranges.
// Partial dates are tested against a leap year so 29/02 qualifies.
func IsDateLike(raw string) bool {
	_, ok := NormalizeDate(raw, 2000)
	return ok
}

// IdentifyDateColumn returns the column whose sampled cells most often look
// like dates, or -1 when no column reaches the minimum ratio.
func IdentifyDateColumn(rows [][]string) int {
	sample := sampleRows(rows)
	if len(sample) == 0 {
		return -1
	}

	best, bestRatio := -1, 0.0
	for col := 0; col < maxWidth(sample); col++ {
		hits := 0
		for _, row := range sample {
			if col < len(row) && IsDateLike(row[col]) {
				hits++
			}
		}
		ratio := float64(hits) / float64(len(sample))
		if ratio >= minDateRatio && ratio > bestRatio {
			best, bestRatio = col, ratio
		}
	}
	return best
}

// DiscoverAnchorYear finds the year partial dates belong to: a labelled
// period such as "PERIODO: 01/07/2024 A 31/07/2024", then the first full
// date in the text, then now.
func DiscoverAnchorYear(text string, now time.Time) int {
	if m := anchorContextRe.FindStringSubmatch(text); m != nil {
		if y := atoi(m[1]); y >= minYear && y <= maxYear {
			return y
		}
	}
	if m := anchorDateRe.FindStringSubmatch(text); m != nil {
		y := m[1]
		if y == "" {
			y = m[2]
		}
		return atoi(y)
	}
	return now.Year()
}

func buildDate(year, month, day int) (string, bool) {
	if year < minYear || year > maxYear || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

func expandYear(s string) int {
	y := atoi(s)
	if len(s) == 2 {
		return 2000 + y
	}
	return y
}

// monthFromName accepts only whole month tokens, so words such as MARIA or
// OUTROS are not read as months.
func monthFromName(name string) (int, bool) {
	m, ok := monthNames[strings.ToLower(Fold(name))]
	return m, ok
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func sampleRows(rows [][]string) [][]string {
	if len(rows) > sampleLimit {
		return rows[:sampleLimit]
	}
	return rows
}

func maxWidth(rows [][]string) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}
