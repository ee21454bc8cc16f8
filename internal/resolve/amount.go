package resolve

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const minAmountRatio = 0.20

var (
	digitsOnlyRe   = regexp.MustCompile(`^[0-9.,]+$`)
	currencyTokens = strings.NewReplacer("US$", "", "R$", "", "$", "", "BRL", "", "USD", "", " ", "", "\u00a0", "", "\t", "")
)

// ParseAmount converts a raw amount cell into a signed float.
func ParseAmount(raw string) (float64, bool) {
	d, ok := ParseDecimal(raw)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// CleanAmount converts a raw amount cell into a signed two-decimal string.
func CleanAmount(raw string) (string, bool) {
	d, ok := ParseDecimal(raw)
	if !ok {
		return "", false
	}
	return d.StringFixed(2), true
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// ParseDecimal parses Brazilian and US amount notations.
//
// When both '.' and ',' appear, the rightmost one is the decimal point.
// When only one appears and every group after it has three digits, it
// separates thousands; otherwise it is the decimal point. A leading or
// trailing '-', surrounding parentheses or a leading or trailing 'D'
// marks a debit; any one of them makes the value negative.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := currencyTokens.Replace(strings.ToUpper(strings.TrimSpace(raw)))
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	for {
		before := s
		switch {
		case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && len(s) > 2:
			negative = true
			s = s[1 : len(s)-1]
		case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "D"):
			negative = true
			s = s[1:]
		case strings.HasSuffix(s, "-"), strings.HasSuffix(s, "D"):
			negative = true
			s = s[:len(s)-1]
		case strings.HasPrefix(s, "+"), strings.HasPrefix(s, "C"):
			s = s[1:]
		case strings.HasSuffix(s, "+"), strings.HasSuffix(s, "C"):
			s = s[:len(s)-1]
		}
		if s == before {
			break
		}
	}

	if s == "" || !digitsOnlyRe.MatchString(s) || !strings.ContainsAny(s, "0123456789") {
		return decimal.Zero, false
	}

	normalized, ok := normalizeSeparators(s)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

func normalizeSeparators(s string) (string, bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decSep, thouSep := ",", "."
		if lastDot > lastComma {
			decSep, thouSep = ".", ","
		}
		if strings.Count(s, decSep) > 1 {
			return "", false
		}
		s = strings.ReplaceAll(s, thouSep, "")
		return withLeadingZero(strings.Replace(s, decSep, ".", 1)), true
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		parts := strings.Split(s, sep)
		if isThousandsGrouping(parts) {
			return strings.Join(parts, ""), true
		}
		if len(parts) != 2 {
			return "", false
		}
		return withLeadingZero(parts[0] + "." + parts[1]), true
	default:
		return s, true
	}
}

func isThousandsGrouping(parts []string) bool {
	if len(parts) < 2 || parts[0] == "" || parts[0] == "0" || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

func withLeadingZero(s string) string {
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return strings.TrimSuffix(s, ".")
}

// IsNumeric reports whether the cell is an amount and not a date.
func IsNumeric(raw string) bool {
	if IsDateLike(raw) {
		return false
	}
	_, ok := ParseDecimal(raw)
	return ok
}

type amountCandidate struct {
	col        int
	avg        float64
	decimalish bool
}

// IdentifyAmountColumn returns the numeric column with the smallest average
// magnitude. Running balances are usually far larger than the transaction
// amounts they accumulate, so magnitude separates the two. Columns whose
// values never carry decimals (sequence numbers, document ids) are only
// considered when no decimal column qualifies.
func IdentifyAmountColumn(rows [][]string, exclude ...int) int {
	sample := sampleRows(rows)
	if len(sample) == 0 {
		return -1
	}
	skip := make(map[int]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}

	var candidates []amountCandidate
	for col := 0; col < maxWidth(sample); col++ {
		if skip[col] {
			continue
		}
		var hits, withDecimals int
		var sum float64
		for _, row := range sample {
			if col >= len(row) || !IsNumeric(row[col]) {
				continue
			}
			v, _ := ParseAmount(row[col])
			hits++
			sum += math.Abs(v)
			if strings.ContainsAny(row[col], ".,") {
				withDecimals++
			}
		}
		if hits == 0 || float64(hits)/float64(len(sample)) < minAmountRatio {
			continue
		}
		candidates = append(candidates, amountCandidate{
			col:        col,
			avg:        sum / float64(hits),
			decimalish: withDecimals*2 >= hits,
		})
	}

	if best := smallest(candidates, true); best >= 0 {
		return best
	}
	return smallest(candidates, false)
}

func smallest(candidates []amountCandidate, decimalOnly bool) int {
	best, bestAvg := -1, math.MaxFloat64
	for _, c := range candidates {
		if decimalOnly && !c.decimalish {
			continue
		}
		if c.avg < bestAvg {
			best, bestAvg = c.col, c.avg
		}
	}
	return best
}
