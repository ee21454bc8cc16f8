// Package grouping splits flat text lines into logical multi-line records.
package grouping

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// Trigger names what opened a record.
type Trigger string

const (
	TriggerHeader Trigger = "HEADER"
	TriggerDate   Trigger = "DATE"
	TriggerAmount Trigger = "AMOUNT"
)

// Rules decide which lines open a new record.
type Rules struct {
	DateRegex      *regexp.Regexp
	AmountRegex    *regexp.Regexp
	AllowMultiLine bool
}

// Record is a group of consecutive input lines.
type Record struct {
	Trigger   Trigger
	StartLine int
	Lines     []string
}

// Default patterns for Brazilian statements: a line opening with a day/month
// date, and a line ending in a signed decimal amount.
const (
	DefaultDatePattern   = `^\s*\d{1,2}[/.\-]\d{1,2}(?:[/.\-]\d{2,4})?\b`
	DefaultAmountPattern = `(?:^|\s)[-(]?(?:R\$\s*)?\d{1,3}(?:[.,]?\d{3})*[.,]\d{2}\)?\s*[-CD]?\s*$`
)

// DefaultRules returns rules built from the default patterns.
func DefaultRules() Rules {
	return Rules{
		DateRegex:      regexp.MustCompile(DefaultDatePattern),
		AmountRegex:    regexp.MustCompile(DefaultAmountPattern),
		AllowMultiLine: true,
	}
}

// RulesFromSpec compiles a model grouping spec, falling back to the default
// for any empty regex or unset multi-line flag.
func RulesFromSpec(spec model.GroupingSpec) (Rules, error) {
	r := DefaultRules()
	if spec.AllowMultiLine != nil {
		r.AllowMultiLine = *spec.AllowMultiLine
	}
	if spec.DateRegex != "" {
		re, err := regexp.Compile(spec.DateRegex)
		if err != nil {
			return Rules{}, eris.Wrap(err, "grouping: compile date regex")
		}
		r.DateRegex = re
	}
	if spec.AmountRegex != "" {
		re, err := regexp.Compile(spec.AmountRegex)
		if err != nil {
			return Rules{}, eris.Wrap(err, "grouping: compile amount regex")
		}
		r.AmountRegex = re
	}
	return r, nil
}

// Group splits lines into records. Every input line lands in exactly one
// record: lines before the first trigger form a HEADER record and blank
// lines stay with the record they follow.
func Group(lines []string, rules Rules) []Record {
	var records []Record
	var cur *Record

	flush := func() {
		if cur != nil {
			records = append(records, *cur)
			cur = nil
		}
	}
	open := func(t Trigger, i int, line string) {
		flush()
		cur = &Record{Trigger: t, StartLine: i, Lines: []string{line}}
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if cur == nil {
				cur = &Record{Trigger: TriggerHeader, StartLine: i}
			}
			cur.Lines = append(cur.Lines, line)
			continue
		}

		recordOpen := cur != nil && cur.Trigger != TriggerHeader
		switch {
		case matches(rules.DateRegex, line):
			open(TriggerDate, i, line)
		case matches(rules.AmountRegex, line) && (!rules.AllowMultiLine || !recordOpen):
			open(TriggerAmount, i, line)
		case cur == nil:
			cur = &Record{Trigger: TriggerHeader, StartLine: i, Lines: []string{line}}
		default:
			cur.Lines = append(cur.Lines, line)
		}
	}
	flush()
	return records
}

// Flatten joins the non-blank lines of each non-header record with single
// spaces, one record per output line.
func Flatten(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Trigger == TriggerHeader {
			continue
		}
		var parts []string
		for _, l := range r.Lines {
			if t := strings.TrimSpace(l); t != "" {
				parts = append(parts, t)
			}
		}
		out = append(out, strings.Join(parts, " "))
	}
	return out
}

// LineCount returns the total number of lines across records.
func LineCount(records []Record) int {
	n := 0
	for _, r := range records {
		n += len(r.Lines)
	}
	return n
}

func matches(re *regexp.Regexp, line string) bool {
	return re != nil && re.MatchString(line)
}
