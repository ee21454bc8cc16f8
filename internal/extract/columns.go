package extract

import (
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fingerprint"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

type sanitizer struct {
	re          *regexp.Regexp
	replacement string
}

func (e *Executor) columns(doc model.RawDocument, delim string, s model.Columns) (*Result, error) {
	skips := make([]*regexp.Regexp, 0, len(s.Constraints.SkipPatterns))
	for _, p := range s.Constraints.SkipPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: compile skip pattern %q", p)
		}
		skips = append(skips, re)
	}
	sanitizers := make([]sanitizer, 0, len(s.Sanitization))
	for _, r := range s.Sanitization {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: compile sanitization rule %q", r.Pattern)
		}
		sanitizers = append(sanitizers, sanitizer{re: re, replacement: r.Replacement})
	}

	anchor := s.Formatters.AnchorYear
	if anchor == 0 {
		anchor = resolve.DiscoverAnchorYear(doc.RawText, e.now())
	}

	res := &Result{}
	headers := s.Mapping.HeaderRows
	for i, line := range doc.Lines() {
		if strings.TrimSpace(line) == "" {
			e.metrics.RowBlank()
			continue
		}
		if headers > 0 {
			headers--
			continue
		}
		e.metrics.RowRead()

		if skipped(line, skips) {
			e.metrics.RowIgnored()
			continue
		}

		cells := fingerprint.SplitLine(line, delim)
		row, ok := e.columnRow(i+1, cells, s, anchor, sanitizers)
		if !ok {
			e.metrics.RowBlank()
			continue
		}
		if s.Constraints.IgnoreZeroAmounts && len(row.Issues) == 0 && row.Transaction.Amount == 0 {
			e.metrics.RowIgnored()
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// columnRow maps one split line through the resolvers. It returns false when
// date, description and amount cells are all empty.
func (e *Executor) columnRow(line int, cells []string, s model.Columns, anchor int, sanitizers []sanitizer) (Row, bool) {
	m := s.Mapping
	rawDate := cell(cells, &m.DateColumn)
	rawDesc := cell(cells, &m.DescriptionColumn)
	rawAmount := cell(cells, m.AmountColumn)
	rawDebit := cell(cells, m.DebitColumn)
	rawCredit := cell(cells, m.CreditColumn)

	if rawDate == "" && rawDesc == "" && rawAmount == "" && rawDebit == "" && rawCredit == "" {
		return Row{}, false
	}

	var issues []string
	amount, ok := columnAmount(rawAmount, rawDebit, rawCredit, m.AmountColumn != nil)
	if !ok {
		issues = append(issues, "invalid amount")
	}
	if s.Formatters.InvertSign && amount != 0 {
		amount = -amount
	}

	typeSource := rawDesc
	if m.TypeColumn != nil {
		typeSource = cell(cells, m.TypeColumn)
	}
	methodSource := rawDesc
	if m.PaymentMethodColumn != nil {
		methodSource = cell(cells, m.PaymentMethodColumn)
	}

	tx := buildTransaction(rawDate, rawDesc, amount, anchor, sanitizers)
	tx.PaymentMethod = resolve.DetectPaymentMethod(methodSource)
	if tx.PaymentMethod == model.PaymentOther && m.PaymentMethodColumn != nil {
		tx.PaymentMethod = resolve.DetectPaymentMethod(rawDesc)
	}
	tx.ContributionType = resolve.ClassifyType(typeSource)
	if tx.ContributionType == model.TypeOther && m.TypeColumn != nil {
		tx.ContributionType = resolve.ClassifyType(rawDesc)
	}

	return Row{Line: line, Transaction: tx, Issues: append(tx.Validate(), issues...)}, true
}

// columnAmount reads a single signed amount column, or a debit/credit pair
// where the debit value is always negative.
func columnAmount(rawAmount, rawDebit, rawCredit string, single bool) (float64, bool) {
	if single {
		return resolve.ParseAmount(rawAmount)
	}
	if rawDebit != "" {
		if v, ok := resolve.ParseAmount(rawDebit); ok && v != 0 {
			return -math.Abs(v), true
		}
	}
	if rawCredit != "" {
		if v, ok := resolve.ParseAmount(rawCredit); ok {
			return math.Abs(v), true
		}
	}
	if rawDebit != "" {
		if v, ok := resolve.ParseAmount(rawDebit); ok {
			return v, true
		}
	}
	return 0, false
}

// buildTransaction applies the shared date and description resolvers.
// Unparseable dates are kept verbatim so validation can report them.
func buildTransaction(rawDate, rawDesc string, amount float64, anchor int, sanitizers []sanitizer) model.Transaction {
	date, ok := resolve.NormalizeDate(rawDate, anchor)
	if !ok {
		date = strings.TrimSpace(rawDate)
	}
	raw := strings.TrimSpace(rawDesc)
	cleaned := resolve.NormalizeName(raw)
	for _, s := range sanitizers {
		cleaned = s.re.ReplaceAllString(cleaned, s.replacement)
	}
	cleaned = resolve.NormalizeName(cleaned)

	return model.Transaction{
		NormalizedTransaction: model.NormalizedTransaction{
			Date:   date,
			Name:   cleaned,
			Amount: amount,
		},
		ID:                 uuid.NewString(),
		RawDescription:     raw,
		CleanedDescription: cleaned,
		PaymentMethod:      model.PaymentOther,
		ContributionType:   model.TypeOther,
		Status:             model.StatusPending,
	}
}

func cell(cells []string, idx *int) string {
	if idx == nil || *idx < 0 || *idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[*idx])
}

func skipped(line string, skips []*regexp.Regexp) bool {
	for _, re := range skips {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
