package fetcher

import (
	"io"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/rotisserie/eris"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

// OFXHeader is the header row emitted for OFX statements.
const OFXHeader = "DATA;HISTORICO;VALOR"

var (
	severityRe = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRe  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX repairs formatting that banks commonly get wrong in SGML
// exports before handing the document to ofxgo.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n\ufeff")
	content = severityRe.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagRe.ReplaceAllString(content, "$1>")
}

// ReadOFX parses bank and credit card statements and renders their
// transactions as delimited rows: date (DD/MM/YYYY), description and a
// signed amount with a decimal comma.
func ReadOFX(r io.Reader) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", eris.Wrap(err, "ofx: read")
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return "", eris.Wrap(err, "ofx: parse")
	}

	var sb strings.Builder
	sb.WriteString(OFXHeader)
	sb.WriteByte('\n')

	rows := 0
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			for _, tx := range stmt.BankTranList.Transactions {
				writeOFXRow(&sb, tx)
				rows++
			}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			for _, tx := range stmt.BankTranList.Transactions {
				writeOFXRow(&sb, tx)
				rows++
			}
		}
	}
	if rows == 0 {
		return "", eris.New("ofx: no transactions")
	}
	return sb.String(), nil
}

func writeOFXRow(sb *strings.Builder, tx ofxgo.Transaction) {
	amount, _ := tx.TrnAmt.Float64()
	cells := []string{
		tx.DtPosted.Format("02/01/2006"),
		ofxDescription(tx),
		strings.Replace(resolve.FormatAmount(amount), ".", ",", 1),
	}
	for i, c := range cells {
		cells[i] = strings.ReplaceAll(c, RowDelimiter, " ")
	}
	sb.WriteString(strings.Join(cells, RowDelimiter))
	sb.WriteByte('\n')
}

// ofxDescription prefers NAME, falling back to PAYEE; MEMO is appended when
// it adds information.
func ofxDescription(tx ofxgo.Transaction) string {
	name := strings.TrimSpace(string(tx.Name))
	if name == "" && tx.Payee != nil {
		name = strings.TrimSpace(string(tx.Payee.Name))
	}
	memo := strings.TrimSpace(string(tx.Memo))
	switch {
	case memo == "" || strings.EqualFold(memo, name):
		return name
	case name == "":
		return memo
	default:
		return name + " " + memo
	}
}
