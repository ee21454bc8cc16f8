package resolve

import (
	"regexp"
	"strings"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

type keywordRule struct {
	label string
	re    *regexp.Regexp
}

func rule(label, pattern string) keywordRule {
	return keywordRule{label: label, re: regexp.MustCompile(`\b(?:` + pattern + `)\b`)}
}

// Contribution vocabulary is checked before generic bank operations, so
// "PIX DIZIMO" is a DIZIMO and a plain "PIX RECEBIDO" is a TRANSFERENCIA.
var contributionTypes = []keywordRule{
	rule("DIZIMO", `DIZIMOS?`),
	rule("OFERTA", `OFERTAS?|OFERT`),
	rule("MISSOES", `MISSOES|MISSAO|MISSIONARIAS?`),
	rule("PRIMICIAS", `PRIMICIAS?`),
	rule("VOTO", `VOTOS?`),
	rule("CAMPANHA", `CAMPANHAS?`),
	rule("DOACAO", `DOACAO|DOACOES`),
}

var operationTypes = []keywordRule{
	rule("ESTORNO", `ESTORNO|DEVOLUCAO|DEVOL`),
	rule("TARIFA", `TARIFAS?|TAR|CESTA|IOF|ENCARGOS?`),
	rule("RENDIMENTO", `RENDIMENTOS?|REND PAGO|JUROS`),
	rule("SAQUE", `SAQUE`),
	rule("DEPOSITO", `DEPOSITO|DEP DINHEIRO|DEP`),
	rule("TRANSFERENCIA", `TRANSF\w*|PIX|TED|DOC`),
	rule("PAGAMENTO", `PAGAMENTO|PAGTO|PGTO|BOLETO`),
}

var paymentMethods = []struct {
	method model.PaymentMethod
	re     *regexp.Regexp
}{
	{model.PaymentPIX, regexp.MustCompile(`\bPIX\b`)},
	{model.PaymentTED, regexp.MustCompile(`\bTED\b`)},
	{model.PaymentDOC, regexp.MustCompile(`\bDOC\b`)},
	{model.PaymentBoleto, regexp.MustCompile(`\bBOLETO\b|\bTITULO\b`)},
	{model.PaymentCard, regexp.MustCompile(`\bCARTAO\b|\bVISA\b|\bMASTER(?:CARD)?\b|\bELO\b`)},
	{model.PaymentCheque, regexp.MustCompile(`\bCHEQUE\b|\bCHQ\b`)},
	{model.PaymentCash, regexp.MustCompile(`\bDINHEIRO\b|\bESPECIE\b`)},
}

// ClassifyType returns the contribution or operation type of a description,
// or model.TypeOther.
func ClassifyType(desc string) string {
	s := foldUpper(desc)
	if s == "" {
		return model.TypeOther
	}
	for _, table := range [][]keywordRule{contributionTypes, operationTypes} {
		for _, r := range table {
			if r.re.MatchString(s) {
				return r.label
			}
		}
	}
	return model.TypeOther
}

// DetectPaymentMethod infers the payment channel from a description or a
// payment-method cell. Unknown or empty input yields model.PaymentOther.
func DetectPaymentMethod(desc string) model.PaymentMethod {
	s := foldUpper(desc)
	if s == "" {
		return model.PaymentOther
	}
	for _, pm := range paymentMethods {
		if pm.re.MatchString(s) {
			return pm.method
		}
	}
	return model.PaymentOther
}

func foldUpper(s string) string {
	return strings.ToUpper(Fold(strings.TrimSpace(s)))
}
