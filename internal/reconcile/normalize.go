// Package reconcile matches bank transactions against contributor lists.
package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

// Normalize case-folds s, strips accents, replaces punctuation with spaces
// and collapses whitespace: "PIX  João-da Silva" becomes "pix joao da silva".
func Normalize(s string) string {
	// Casers are stateful; one per call keeps Normalize safe for concurrent use.
	s = cases.Fold().String(resolve.Fold(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// noiseTokens are bank channel words that precede the payer name in
// statement descriptions. They carry no identity and are ignored when
// scoring.
var noiseTokens = map[string]struct{}{
	"pix": {}, "ted": {}, "doc": {}, "tef": {}, "transf": {}, "transferencia": {},
	"recebido": {}, "recebida": {}, "receb": {}, "rec": {}, "enviado": {}, "enviada": {},
	"credito": {}, "cred": {}, "deposito": {}, "dep": {}, "remetente": {}, "rem": {},
	"boleto": {}, "pagamento": {}, "pgto": {}, "pagto": {}, "de": {}, "para": {},
}

// Tokens returns the distinct identity-bearing tokens of a normalized string:
// channel words and tokens containing digits (ids, CPF fragments, dates) are
// dropped.
func Tokens(normalized string) []string {
	fields := strings.Fields(normalized)
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, noise := noiseTokens[f]; noise {
			continue
		}
		if strings.IndexFunc(f, unicode.IsDigit) >= 0 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Dice returns the Dice coefficient of two token sets scaled to 0..100.
func Dice(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	common := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b)) * 100
}

// Similarity scores two raw strings with Dice over their Tokens.
func Similarity(a, b string) float64 {
	return Dice(Tokens(Normalize(a)), Tokens(Normalize(b)))
}
