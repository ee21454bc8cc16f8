package model

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// PaymentMethod is the channel a transaction moved through.
type PaymentMethod string

const (
	PaymentPIX    PaymentMethod = "PIX"
	PaymentTED    PaymentMethod = "TED"
	PaymentDOC    PaymentMethod = "DOC"
	PaymentBoleto PaymentMethod = "BOLETO"
	PaymentCard   PaymentMethod = "CARTAO"
	PaymentCheque PaymentMethod = "CHEQUE"
	PaymentCash   PaymentMethod = "DINHEIRO"
	PaymentOther  PaymentMethod = "OTHER"
)

// TransactionStatus is the durable lifecycle of a persisted transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusIdentified TransactionStatus = "identified"
	StatusResolved   TransactionStatus = "resolved"
)

var statusRank = map[TransactionStatus]int{
	StatusPending:    0,
	StatusIdentified: 1,
	StatusResolved:   2,
}

// Valid reports whether s is a known lifecycle status.
func (s TransactionStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle
// forward-only. Re-applying the current status is allowed.
func (s TransactionStatus) CanAdvanceTo(next TransactionStatus) bool {
	from, ok1 := statusRank[s]
	to, ok2 := statusRank[next]
	return ok1 && ok2 && to >= from
}

// TypeOther is the fallback contribution type.
const TypeOther = "OTHER"

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NormalizedTransaction is the canonical three-column output of extraction.
type NormalizedTransaction struct {
	Date   string  `json:"date"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// Validate returns the reasons the transaction is not viable, or nil.
func (n NormalizedTransaction) Validate() []string {
	var reasons []string
	if !isoDateRe.MatchString(n.Date) {
		reasons = append(reasons, "invalid date")
	} else if _, err := time.Parse(time.DateOnly, n.Date); err != nil {
		reasons = append(reasons, "invalid date")
	}
	if len([]rune(strings.TrimSpace(n.Name))) < 2 {
		reasons = append(reasons, "description too short")
	}
	if math.IsNaN(n.Amount) || math.IsInf(n.Amount, 0) {
		reasons = append(reasons, "amount not finite")
	}
	return reasons
}

// Transaction is a normalized transaction enriched after extraction.
type Transaction struct {
	NormalizedTransaction
	ID                 string            `json:"id"`
	RawDescription     string            `json:"raw_description"`
	CleanedDescription string            `json:"cleaned_description"`
	PaymentMethod      PaymentMethod     `json:"payment_method"`
	ContributionType   string            `json:"contribution_type"`
	SourceBankID       string            `json:"source_bank_id"`
	Status             TransactionStatus `json:"status,omitempty"`
	RowHash            string            `json:"row_hash,omitempty"`
	MatchMethod        MatchMethod       `json:"match_method,omitempty"`
}

// ParsedDate returns the transaction date, or false when it is not ISO.
func (t Transaction) ParsedDate() (time.Time, bool) {
	d, err := time.Parse(time.DateOnly, t.Date)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
