// Package dedup assigns stable per-occurrence row hashes to extracted
// transactions and persists only rows the store has not seen.
package dedup

import (
	"strconv"
	"strings"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fingerprint"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/resolve"
)

// BaseHash identifies a transaction's content for one user and bank.
// Identical rows share a base hash; occurrence indices tell them apart.
func BaseHash(userID, bankID string, tx model.Transaction) string {
	method := tx.PaymentMethod
	if method == "" {
		method = model.PaymentOther
	}
	key := strings.Join([]string{
		userID,
		bankID,
		tx.Date,
		resolve.FormatAmount(tx.Amount),
		string(method),
		strings.ToUpper(strings.TrimSpace(tx.RawDescription)),
	}, "|")
	return fingerprint.Hash(key)
}

// FullHash appends the occurrence index to a base hash.
func FullHash(base string, index int) string {
	return base + "_" + strconv.Itoa(index)
}

// ParseHash splits a stored row hash into base and index.
func ParseHash(h string) (string, int, bool) {
	i := strings.LastIndexByte(h, '_')
	if i <= 0 || i == len(h)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return h[:i], n, true
}
