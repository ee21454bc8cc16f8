package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

var (
	// ErrNotFound is returned when a transaction does not exist for the user.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidTransition is returned when a status update would move a
	// transaction backwards in its lifecycle.
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// DefaultPageLimit applies when a Page carries no limit.
const DefaultPageLimit = 50

// Page selects a window of an ordered listing.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func (p Page) normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	return p
}

// Store defines the durable persistence interface of the ingestion engine.
type Store interface {
	// Transactions
	InsertTransactions(ctx context.Context, userID string, rows []model.Transaction) (int, error)
	ExistingHashes(ctx context.Context, userID string) ([]string, error)
	UpdateTransactionStatus(ctx context.Context, userID, id string, status model.TransactionStatus) error
	ListPending(ctx context.Context, userID string, page Page) ([]model.Transaction, error)

	// Learned models
	ListActive(ctx context.Context) ([]model.LearnedFileModel, error)
	FindByFingerprint(ctx context.Context, fp model.StructuralFingerprint) ([]model.LearnedFileModel, error)
	SaveModels(ctx context.Context, models []model.LearnedFileModel) (int, error)

	// Learned associations
	ListAssociations(ctx context.Context, userID string) ([]model.LearnedAssociation, error)
	SaveAssociation(ctx context.Context, userID string, a model.LearnedAssociation) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// transactionColumns is the column order shared by inserts and scans.
var transactionColumns = []string{
	"id", "user_id", "row_hash", "date", "name", "amount",
	"raw_description", "cleaned_description", "payment_method",
	"contribution_type", "source_bank_id", "status", "match_method",
}

func transactionRow(userID string, t model.Transaction) []any {
	status := t.Status
	if status == "" {
		status = model.StatusPending
	}
	return []any{
		t.ID, userID, t.RowHash, t.Date, t.Name, t.Amount,
		t.RawDescription, t.CleanedDescription, string(t.PaymentMethod),
		t.ContributionType, t.SourceBankID, string(status), string(t.MatchMethod),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTransaction(row scannable) (model.Transaction, error) {
	var t model.Transaction
	var userID, payment, status, method string
	err := row.Scan(
		&t.ID, &userID, &t.RowHash, &t.Date, &t.Name, &t.Amount,
		&t.RawDescription, &t.CleanedDescription, &payment,
		&t.ContributionType, &t.SourceBankID, &status, &method,
	)
	t.PaymentMethod = model.PaymentMethod(payment)
	t.Status = model.TransactionStatus(status)
	t.MatchMethod = model.MatchMethod(method)
	return t, err
}

// checkTransition validates a lifecycle move from current to next.
func checkTransition(current, next model.TransactionStatus) error {
	if !next.Valid() {
		return eris.Wrapf(ErrInvalidTransition, "unknown status %q", next)
	}
	if !current.CanAdvanceTo(next) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", current, next)
	}
	return nil
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
