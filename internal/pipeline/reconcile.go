package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/reconcile"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/store"
)

// pendingPageSize is the page size used when draining pending rows.
const pendingPageSize = 500

// ReconcileRequest describes a matching pass over stored transactions.
type ReconcileRequest struct {
	UserID       string
	Contributors []model.Contributor
	// Transactions defaults to every pending row of the user when nil.
	Transactions []model.Transaction
	// Apply advances identified rows to the identified status.
	Apply bool
}

// ReconcileResult is the outcome of Reconcile.
type ReconcileResult struct {
	Results  []model.MatchResult `json:"results"`
	Summary  reconcile.Summary   `json:"summary"`
	Updated  int                 `json:"updated"`
	Warnings []error             `json:"-"`
	Metrics  metrics.Snapshot    `json:"metrics"`
}

// WarningMessages renders Warnings for serialization.
func (r *ReconcileResult) WarningMessages() []string {
	return messages(r.Warnings)
}

// PendingTransactions returns every pending transaction of userID, newest
// first.
func (p *Pipeline) PendingTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	var out []model.Transaction
	for offset := 0; ; offset += pendingPageSize {
		page, err := p.store.ListPending(ctx, userID, store.Page{Offset: offset, Limit: pendingPageSize})
		if err != nil {
			return out, eris.Wrap(err, "pipeline: list pending")
		}
		out = append(out, page...)
		if len(page) < pendingPageSize {
			return out, nil
		}
	}
}

// Reconcile matches transactions against contributors using the user's
// learned associations.
func (p *Pipeline) Reconcile(ctx context.Context, m *metrics.Collector, req ReconcileRequest) (*ReconcileResult, error) {
	if req.UserID == "" {
		return nil, eris.New("pipeline: user is required")
	}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("user", req.UserID))

	txs := req.Transactions
	if txs == nil {
		var err error
		if txs, err = p.PendingTransactions(ctx, req.UserID); err != nil {
			return nil, err
		}
	}
	assocs, err := p.store.ListAssociations(ctx, req.UserID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load associations")
	}

	result := &ReconcileResult{}
	result.Results = reconcile.NewMatcher(m).Match(txs, req.Contributors, assocs, p.matchOptions())
	result.Summary = reconcile.Summarize(result.Results)

	if req.Apply {
		for _, r := range result.Results {
			if r.Status != model.MatchIdentified || r.Transaction.ID == "" {
				continue
			}
			err := p.store.UpdateTransactionStatus(ctx, req.UserID, r.Transaction.ID, model.StatusIdentified)
			switch {
			case err == nil:
				result.Updated++
			case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidTransition):
				result.Warnings = append(result.Warnings, err)
			default:
				result.Metrics = m.Snapshot()
				return result, eris.Wrap(err, "pipeline: update status")
			}
		}
	}

	result.Metrics = m.Snapshot()
	log.Info("pipeline: reconcile complete",
		zap.Int("transactions", len(txs)),
		zap.Int("contributors", len(req.Contributors)),
		zap.Int("identified", result.Summary.ByStatus[model.MatchIdentified]),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

// Confirm records a user's manual identification: the result is re-issued as
// MANUAL, the association is saved for future passes and the stored row is
// advanced to identified.
func (p *Pipeline) Confirm(ctx context.Context, userID string, r model.MatchResult, c model.Contributor) (model.MatchResult, error) {
	out, assoc, err := reconcile.ConfirmManual(r, c)
	if err != nil {
		return r, err
	}
	if err := p.store.SaveAssociation(ctx, userID, assoc); err != nil {
		return r, eris.Wrap(err, "pipeline: save association")
	}
	if id := r.Transaction.ID; id != "" {
		if err := p.store.UpdateTransactionStatus(ctx, userID, id, model.StatusIdentified); err != nil && !errors.Is(err, store.ErrNotFound) {
			return r, eris.Wrap(err, "pipeline: update status")
		}
	}
	return out, nil
}
