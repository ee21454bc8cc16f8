// Package extract runs a learned model's strategy against a document and
// produces normalized transactions.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// Row is one extracted transaction with the source line it came from. Rows
// with Issues failed the minimum-viability check but are still reported.
type Row struct {
	Line        int               `json:"line"`
	Transaction model.Transaction `json:"transaction"`
	Issues      []string          `json:"issues,omitempty"`
}

// Result is the output of Execute.
type Result struct {
	Rows     []Row   `json:"rows"`
	Warnings []error `json:"-"`
}

// Valid returns the transactions that passed validation, in source order.
func (r *Result) Valid() []model.Transaction {
	out := make([]model.Transaction, 0, len(r.Rows))
	for _, row := range r.Rows {
		if len(row.Issues) == 0 {
			out = append(out, row.Transaction)
		}
	}
	return out
}

// Rejected returns a validation error for each row that failed validation.
func (r *Result) Rejected() []*model.ValidationRejectedError {
	var out []*model.ValidationRejectedError
	for _, row := range r.Rows {
		if len(row.Issues) > 0 {
			out = append(out, &model.ValidationRejectedError{Line: row.Line, Reasons: row.Issues})
		}
	}
	return out
}

// Executor dispatches on a model's strategy variant.
type Executor struct {
	blocks  BlockExtractor
	metrics *metrics.Collector
	now     func() time.Time
}

// NewExecutor creates an executor. blocks may be nil when only COLUMNS
// models are expected; BLOCK models then fail with a warning.
func NewExecutor(blocks BlockExtractor, m *metrics.Collector) *Executor {
	return &Executor{blocks: blocks, metrics: m, now: time.Now}
}

// Execute extracts transactions from doc using lm. Collaborator failures in
// BLOCK mode are reported in Result.Warnings, not as an error.
func (e *Executor) Execute(ctx context.Context, doc model.RawDocument, fp *model.StructuralFingerprint, lm *model.LearnedFileModel) (*Result, error) {
	if lm == nil {
		return nil, eris.New("extract: no model")
	}
	strategy, err := lm.Dispatch()
	if err != nil {
		return nil, eris.Wrapf(err, "extract: dispatch model %s", lm.Label())
	}

	log := zap.L().With(
		zap.String("component", "extract"),
		zap.String("file", doc.FileName),
		zap.String("model", lm.Label()),
		zap.String("parser", string(strategy.ParserType())),
	)

	var res *Result
	switch s := strategy.(type) {
	case model.Columns:
		delim := ";"
		if fp != nil && fp.Delimiter != "" {
			delim = fp.Delimiter
		}
		res, err = e.columns(doc, delim, s)
	case model.Block:
		res, err = e.block(ctx, doc, s)
	default:
		return nil, eris.Errorf("extract: unsupported strategy %T", strategy)
	}
	if err != nil {
		return nil, err
	}

	rejected := res.Rejected()
	for _, r := range rejected {
		e.metrics.RowRejected()
		log.Debug("row rejected", zap.Int("line", r.Line), zap.Strings("reasons", r.Reasons))
	}
	e.metrics.RowsExtracted(len(res.Rows) - len(rejected))

	log.Info("extraction complete",
		zap.Int("rows", len(res.Rows)),
		zap.Int("rejected", len(rejected)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}
