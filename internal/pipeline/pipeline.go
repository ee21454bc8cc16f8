// Package pipeline runs an upload through the engine: fingerprint, strategy
// decision, extraction, idempotent persistence and matching.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/config"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/dedup"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/extract"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/fingerprint"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/reconcile"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/store"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/strategy"
)

// Phase names recorded on results.
const (
	PhaseFingerprint = "fingerprint"
	PhaseExtract     = "extract"
	PhasePersist     = "persist"
	PhaseMatch       = "match"
)

// Phase status values.
const (
	PhaseStatusComplete = "complete"
	PhaseStatusFailed   = "failed"
)

// Phase records the outcome of one stage.
type Phase struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration int64  `json:"duration_ms"`
	Error    string `json:"error,omitempty"`
}

// Pipeline holds the collaborators shared by every run.
type Pipeline struct {
	cfg    *config.Config
	store  store.Store
	models strategy.ModelStore
	blocks extract.BlockExtractor
}

// New creates a Pipeline. blocks may be nil when no AI key is configured;
// BLOCK models then produce warnings instead of rows.
func New(cfg *config.Config, st store.Store, models strategy.ModelStore, blocks extract.BlockExtractor) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, models: models, blocks: blocks}
}

// ImportRequest describes one uploaded statement.
type ImportRequest struct {
	UserID   string
	BankID   string
	Document model.RawDocument
	// Contributors, when present, are matched against the rows extracted
	// from this document.
	Contributors []model.Contributor
}

// ImportResult is the outcome of Run. Partial results are returned with the
// error when a stage fails.
type ImportResult struct {
	FileName string                          `json:"file_name"`
	Decision strategy.Decision               `json:"decision"`
	Rows     []extract.Row                   `json:"rows,omitempty"`
	Rejected []*model.ValidationRejectedError `json:"-"`
	Report   *dedup.Report                   `json:"report,omitempty"`
	Matches  []model.MatchResult             `json:"matches,omitempty"`
	Summary  *reconcile.Summary              `json:"summary,omitempty"`
	Warnings []error                         `json:"-"`
	Phases   []Phase                         `json:"phases"`
	Metrics  metrics.Snapshot                `json:"metrics"`
}

// WarningMessages renders Warnings for serialization.
func (r *ImportResult) WarningMessages() []string {
	return messages(r.Warnings)
}

// Fingerprint computes the structural fingerprint of doc and decides which
// learned model, if any, applies.
func (p *Pipeline) Fingerprint(ctx context.Context, doc model.RawDocument) (strategy.Decision, error) {
	fp := fingerprint.Compute(doc.RawText)
	candidates, err := strategy.Candidates(ctx, p.models, fp)
	if err != nil {
		return strategy.Decision{FileName: doc.FileName, Fingerprint: fp}, eris.Wrap(err, "pipeline: load models")
	}
	return strategy.Decide(doc, fp, candidates, p.cfg.Ingest.PreviewLines), nil
}

// Run imports one document. A MODEL_REQUIRED decision returns the result
// with a *model.NoModelMatchError; nothing is extracted or persisted.
func (p *Pipeline) Run(ctx context.Context, m *metrics.Collector, req ImportRequest) (*ImportResult, error) {
	if req.UserID == "" || req.BankID == "" {
		return nil, eris.New("pipeline: user and bank are required")
	}
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("user", req.UserID),
		zap.String("file", req.Document.FileName),
	)
	log.Info("pipeline: starting import")

	result := &ImportResult{FileName: req.Document.FileName}
	defer func() { result.Metrics = m.Snapshot() }()

	track := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		phase := Phase{Name: name, Status: PhaseStatusComplete, Duration: time.Since(start).Milliseconds()}
		if err != nil {
			phase.Status = PhaseStatusFailed
			phase.Error = err.Error()
			log.Error("pipeline: phase failed", zap.String("phase", name), zap.Int64("duration_ms", phase.Duration), zap.Error(err))
		} else {
			log.Debug("pipeline: phase complete", zap.String("phase", name), zap.Int64("duration_ms", phase.Duration))
		}
		result.Phases = append(result.Phases, phase)
		return err
	}

	// ===== Fingerprint and strategy decision =====
	if err := track(PhaseFingerprint, func() error {
		d, err := p.Fingerprint(ctx, req.Document)
		result.Decision = d
		if err != nil {
			return err
		}
		if d.State != strategy.StateModelFound {
			m.ModelRequired()
			return d.Err()
		}
		return nil
	}); err != nil {
		return result, err
	}

	// ===== Extraction =====
	var valid []model.Transaction
	if err := track(PhaseExtract, func() error {
		exec := extract.NewExecutor(p.blocks, m)
		res, err := exec.Execute(ctx, req.Document, result.Decision.Fingerprint, result.Decision.Model)
		if err != nil {
			return err
		}
		result.Rows = res.Rows
		result.Rejected = res.Rejected()
		result.Warnings = append(result.Warnings, res.Warnings...)
		valid = res.Valid()
		return nil
	}); err != nil {
		return result, err
	}

	// ===== Persistence =====
	if err := track(PhasePersist, func() error {
		persister := dedup.NewPersister(p.store, p.store, p.cfg.Ingest.ChunkSize, m)
		report, err := persister.Persist(ctx, req.UserID, req.BankID, valid)
		result.Report = report
		return err
	}); err != nil {
		return result, err
	}

	// ===== Matching =====
	if len(req.Contributors) > 0 {
		if err := track(PhaseMatch, func() error {
			assocs, err := p.store.ListAssociations(ctx, req.UserID)
			if err != nil {
				return eris.Wrap(err, "pipeline: load associations")
			}
			result.Matches = reconcile.NewMatcher(m).Match(valid, req.Contributors, assocs, p.matchOptions())
			s := reconcile.Summarize(result.Matches)
			result.Summary = &s
			return nil
		}); err != nil {
			return result, err
		}
	}

	log.Info("pipeline: import complete",
		zap.Int("rows", len(result.Rows)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

func (p *Pipeline) matchOptions() reconcile.Options {
	return reconcile.Options{
		SimilarityThreshold: p.cfg.Match.SimilarityThreshold,
		DayTolerance:        p.cfg.Match.DayTolerance,
	}
}

func messages(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
