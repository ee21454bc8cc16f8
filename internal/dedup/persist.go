package dedup

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// DefaultChunkSize bounds the rows sent per insert call.
const DefaultChunkSize = 100

// HashReader loads every row hash stored for a user.
type HashReader interface {
	ExistingHashes(ctx context.Context, userID string) ([]string, error)
}

// TransactionWriter inserts rows atomically per call. A unique violation on
// (user, row_hash) must surface as *model.PersistenceConflictError.
type TransactionWriter interface {
	InsertTransactions(ctx context.Context, userID string, rows []model.Transaction) (int, error)
}

// Report summarizes one Persist call.
type Report struct {
	Total      int `json:"total"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	// Skipped counts rows that conflicted on insert even though they were not
	// stored when hashes were read, typically from a concurrent import.
	Skipped  int `json:"skipped"`
	Extended int `json:"extended"`
	Chunks   int `json:"chunks"`
}

// Persister assigns row hashes and writes new rows in chunks.
type Persister struct {
	reader    HashReader
	writer    TransactionWriter
	chunkSize int
	metrics   *metrics.Collector
}

// NewPersister creates a persister. A non-positive chunkSize uses
// DefaultChunkSize.
func NewPersister(reader HashReader, writer TransactionWriter, chunkSize int, m *metrics.Collector) *Persister {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Persister{reader: reader, writer: writer, chunkSize: chunkSize, metrics: m}
}

// Persist stores the rows of txs not already present for userID. It reads
// all existing hashes before writing. On a chunk failure it stops and
// returns the partial report with a *model.PersistenceFailureError.
func (p *Persister) Persist(ctx context.Context, userID, bankID string, txs []model.Transaction) (*Report, error) {
	log := zap.L().With(
		zap.String("component", "dedup"),
		zap.String("user", userID),
		zap.String("bank", bankID),
	)
	report := &Report{Total: len(txs)}
	if len(txs) == 0 {
		return report, nil
	}

	existing, err := p.reader.ExistingHashes(ctx, userID)
	if err != nil {
		return report, eris.Wrap(err, "dedup: load existing hashes")
	}

	bases := make([]string, len(txs))
	for i, tx := range txs {
		bases[i] = BaseHash(userID, bankID, tx)
	}

	pending := make([]model.Transaction, 0, len(txs))
	for _, a := range ComputeOccurrenceIndices(existing, bases) {
		if a.Duplicate {
			report.Duplicates++
			continue
		}
		if a.Extends {
			report.Extended++
		}
		tx := txs[a.Position]
		tx.RowHash = a.RowHash
		tx.SourceBankID = bankID
		if tx.Status == "" {
			tx.Status = model.StatusPending
		}
		if tx.PaymentMethod == "" {
			tx.PaymentMethod = model.PaymentOther
		}
		pending = append(pending, tx)
	}
	p.metrics.Duplicates(report.Duplicates)

	for start, chunk := 0, 0; start < len(pending); start, chunk = start+p.chunkSize, chunk+1 {
		if err := ctx.Err(); err != nil {
			return report, p.failure(chunk, report, err)
		}
		end := min(start+p.chunkSize, len(pending))
		rows := pending[start:end]

		n, err := p.writer.InsertTransactions(ctx, userID, rows)
		var conflict *model.PersistenceConflictError
		switch {
		case err == nil:
			report.Inserted += n
		case errors.As(err, &conflict):
			log.Debug("chunk conflict, retrying rows individually", zap.Int("chunk", chunk))
			if err := p.insertEach(ctx, userID, rows, report); err != nil {
				return report, p.failure(chunk, report, err)
			}
		default:
			return report, p.failure(chunk, report, err)
		}
		report.Chunks++
		p.metrics.ChunkWritten()
	}

	p.metrics.Inserted(report.Inserted)
	p.metrics.Conflicted(report.Skipped)
	log.Info("transactions persisted",
		zap.Int("total", report.Total),
		zap.Int("inserted", report.Inserted),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (p *Persister) insertEach(ctx context.Context, userID string, rows []model.Transaction, report *Report) error {
	for _, row := range rows {
		n, err := p.writer.InsertTransactions(ctx, userID, []model.Transaction{row})
		var conflict *model.PersistenceConflictError
		switch {
		case err == nil:
			report.Inserted += n
		case errors.As(err, &conflict):
			report.Skipped++
		default:
			return err
		}
	}
	return nil
}

func (p *Persister) failure(chunk int, report *Report, cause error) error {
	p.metrics.Inserted(report.Inserted)
	p.metrics.Conflicted(report.Skipped)
	zap.L().Error("persist aborted",
		zap.String("component", "dedup"),
		zap.Int("chunk", chunk),
		zap.Int("inserted", report.Inserted),
		zap.Error(cause),
	)
	return &model.PersistenceFailureError{ChunkIndex: chunk, Inserted: report.Inserted, Cause: cause}
}
