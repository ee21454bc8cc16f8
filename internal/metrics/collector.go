// Package metrics counts what happens to rows as they move through an import
// or reconciliation run. A Collector is created per run and passed explicitly.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// Snapshot holds a point-in-time view of a run's counters.
type Snapshot struct {
	// Extraction.
	RowsRead       int64 `json:"rows_read"`
	RowsBlank      int64 `json:"rows_blank"`
	RowsIgnored    int64 `json:"rows_ignored"`
	RowsRejected   int64 `json:"rows_rejected"`
	RowsExtracted  int64 `json:"rows_extracted"`
	BlockFailures  int64 `json:"block_failures"`
	ModelsRequired int64 `json:"models_required"`

	// Persistence.
	RowsInserted   int64 `json:"rows_inserted"`
	RowsDuplicate  int64 `json:"rows_duplicate"`
	RowsConflicted int64 `json:"rows_conflicted"`
	ChunksWritten  int64 `json:"chunks_written"`

	// Matching.
	MatchedAutomatic int64 `json:"matched_automatic"`
	MatchedLearned   int64 `json:"matched_learned"`
	Unidentified     int64 `json:"unidentified"`
	PendingContribs  int64 `json:"pending_contributors"`

	StartedAt   time.Time `json:"started_at"`
	CollectedAt time.Time `json:"collected_at"`
}

// Collector accumulates counters. It is safe for concurrent use. A nil
// *Collector discards every observation.
type Collector struct {
	startedAt time.Time

	rowsRead       atomic.Int64
	rowsBlank      atomic.Int64
	rowsIgnored    atomic.Int64
	rowsRejected   atomic.Int64
	rowsExtracted  atomic.Int64
	blockFailures  atomic.Int64
	modelsRequired atomic.Int64

	rowsInserted   atomic.Int64
	rowsDuplicate  atomic.Int64
	rowsConflicted atomic.Int64
	chunksWritten  atomic.Int64

	matchedAutomatic atomic.Int64
	matchedLearned   atomic.Int64
	unidentified     atomic.Int64
	pendingContribs  atomic.Int64
}

// NewCollector creates a collector stamped with the current time.
func NewCollector() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

// RowRead counts one source line or block item seen by the executor.
func (c *Collector) RowRead() {
	if c != nil {
		c.rowsRead.Add(1)
	}
}

func (c *Collector) RowBlank() {
	if c != nil {
		c.rowsBlank.Add(1)
	}
}

func (c *Collector) RowIgnored() {
	if c != nil {
		c.rowsIgnored.Add(1)
	}
}

func (c *Collector) RowRejected() {
	if c != nil {
		c.rowsRejected.Add(1)
	}
}

func (c *Collector) RowsExtracted(n int) {
	if c != nil {
		c.rowsExtracted.Add(int64(n))
	}
}

func (c *Collector) BlockFailure() {
	if c != nil {
		c.blockFailures.Add(1)
	}
}

func (c *Collector) ModelRequired() {
	if c != nil {
		c.modelsRequired.Add(1)
	}
}

func (c *Collector) Inserted(n int) {
	if c != nil {
		c.rowsInserted.Add(int64(n))
	}
}

func (c *Collector) Duplicates(n int) {
	if c != nil {
		c.rowsDuplicate.Add(int64(n))
	}
}

func (c *Collector) Conflicted(n int) {
	if c != nil {
		c.rowsConflicted.Add(int64(n))
	}
}

func (c *Collector) ChunkWritten() {
	if c != nil {
		c.chunksWritten.Add(1)
	}
}

// ObserveMatches counts match results by status and method.
func (c *Collector) ObserveMatches(results []model.MatchResult) {
	if c == nil {
		return
	}
	for _, r := range results {
		switch r.Status {
		case model.MatchIdentified:
			if r.MatchMethod == model.MethodLearned {
				c.matchedLearned.Add(1)
			} else {
				c.matchedAutomatic.Add(1)
			}
		case model.MatchUnidentified:
			c.unidentified.Add(1)
		case model.MatchPending:
			c.pendingContribs.Add(1)
		}
	}
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{CollectedAt: time.Now().UTC()}
	}
	return Snapshot{
		RowsRead:         c.rowsRead.Load(),
		RowsBlank:        c.rowsBlank.Load(),
		RowsIgnored:      c.rowsIgnored.Load(),
		RowsRejected:     c.rowsRejected.Load(),
		RowsExtracted:    c.rowsExtracted.Load(),
		BlockFailures:    c.blockFailures.Load(),
		ModelsRequired:   c.modelsRequired.Load(),
		RowsInserted:     c.rowsInserted.Load(),
		RowsDuplicate:    c.rowsDuplicate.Load(),
		RowsConflicted:   c.rowsConflicted.Load(),
		ChunksWritten:    c.chunksWritten.Load(),
		MatchedAutomatic: c.matchedAutomatic.Load(),
		MatchedLearned:   c.matchedLearned.Load(),
		Unidentified:     c.unidentified.Load(),
		PendingContribs:  c.pendingContribs.Load(),
		StartedAt:        c.startedAt,
		CollectedAt:      time.Now().UTC(),
	}
}

// MatchRate is the share of bank transactions that were identified.
func (s Snapshot) MatchRate() float64 {
	total := s.MatchedAutomatic + s.MatchedLearned + s.Unidentified
	if total == 0 {
		return 0
	}
	return float64(s.MatchedAutomatic+s.MatchedLearned) / float64(total)
}
