package model

import (
	"fmt"
	"strings"
)

// NoModelMatchError reports a file whose fingerprint matched no learned model.
type NoModelMatchError struct {
	FileName    string
	Fingerprint *StructuralFingerprint
}

func (e *NoModelMatchError) Error() string {
	if e.Fingerprint == nil {
		return fmt.Sprintf("no model matches %s: empty document", e.FileName)
	}
	hash := "none"
	if e.Fingerprint.HasHeaderHash() {
		hash = *e.Fingerprint.HeaderHash
	}
	return fmt.Sprintf("no model matches %s (header hash %s, pattern %s)",
		e.FileName, hash, e.Fingerprint.DataTopologyPattern)
}

// ExtractionFailureError reports an AI extraction that produced no usable data.
type ExtractionFailureError struct {
	FileName string
	Cause    error
}

func (e *ExtractionFailureError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.FileName, e.Cause)
}

func (e *ExtractionFailureError) Unwrap() error { return e.Cause }

// ValidationRejectedError reports a row that failed the minimum-viability check.
type ValidationRejectedError struct {
	Line    int
	Reasons []string
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("line %d rejected: %s", e.Line, strings.Join(e.Reasons, ", "))
}

// PersistenceConflictError reports a row whose hash already exists in the store.
type PersistenceConflictError struct {
	RowHash string
	Cause   error
}

func (e *PersistenceConflictError) Error() string {
	if e.RowHash == "" {
		return "duplicate row hash"
	}
	return fmt.Sprintf("duplicate row hash %s", e.RowHash)
}

func (e *PersistenceConflictError) Unwrap() error { return e.Cause }

// PersistenceFailureError reports a chunk write failure. Inserted counts the
// rows committed by earlier chunks.
type PersistenceFailureError struct {
	ChunkIndex int
	Inserted   int
	Cause      error
}

func (e *PersistenceFailureError) Error() string {
	return fmt.Sprintf("persist chunk %d failed after %d rows: %v", e.ChunkIndex, e.Inserted, e.Cause)
}

func (e *PersistenceFailureError) Unwrap() error { return e.Cause }
