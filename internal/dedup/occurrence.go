package dedup

// Assignment is the row hash chosen for one batch transaction.
type Assignment struct {
	// Position is the index of the transaction in the batch.
	Position  int    `json:"position"`
	BaseHash  string `json:"base_hash"`
	Index     int    `json:"index"`
	RowHash   string `json:"row_hash"`
	Duplicate bool   `json:"duplicate"`
	// Extends is set for new rows whose base already exists in storage with
	// lower indices only, e.g. a third identical PIX on a day that had two.
	Extends   bool   `json:"extends,omitempty"`
}

// Occurrences summarizes stored hashes per base: the highest index stored
// and the full set of stored hashes.
type Occurrences struct {
	MaxIndex map[string]int
	Stored   map[string]struct{}
}

// IndexExisting builds Occurrences from stored row hashes. Hashes that do
// not parse are kept for exact duplicate checks only.
func IndexExisting(existing []string) Occurrences {
	occ := Occurrences{
		MaxIndex: make(map[string]int, len(existing)),
		Stored:   make(map[string]struct{}, len(existing)),
	}
	for _, h := range existing {
		occ.Stored[h] = struct{}{}
		base, idx, ok := ParseHash(h)
		if !ok {
			continue
		}
		if cur, seen := occ.MaxIndex[base]; !seen || idx > cur {
			occ.MaxIndex[base] = idx
		}
	}
	return occ
}

// ComputeOccurrenceIndices assigns row hashes to a batch of base hashes.
//
// The n-th occurrence of a base within the batch gets index n, counting from
// zero, so re-importing a statement yields the same hashes and every one of
// them is a duplicate. An assignment is a duplicate only when its full hash
// is already stored; repeated identical rows inside one statement are kept.
func ComputeOccurrenceIndices(existing []string, batch []string) []Assignment {
	occ := IndexExisting(existing)
	seen := make(map[string]int, len(batch))
	out := make([]Assignment, len(batch))
	for i, base := range batch {
		idx := seen[base]
		seen[base] = idx + 1

		full := FullHash(base, idx)
		_, dup := occ.Stored[full]
		maxIdx, known := occ.MaxIndex[base]
		out[i] = Assignment{
			Position:  i,
			BaseHash:  base,
			Index:     idx,
			RowHash:   full,
			Duplicate: dup,
			Extends:   !dup && known && idx > maxIdx,
		}
	}
	return out
}
