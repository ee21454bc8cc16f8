package model

// MatchStatus is the reconciliation outcome of one result row.
type MatchStatus string

const (
	MatchUnidentified MatchStatus = "UNIDENTIFIED"
	MatchIdentified   MatchStatus = "IDENTIFIED"
	MatchPending      MatchStatus = "PENDING"
)

// MatchMethod records how a transaction was identified.
type MatchMethod string

const (
	MethodAutomatic MatchMethod = "AUTOMATIC"
	MethodLearned   MatchMethod = "LEARNED"
	MethodManual    MatchMethod = "MANUAL"
)

// Contributor is one row of an uploaded contributor list.
type Contributor struct {
	Name           string  `json:"name"`
	CleanedName    string  `json:"cleaned_name"`
	NormalizedName string  `json:"normalized_name"`
	Amount         float64 `json:"amount"`
	Date           *string `json:"date,omitempty"`
	ChurchID       string  `json:"church_id"`
}

// Divergence captures an amount mismatch on an identified result.
type Divergence struct {
	Expected   float64 `json:"expected"`
	Actual     float64 `json:"actual"`
	Difference float64 `json:"difference"`
}

// MatchResult is one row of a reconciliation result set.
type MatchResult struct {
	Transaction       Transaction  `json:"transaction"`
	Contributor       *Contributor `json:"contributor,omitempty"`
	Suggestion        *Contributor `json:"suggestion,omitempty"`
	Status            MatchStatus  `json:"status"`
	Church            string       `json:"church,omitempty"`
	MatchMethod       MatchMethod  `json:"match_method,omitempty"`
	Similarity        float64      `json:"similarity"`
	ContributorAmount *float64     `json:"contributor_amount,omitempty"`
	Divergence        *Divergence  `json:"divergence,omitempty"`
}

// LearnedAssociation is a user-confirmed mapping from a normalized
// transaction description to a contributor.
type LearnedAssociation struct {
	NormalizedDescription     string `json:"normalized_description"`
	ContributorNormalizedName string `json:"contributor_normalized_name"`
	ChurchID                  string `json:"church_id"`
}
