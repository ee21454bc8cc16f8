package reconcile

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// Summary aggregates a result set.
type Summary struct {
	Total            int                       `json:"total"`
	ByStatus         map[model.MatchStatus]int `json:"by_status"`
	ByMethod         map[model.MatchMethod]int `json:"by_method"`
	IdentifiedAmount float64                   `json:"identified_amount"`
	PendingAmount    float64                   `json:"pending_amount"`
	Divergent        int                       `json:"divergent"`
}

// Summarize counts results per status and method. IdentifiedAmount sums the
// transaction amounts of identified rows; PendingAmount sums the expected
// amounts of contributors still pending.
func Summarize(results []model.MatchResult) Summary {
	s := Summary{
		Total:    len(results),
		ByStatus: make(map[model.MatchStatus]int),
		ByMethod: make(map[model.MatchMethod]int),
	}
	for _, r := range results {
		s.ByStatus[r.Status]++
		switch r.Status {
		case model.MatchIdentified:
			s.ByMethod[r.MatchMethod]++
			s.IdentifiedAmount += r.Transaction.Amount
			if r.Divergence != nil {
				s.Divergent++
			}
		case model.MatchPending:
			if r.ContributorAmount != nil {
				s.PendingAmount += *r.ContributorAmount
			}
		}
	}
	s.IdentifiedAmount = math.Round(s.IdentifiedAmount*100) / 100
	s.PendingAmount = math.Round(s.PendingAmount*100) / 100
	return s
}

// ConfirmManual re-issues an unidentified result as identified by the user
// and returns the association that teaches future passes the same mapping.
func ConfirmManual(r model.MatchResult, c model.Contributor) (model.MatchResult, model.LearnedAssociation, error) {
	if r.Status == model.MatchPending {
		return r, model.LearnedAssociation{}, eris.New("reconcile: cannot confirm a pending placeholder")
	}
	desc := Normalize(r.Transaction.RawDescription)
	if desc == "" {
		desc = Normalize(r.Transaction.Name)
	}
	if desc == "" {
		return r, model.LearnedAssociation{}, eris.New("reconcile: transaction has no description")
	}
	name := c.NormalizedName
	if name == "" {
		name = c.Name
	}

	out := identified(r.Transaction, c, model.MethodManual, Similarity(desc, name))
	assoc := model.LearnedAssociation{
		NormalizedDescription:     desc,
		ContributorNormalizedName: Normalize(name),
		ChurchID:                  c.ChurchID,
	}
	return out, assoc, nil
}
