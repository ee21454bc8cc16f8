package reconcile

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/metrics"
	"github.com/prgleibe-cmyk/IdentificaPix-sub002/internal/model"
)

// LearnedSimilarity is the minimum Dice score for a fuzzy association hit.
const LearnedSimilarity = 95.0

// divergenceEpsilon ignores sub-cent float noise when comparing amounts.
const divergenceEpsilon = 0.005

// Options tune one reconciliation pass.
type Options struct {
	// SimilarityThreshold is the minimum Dice score (0..100) for an
	// automatic match.
	SimilarityThreshold float64
	// DayTolerance is the inclusive maximum distance in days between a
	// transaction and a dated contributor.
	DayTolerance int
}

// DefaultOptions returns the thresholds used when none are configured.
func DefaultOptions() Options {
	return Options{SimilarityThreshold: 80, DayTolerance: 2}
}

// Matcher reconciles transactions against contributors.
type Matcher struct {
	metrics *metrics.Collector
}

// NewMatcher creates a matcher that reports into m, which may be nil.
func NewMatcher(m *metrics.Collector) *Matcher {
	return &Matcher{metrics: m}
}

type candidate struct {
	contributor model.Contributor
	name        string
	tokens      []string
	date        *time.Time
	consumed    bool
}

type association struct {
	description string
	tokens      []string
	contributor string
	church      string
}

// Match produces one result per transaction, in order, followed by one
// PENDING result per contributor that no transaction consumed. Contributors
// and associations are never modified.
func (m *Matcher) Match(txs []model.Transaction, contributors []model.Contributor, associations []model.LearnedAssociation, opts Options) []model.MatchResult {
	cands := make([]*candidate, len(contributors))
	for i, c := range contributors {
		name := c.NormalizedName
		if name == "" {
			name = c.Name
		}
		n := Normalize(name)
		cands[i] = &candidate{contributor: c, name: n, tokens: Tokens(n), date: parseDate(c.Date)}
	}
	assocs := make([]association, len(associations))
	for i, a := range associations {
		d := Normalize(a.NormalizedDescription)
		assocs[i] = association{
			description: d,
			tokens:      Tokens(d),
			contributor: Normalize(a.ContributorNormalizedName),
			church:      a.ChurchID,
		}
	}

	results := make([]model.MatchResult, 0, len(txs)+len(contributors))
	for _, tx := range txs {
		desc := Normalize(tx.RawDescription)
		if desc == "" {
			desc = Normalize(tx.Name)
		}

		if c := learned(desc, assocs, cands); c != nil {
			c.consumed = true
			results = append(results, identified(tx, c.contributor, model.MethodLearned, 100))
			continue
		}

		best, score := bestCandidate(tx, Tokens(desc), cands, opts.DayTolerance)
		switch {
		case best != nil && score >= opts.SimilarityThreshold:
			best.consumed = true
			results = append(results, identified(tx, best.contributor, model.MethodAutomatic, score))
		default:
			r := model.MatchResult{Transaction: tx, Status: model.MatchUnidentified, Similarity: score}
			if best != nil {
				s := best.contributor
				r.Suggestion = &s
			}
			results = append(results, r)
		}
	}

	for _, c := range cands {
		if !c.consumed {
			results = append(results, pending(c.contributor))
		}
	}

	m.metrics.ObserveMatches(results)
	zap.L().Debug("reconciliation pass",
		zap.String("component", "reconcile"),
		zap.Int("transactions", len(txs)),
		zap.Int("contributors", len(contributors)),
		zap.Int("results", len(results)),
	)
	return results
}

// learned finds an association for desc, exact first and then the best
// fuzzy hit at LearnedSimilarity or above, and returns its contributor if
// it is still available.
func learned(desc string, assocs []association, cands []*candidate) *candidate {
	if desc == "" || len(assocs) == 0 {
		return nil
	}
	var hit *association
	for i := range assocs {
		if assocs[i].description == desc {
			hit = &assocs[i]
			break
		}
	}
	if hit == nil {
		tokens := Tokens(desc)
		bestScore := 0.0
		for i := range assocs {
			if s := Dice(tokens, assocs[i].tokens); s >= LearnedSimilarity && s > bestScore {
				hit, bestScore = &assocs[i], s
			}
		}
	}
	if hit == nil {
		return nil
	}
	for _, c := range cands {
		if c.consumed || c.name != hit.contributor {
			continue
		}
		if hit.church != "" && c.contributor.ChurchID != hit.church {
			continue
		}
		return c
	}
	return nil
}

// bestCandidate returns the highest scoring unconsumed contributor within
// the date tolerance. Ties keep the earliest contributor.
func bestCandidate(tx model.Transaction, tokens []string, cands []*candidate, tolerance int) (*candidate, float64) {
	txDate, hasDate := tx.ParsedDate()
	var best *candidate
	bestScore := 0.0
	for _, c := range cands {
		if c.consumed {
			continue
		}
		if c.date != nil && (!hasDate || !withinDays(txDate, *c.date, tolerance)) {
			continue
		}
		s := Dice(tokens, c.tokens)
		if best == nil || s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

func identified(tx model.Transaction, c model.Contributor, method model.MatchMethod, score float64) model.MatchResult {
	tx.MatchMethod = method
	amount := c.Amount
	r := model.MatchResult{
		Transaction:       tx,
		Contributor:       &c,
		Status:            model.MatchIdentified,
		Church:            c.ChurchID,
		MatchMethod:       method,
		Similarity:        score,
		ContributorAmount: &amount,
	}
	if c.Amount != 0 && math.Abs(tx.Amount-c.Amount) > divergenceEpsilon {
		r.Divergence = &model.Divergence{
			Expected:   c.Amount,
			Actual:     tx.Amount,
			Difference: math.Round((tx.Amount-c.Amount)*100) / 100,
		}
	}
	return r
}

// pending builds the placeholder for a contributor whose expected
// transaction was not found.
func pending(c model.Contributor) model.MatchResult {
	date := ""
	if c.Date != nil {
		date = *c.Date
	}
	amount := c.Amount
	return model.MatchResult{
		Transaction: model.Transaction{
			NormalizedTransaction: model.NormalizedTransaction{Date: date, Name: c.Name},
			RawDescription:        c.Name,
			CleanedDescription:    c.NormalizedName,
			PaymentMethod:         model.PaymentOther,
			ContributionType:      model.TypeOther,
		},
		Contributor:       &c,
		Status:            model.MatchPending,
		Church:            c.ChurchID,
		ContributorAmount: &amount,
	}
}

func parseDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	d, err := time.Parse(time.DateOnly, *s)
	if err != nil {
		return nil
	}
	return &d
}

func withinDays(a, b time.Time, tolerance int) bool {
	days := math.Abs(a.Sub(b).Hours() / 24)
	return days <= float64(tolerance)
}
