// Package matcher implements the multi-stage record-matching engine: exact
// business key, then amount plus date window, then fuzzy counterparty text.
// Later stages are consulted only when the prior stage is ambiguous (zero or
// more than one candidate). Every decision carries a confidence score and a
// human-readable rationale, and ties resolve deterministically.
package matcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blueharbor-marine/reconcile/pkg/model"
)

// Fuzzy-stage weights from the documented scoring formula:
// confidence = 0.7 * text similarity + 0.3 * date proximity, capped so a
// fuzzy link never outranks an amount+date link for the same date gap.
const (
	exactConfidence      = 1.0
	amountDateConfidence = 0.95
	fuzzyTextWeight      = 0.7
	fuzzyDateWeight      = 0.3
	fuzzyCeiling         = 0.9
)

// Candidate is one potential counterpart for a payment: a canonical
// transaction or an obligation flattened to the fields matching needs.
type Candidate struct {
	ID          int64
	BusinessKey string
	Amount      decimal.Decimal
	Date        time.Time
	Text        string // normalized memo / counterparty text
}

// Config tunes one matching run. DateToleranceDays has no default: each
// record population declares its own window, justified in the rules file.
type Config struct {
	DateToleranceDays int
	MinConfidence     float64
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.DateToleranceDays <= 0 {
		return fmt.Errorf("date tolerance must be positive, got %d", c.DateToleranceDays)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0,1], got %v", c.MinConfidence)
	}
	return nil
}

// Result is the outcome of matching one payment. Matched=false with a
// rationale is a reported outcome, not an error: no-candidates and
// ambiguous cases produce zero links and are surfaced for manual review.
type Result struct {
	Matched     bool
	CandidateID int64
	Confidence  float64
	Method      model.MatchMethod
	Rationale   string
}

// Engine runs the staged matching algorithm.
type Engine struct {
	cfg Config
}

// New creates an Engine with a validated configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// Match finds the best counterpart for a payment among the candidates.
//
// Stage 1 (exact): same declared business key, amount equal to the cent,
// and inside the date window. The window applies here too: cheque numbers
// are reused across statement-book years and must not collapse into one
// link when the dates are far apart.
//
// Stage 2 (amount+date): exact amount equality, then the date window. A
// single survivor gets confidence 0.95 scaled down linearly as the gap
// approaches the window boundary.
//
// Stage 3 (fuzzy): among remaining candidates, text similarity between the
// payment's counterparty hint and the candidate memo, combined with date
// proximity. Accepted only at or above the configured minimum confidence.
func (e *Engine) Match(payment model.PaymentRecord, candidates []Candidate) Result {
	// Stable input order: candidate iteration must never depend on map or
	// arrival order, or re-runs would not reproduce the same links.
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	if r, done := e.matchExact(payment, sorted); done {
		return r
	}
	return e.matchAmountDate(payment, sorted)
}

func (e *Engine) matchExact(payment model.PaymentRecord, candidates []Candidate) (Result, bool) {
	if payment.BusinessKey == "" {
		return Result{}, false
	}

	var hits []Candidate
	for _, c := range candidates {
		if c.BusinessKey == "" || c.BusinessKey != payment.BusinessKey {
			continue
		}
		if !amountsEqual(c.Amount, payment.Amount) {
			continue
		}
		if dateGapDays(c.Date, payment.Date) > e.cfg.DateToleranceDays {
			continue
		}
		hits = append(hits, c)
	}

	if len(hits) != 1 {
		// Zero or several key hits: ambiguous, fall through to stage 2.
		return Result{}, false
	}

	return Result{
		Matched:     true,
		CandidateID: hits[0].ID,
		Confidence:  exactConfidence,
		Method:      model.MatchExact,
		Rationale:   fmt.Sprintf("business key %q and amount %s match exactly", payment.BusinessKey, payment.Amount.StringFixed(2)),
	}, true
}

func (e *Engine) matchAmountDate(payment model.PaymentRecord, candidates []Candidate) Result {
	var survivors []Candidate
	for _, c := range candidates {
		if !amountsEqual(c.Amount, payment.Amount) {
			continue
		}
		if dateGapDays(c.Date, payment.Date) > e.cfg.DateToleranceDays {
			continue
		}
		survivors = append(survivors, c)
	}

	switch len(survivors) {
	case 0:
		return Result{Rationale: "no candidates within amount and date window"}
	case 1:
		c := survivors[0]
		gap := dateGapDays(c.Date, payment.Date)
		confidence := amountDateConfidence * dateProximity(gap, e.cfg.DateToleranceDays)
		if confidence < e.cfg.MinConfidence {
			return Result{Rationale: fmt.Sprintf(
				"single amount+date candidate %d below threshold (%.2f < %.2f)",
				c.ID, confidence, e.cfg.MinConfidence)}
		}
		return Result{
			Matched:     true,
			CandidateID: c.ID,
			Confidence:  confidence,
			Method:      model.MatchAmountDate,
			Rationale:   fmt.Sprintf("amount %s equal, dates %d day(s) apart", payment.Amount.StringFixed(2), gap),
		}
	}

	return e.matchFuzzy(payment, survivors)
}

func (e *Engine) matchFuzzy(payment model.PaymentRecord, survivors []Candidate) Result {
	hint := payment.Memo
	if hint == "" {
		hint = payment.BusinessKey
	}

	type scored struct {
		c          Candidate
		confidence float64
		gap        int
	}

	scores := make([]scored, 0, len(survivors))
	for _, c := range survivors {
		gap := dateGapDays(c.Date, payment.Date)
		raw := fuzzyTextWeight*Similarity(hint, c.Text) +
			fuzzyDateWeight*dateProximity(gap, e.cfg.DateToleranceDays)
		confidence := raw * fuzzyCeiling
		scores = append(scores, scored{c: c, confidence: confidence, gap: gap})
	}

	// Tie-break policy: equal confidence prefers the smaller date gap, then
	// the lower internal ID (the oldest record). Never iteration order.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].confidence != scores[j].confidence {
			return scores[i].confidence > scores[j].confidence
		}
		if scores[i].gap != scores[j].gap {
			return scores[i].gap < scores[j].gap
		}
		return scores[i].c.ID < scores[j].c.ID
	})

	best := scores[0]
	if best.confidence < e.cfg.MinConfidence {
		return Result{Rationale: fmt.Sprintf(
			"ambiguous: %d candidates, best score below threshold", len(survivors))}
	}

	return Result{
		Matched:     true,
		CandidateID: best.c.ID,
		Confidence:  best.confidence,
		Method:      model.MatchFuzzy,
		Rationale: fmt.Sprintf("counterparty text similar to candidate %d (%.2f), %d day(s) apart",
			best.c.ID, best.confidence, best.gap),
	}
}

// amountsEqual requires equality to the cent. Amount matching has no
// tolerance: a one-cent difference is a different payment.
func amountsEqual(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}

// TransactionCandidates flattens canonical transactions for matching.
// Payment amounts are positive while bank debits are negative, so the
// absolute value is compared.
func TransactionCandidates(txs []model.CanonicalTransaction) []Candidate {
	out := make([]Candidate, 0, len(txs))
	for _, t := range txs {
		out = append(out, Candidate{
			ID:          t.ID,
			BusinessKey: t.ExternalID,
			Amount:      t.Amount.Abs(),
			Date:        t.Date,
			Text:        t.NormalizedMemo,
		})
	}
	return out
}

// ObligationCandidates flattens obligations for matching payments against
// what they pay down.
func ObligationCandidates(obs []model.Obligation) []Candidate {
	out := make([]Candidate, 0, len(obs))
	for _, o := range obs {
		out = append(out, Candidate{
			ID:          o.ID,
			BusinessKey: o.BusinessKey,
			Amount:      o.TotalDue,
			Date:        o.Date,
			Text:        model.NormalizeText(o.BusinessKey),
		})
	}
	return out
}
