// Package reconcile merges a run's freshly extracted program candidates with
// the knowledge base's existing records for one scope. It is pure: callers
// apply the result through the store.
package reconcile

import (
	"github.com/Rezme-Inc/incentive-agent/internal/identity"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

// Options holds the tunable matching parameters.
type Options struct {
	// Threshold is the combined score a candidate/record pair must clear to
	// count as the same program.
	Threshold float64
	// AgencyWeight is the share of the combined score contributed by the
	// administering-agency similarity; the name gets the remainder. Kept low
	// so two identically-named but differently-administered local programs
	// still separate.
	AgencyWeight float64
}

// DefaultOptions returns the empirically settled matching parameters.
func DefaultOptions() Options {
	return Options{Threshold: 0.80, AgencyWeight: 0.30}
}

// Match records that a candidate folded into an existing record.
type Match struct {
	CandidateIndex int
	RecordID       string
	Score          float64
}

// Skip records a candidate rejected before matching.
type Skip struct {
	CandidateIndex int
	Reason         string
}

// Result is the outcome of one reconcile pass over a scope: every candidate
// is either matched or new, and every existing record is either confirmed or
// missed.
type Result struct {
	Matches   []Match
	New       []int    // candidate indexes that become new records
	Confirmed []string // distinct existing record ids reconfirmed this run
	Missed    []string // existing record ids not reconfirmed this run
	Skipped   []Skip
}

// Reconcile matches candidates against the existing records of one
// (tier, locationKey) scope. Cross-scope comparison never happens: records
// outside the scope are dropped from the comparison set up front, and
// candidates outside it are skipped.
func Reconcile(existing []model.Record, candidates []model.Candidate, tier model.Tier, locationKey string, opts Options) Result {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultOptions().Threshold
	}
	if opts.AgencyWeight <= 0 {
		opts.AgencyWeight = DefaultOptions().AgencyWeight
	}

	scoped := make([]model.Record, 0, len(existing))
	for _, rec := range existing {
		if rec.Tier == tier && rec.LocationKey == locationKey {
			scoped = append(scoped, rec)
		}
	}

	var res Result
	confirmed := make(map[string]bool)

	for i, cand := range candidates {
		if err := cand.Validate(); err != nil {
			res.Skipped = append(res.Skipped, Skip{CandidateIndex: i, Reason: err.Error()})
			continue
		}
		if cand.Tier != tier || cand.LocationKey != locationKey {
			res.Skipped = append(res.Skipped, Skip{CandidateIndex: i, Reason: "candidate outside reconcile scope"})
			continue
		}

		best, score := bestMatch(cand, scoped, opts)
		if best == nil || score < opts.Threshold {
			res.New = append(res.New, i)
			continue
		}
		res.Matches = append(res.Matches, Match{CandidateIndex: i, RecordID: best.ID, Score: score})
		if !confirmed[best.ID] {
			confirmed[best.ID] = true
			res.Confirmed = append(res.Confirmed, best.ID)
		}
	}

	for _, rec := range scoped {
		if !confirmed[rec.ID] {
			res.Missed = append(res.Missed, rec.ID)
		}
	}
	return res
}

// bestMatch returns the highest-scoring record for cand. Exact score ties
// break deterministically: higher confidence first, then earlier
// first_seen_at, then smaller id.
func bestMatch(cand model.Candidate, records []model.Record, opts Options) (*model.Record, float64) {
	candName := identity.Normalize(cand.Name)
	candAgency := identity.Normalize(cand.Attributes.Agency)

	var best *model.Record
	bestScore := 0.0
	for i := range records {
		rec := &records[i]
		score := combinedScore(candName, candAgency, rec, opts)
		switch {
		case score > bestScore:
			best, bestScore = rec, score
		case score == bestScore && best != nil && preferOver(rec, best):
			best = rec
		}
	}
	return best, bestScore
}

func combinedScore(candName, candAgency string, rec *model.Record, opts Options) float64 {
	nameScore := TokenSetRatio(candName, rec.NameNormalized)

	// A missing agency on either side is no evidence for or against a match.
	agencyScore := 0.5
	recAgency := identity.Normalize(rec.Attributes.Agency)
	if candAgency != "" && recAgency != "" {
		agencyScore = TokenSetRatio(candAgency, recAgency)
	}

	w := opts.AgencyWeight
	return nameScore*(1-w) + agencyScore*w
}

func preferOver(a, b *model.Record) bool {
	if a.Confidence.Rank() != b.Confidence.Rank() {
		return a.Confidence.Rank() > b.Confidence.Rank()
	}
	if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
		return a.FirstSeenAt.Before(b.FirstSeenAt)
	}
	return a.ID < b.ID
}
