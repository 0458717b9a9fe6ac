package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rezme-Inc/incentive-agent/internal/identity"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

func existingRecord(name string, tier model.Tier, loc string) model.Record {
	id, norm := identity.Derive(name, tier, loc)
	return model.Record{
		ID:             id,
		Name:           name,
		NameNormalized: norm,
		Tier:           tier,
		LocationKey:    loc,
		Confidence:     model.ConfidenceMedium,
		FirstSeenAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconcile_MatchesAbbreviatedName(t *testing.T) {
	rec := existingRecord("WOTC", model.TierState, "arizona")
	candidates := []model.Candidate{{
		Name:        "Work Opportunity Tax Credit (WOTC)",
		Tier:        model.TierState,
		LocationKey: "arizona",
		Confidence:  model.ConfidenceHigh,
	}}

	res := Reconcile([]model.Record{rec}, candidates, model.TierState, "arizona", DefaultOptions())

	require.Len(t, res.Matches, 1)
	assert.Equal(t, rec.ID, res.Matches[0].RecordID)
	assert.Equal(t, 0, res.Matches[0].CandidateIndex)
	assert.Empty(t, res.New)
	assert.Empty(t, res.Missed)
	assert.Equal(t, []string{rec.ID}, res.Confirmed)
}

func TestReconcile_NewCandidate(t *testing.T) {
	rec := existingRecord("Work Opportunity Tax Credit", model.TierState, "arizona")
	candidates := []model.Candidate{{
		Name:        "Quality Jobs Program",
		Tier:        model.TierState,
		LocationKey: "arizona",
		Confidence:  model.ConfidenceMedium,
	}}

	res := Reconcile([]model.Record{rec}, candidates, model.TierState, "arizona", DefaultOptions())

	assert.Empty(t, res.Matches)
	assert.Equal(t, []int{0}, res.New)
	assert.Equal(t, []string{rec.ID}, res.Missed, "unmatched existing record is missed")
}

func TestReconcile_EmptyCandidateListMissesEverything(t *testing.T) {
	a := existingRecord("Program A", model.TierState, "arizona")
	b := existingRecord("Program B", model.TierState, "arizona")

	res := Reconcile([]model.Record{a, b}, nil, model.TierState, "arizona", DefaultOptions())

	assert.Empty(t, res.Matches)
	assert.Empty(t, res.New)
	assert.Equal(t, []string{a.ID, b.ID}, res.Missed)
}

func TestReconcile_ScopeGuard(t *testing.T) {
	// Same normalized name, different tier: never compared, never merged.
	stateRec := existingRecord("Enterprise Zone", model.TierState, "arizona")
	cityRec := existingRecord("Enterprise Zone", model.TierCity, "phoenix_arizona")

	candidates := []model.Candidate{{
		Name:        "Enterprise Zone",
		Tier:        model.TierState,
		LocationKey: "arizona",
		Confidence:  model.ConfidenceMedium,
	}}

	res := Reconcile([]model.Record{stateRec, cityRec}, candidates, model.TierState, "arizona", DefaultOptions())

	require.Len(t, res.Matches, 1)
	assert.Equal(t, stateRec.ID, res.Matches[0].RecordID)
	// The out-of-scope city record is neither confirmed nor missed here.
	assert.NotContains(t, res.Confirmed, cityRec.ID)
	assert.NotContains(t, res.Missed, cityRec.ID)
}

func TestReconcile_OutOfScopeCandidateSkipped(t *testing.T) {
	candidates := []model.Candidate{
		{Name: "Enterprise Zone", Tier: model.TierCity, LocationKey: "phoenix_arizona", Confidence: model.ConfidenceLow},
	}

	res := Reconcile(nil, candidates, model.TierState, "arizona", DefaultOptions())

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 0, res.Skipped[0].CandidateIndex)
	assert.Empty(t, res.New)
}

func TestReconcile_InvalidCandidatesSkipped(t *testing.T) {
	candidates := []model.Candidate{
		{Name: "", Tier: model.TierState, LocationKey: "arizona"},
		{Name: "Valid Program", Tier: model.TierState, LocationKey: "arizona", Confidence: model.ConfidenceLow},
		{Name: "Bad Tier", Tier: model.Tier("province"), LocationKey: "arizona"},
	}

	res := Reconcile(nil, candidates, model.TierState, "arizona", DefaultOptions())

	assert.Len(t, res.Skipped, 2)
	assert.Equal(t, []int{1}, res.New)
}

func TestReconcile_AgencyKeepsIdenticalNamesApart(t *testing.T) {
	rec := existingRecord("Job Training Grant", model.TierCounty, "cook_county_illinois")
	rec.Attributes.Agency = "Cook County Bureau of Economic Development"

	candidates := []model.Candidate{{
		Name:        "Job Training Grant",
		Tier:        model.TierCounty,
		LocationKey: "cook_county_illinois",
		Confidence:  model.ConfidenceLow,
		Attributes:  model.Attributes{Agency: "Chicago Cook Workforce Partnership"},
	}}

	opts := Options{Threshold: 0.90, AgencyWeight: 0.30}
	res := Reconcile([]model.Record{rec}, candidates, model.TierCounty, "cook_county_illinois", opts)

	// Identical names but disjoint agencies stay below a strict threshold.
	assert.Empty(t, res.Matches)
	assert.Equal(t, []int{0}, res.New)
}

func TestReconcile_TieBreakPrefersHigherConfidence(t *testing.T) {
	older := existingRecord("Hiring Credit", model.TierState, "arizona")
	older.ID = "aaaa000000000000"
	older.Confidence = model.ConfidenceLow
	older.FirstSeenAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	newer := existingRecord("Hiring Credit", model.TierState, "arizona")
	newer.ID = "bbbb000000000000"
	newer.Confidence = model.ConfidenceHigh
	newer.FirstSeenAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	candidates := []model.Candidate{{
		Name:        "Hiring Credit",
		Tier:        model.TierState,
		LocationKey: "arizona",
		Confidence:  model.ConfidenceMedium,
	}}

	res := Reconcile([]model.Record{older, newer}, candidates, model.TierState, "arizona", DefaultOptions())

	require.Len(t, res.Matches, 1)
	assert.Equal(t, newer.ID, res.Matches[0].RecordID)
}

func TestReconcile_TieBreakFallsBackToFirstSeen(t *testing.T) {
	first := existingRecord("Hiring Credit", model.TierState, "arizona")
	first.ID = "cccc000000000000"
	first.FirstSeenAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	second := existingRecord("Hiring Credit", model.TierState, "arizona")
	second.ID = "dddd000000000000"
	second.FirstSeenAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	candidates := []model.Candidate{{
		Name:        "Hiring Credit",
		Tier:        model.TierState,
		LocationKey: "arizona",
		Confidence:  model.ConfidenceMedium,
	}}

	// Same score, same confidence: earliest first_seen_at wins, regardless
	// of input order.
	for _, existing := range [][]model.Record{{first, second}, {second, first}} {
		res := Reconcile(existing, candidates, model.TierState, "arizona", DefaultOptions())
		require.Len(t, res.Matches, 1)
		assert.Equal(t, first.ID, res.Matches[0].RecordID)
	}
}

func TestReconcile_TwoCandidatesOneRecord(t *testing.T) {
	rec := existingRecord("Work Opportunity Tax Credit", model.TierState, "arizona")
	candidates := []model.Candidate{
		{Name: "WOTC", Tier: model.TierState, LocationKey: "arizona", Confidence: model.ConfidenceLow},
		{Name: "Work Opportunity Tax Credit", Tier: model.TierState, LocationKey: "arizona", Confidence: model.ConfidenceHigh},
	}

	res := Reconcile([]model.Record{rec}, candidates, model.TierState, "arizona", DefaultOptions())

	assert.Len(t, res.Matches, 2)
	assert.Equal(t, []string{rec.ID}, res.Confirmed, "confirmed ids are distinct")
	assert.Empty(t, res.Missed)
}
