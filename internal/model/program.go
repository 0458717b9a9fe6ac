// Package model defines the core domain types for the program knowledge base.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Tier is a jurisdiction level. Tiers scope records; they are not ranked.
type Tier string

const (
	TierCity    Tier = "city"
	TierCounty  Tier = "county"
	TierState   Tier = "state"
	TierFederal Tier = "federal"
)

// Tiers returns all known tiers in scoping order (narrowest first).
func Tiers() []Tier {
	return []Tier{TierCity, TierCounty, TierState, TierFederal}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCity, TierCounty, TierState, TierFederal:
		return true
	}
	return false
}

// Confidence is an ordered enum. A record's confidence only ever moves up
// (the ratchet); see Record.ApplyConfirm.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank returns the ordering position of c, or -1 for unknown values so that
// garbage input can never win the ratchet.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 0
	case ConfidenceMedium:
		return 1
	case ConfidenceHigh:
		return 2
	}
	return -1
}

// MaxConfidence returns the higher of a and b.
func MaxConfidence(a, b Confidence) Confidence {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Attributes is the descriptive payload of a program record.
type Attributes struct {
	Agency            string   `json:"agency" yaml:"agency"`
	BenefitType       string   `json:"benefit_type" yaml:"benefit_type"`
	Jurisdiction      string   `json:"jurisdiction" yaml:"jurisdiction"`
	MaxValue          string   `json:"max_value" yaml:"max_value"`
	TargetPopulations []string `json:"target_populations" yaml:"target_populations"`
	Description       string   `json:"description" yaml:"description"`
	SourceURLs        []string `json:"source_urls" yaml:"source_urls"`
}

// Record is the unit of persisted knowledge: one incentive program within
// one (tier, location_key) scope.
type Record struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	NameNormalized  string     `json:"name_normalized"`
	Tier            Tier       `json:"tier"`
	LocationKey     string     `json:"location_key"`
	Confidence      Confidence `json:"confidence"`
	Attributes      Attributes `json:"attributes"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastConfirmedAt time.Time  `json:"last_confirmed_at"`
	DiscoveryCount  int        `json:"discovery_count"`
	MissCount       int        `json:"miss_count"`

	// Stale is computed at read time from the freshness policy; it is never
	// persisted and never hides a record.
	Stale bool `json:"stale,omitempty"`
}

// Candidate is a freshly extracted, not-yet-reconciled program observation
// from one discovery run.
type Candidate struct {
	Name        string     `json:"name" yaml:"name"`
	Tier        Tier       `json:"tier" yaml:"tier"`
	LocationKey string     `json:"location_key" yaml:"location_key"`
	Confidence  Confidence `json:"confidence" yaml:"confidence"`
	Attributes  Attributes `json:"attributes" yaml:"attributes"`
}

// Validate rejects candidates that must not reach the store: empty names,
// unknown tiers, missing location scope.
func (c Candidate) Validate() error {
	if c.Name == "" {
		return eris.New("model: candidate has empty name")
	}
	if !c.Tier.Valid() {
		return eris.Errorf("model: unknown tier %q", c.Tier)
	}
	if c.LocationKey == "" {
		return eris.New("model: candidate has empty location key")
	}
	return nil
}

// Observation carries the per-run fields a confirm applies to an existing
// record.
type Observation struct {
	Name       string
	Confidence Confidence
	Attributes Attributes
}

// ApplyConfirm marks r as reconfirmed at now: discovery count bumps, miss
// count resets, confidence ratchets up, and attributes merge longer-wins.
// The observed display name replaces the stored one only when it is more
// descriptive (longer); the normalized name and id never change.
func (r *Record) ApplyConfirm(obs Observation, now time.Time) {
	r.DiscoveryCount++
	r.MissCount = 0
	r.LastConfirmedAt = now
	r.Confidence = MaxConfidence(r.Confidence, obs.Confidence)
	if len(obs.Name) > len(r.Name) {
		r.Name = obs.Name
	}
	r.Attributes = MergeAttributes(r.Attributes, obs.Attributes)
}

// MergeObservations folds two observations of the same program from one run
// into a single one, under the same rules a confirm applies: highest
// confidence, longest display name, merged attributes.
func MergeObservations(a, b Observation) Observation {
	out := a
	out.Confidence = MaxConfidence(a.Confidence, b.Confidence)
	if len(b.Name) > len(a.Name) {
		out.Name = b.Name
	}
	out.Attributes = MergeAttributes(a.Attributes, b.Attributes)
	return out
}

// MergeAttributes combines two attribute sets: longer non-empty strings win
// (treated as more complete), target populations take the longer list, and
// source URLs accumulate as a set so provenance is never overwritten.
func MergeAttributes(base, other Attributes) Attributes {
	out := base
	out.Agency = longerNonEmpty(base.Agency, other.Agency)
	out.BenefitType = longerNonEmpty(base.BenefitType, other.BenefitType)
	out.Jurisdiction = longerNonEmpty(base.Jurisdiction, other.Jurisdiction)
	out.MaxValue = longerNonEmpty(base.MaxValue, other.MaxValue)
	out.Description = longerNonEmpty(base.Description, other.Description)
	if len(other.TargetPopulations) > len(base.TargetPopulations) {
		out.TargetPopulations = other.TargetPopulations
	}
	out.SourceURLs = unionURLs(base.SourceURLs, other.SourceURLs)
	return out
}

func longerNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if len(b) > len(a) {
		return b
	}
	return a
}

func unionURLs(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, lst := range [][]string{a, b} {
		for _, u := range lst {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
