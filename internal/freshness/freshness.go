// Package freshness classifies knowledge-base records as fresh or stale.
// It only classifies: stale records are returned and flagged for
// revalidation, never hidden.
package freshness

import (
	"time"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

// defaultTTLDays holds per-tier TTLs. Coarser tiers change less often and
// get longer TTLs.
var defaultTTLDays = map[model.Tier]int{
	model.TierFederal: 30,
	model.TierState:   30,
	model.TierCounty:  14,
	model.TierCity:    7,
}

// Policy maps a tier to the maximum age a record may reach since its last
// confirmation before it is considered stale.
type Policy struct {
	ttl map[model.Tier]time.Duration
}

// NewPolicy builds a Policy from per-tier TTL days. Tiers missing from the
// map (or set to zero) fall back to the defaults.
func NewPolicy(ttlDays map[model.Tier]int) Policy {
	ttl := make(map[model.Tier]time.Duration, len(defaultTTLDays))
	for tier, days := range defaultTTLDays {
		if d, ok := ttlDays[tier]; ok && d > 0 {
			days = d
		}
		ttl[tier] = time.Duration(days) * 24 * time.Hour
	}
	return Policy{ttl: ttl}
}

// DefaultPolicy returns a Policy with the built-in TTLs.
func DefaultPolicy() Policy {
	return NewPolicy(nil)
}

// TTL returns the configured TTL for a tier. Unknown tiers get the federal
// (longest) TTL so a misconfigured caller errs toward revalidation later
// rather than thrashing.
func (p Policy) TTL(tier model.Tier) time.Duration {
	if d, ok := p.ttl[tier]; ok {
		return d
	}
	return p.ttl[model.TierFederal]
}

// IsFresh reports whether rec was confirmed recently enough, as of asOf, to
// be trusted without a re-check.
func (p Policy) IsFresh(rec model.Record, asOf time.Time) bool {
	return !rec.LastConfirmedAt.Add(p.TTL(rec.Tier)).Before(asOf)
}
