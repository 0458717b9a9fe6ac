// Package monitoring gathers health metrics over the program knowledge base.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Rezme-Inc/incentive-agent/internal/freshness"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
	"github.com/Rezme-Inc/incentive-agent/internal/store"
)

// Snapshot holds a point-in-time view of knowledge-base health.
type Snapshot struct {
	TotalPrograms   int                      `json:"total_programs"`
	ByTier          map[model.Tier]int       `json:"by_tier"`
	ByConfidence    map[model.Confidence]int `json:"by_confidence"`
	Stale           int                      `json:"stale"`
	Suppressed      int                      `json:"suppressed"`
	SingleDiscovery int                      `json:"single_discovery"`
	ReconcilePasses int                      `json:"reconcile_passes"`
	CollectedAt     time.Time                `json:"collected_at"`
}

// Collector computes snapshots from the store.
type Collector struct {
	store         store.Store
	policy        freshness.Policy
	missThreshold int
}

// NewCollector creates a Collector using the same freshness policy and miss
// threshold the lifecycle layer applies, so its stale/suppressed counts
// match what callers actually see.
func NewCollector(st store.Store, policy freshness.Policy, missThreshold int) *Collector {
	return &Collector{store: st, policy: policy, missThreshold: missThreshold}
}

// Collect builds a Snapshot as of now.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: store stats")
	}

	recs, err := c.store.All(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list records")
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		TotalPrograms:   stats.TotalPrograms,
		ByTier:          stats.ByTier,
		ByConfidence:    stats.ByConfidence,
		ReconcilePasses: stats.ReconcilePasses,
		CollectedAt:     now,
	}
	for _, rec := range recs {
		if !c.policy.IsFresh(rec, now) {
			snap.Stale++
		}
		if rec.DiscoveryCount == 1 {
			snap.SingleDiscovery++
			if rec.MissCount >= c.missThreshold {
				snap.Suppressed++
			}
		}
	}
	return snap, nil
}
