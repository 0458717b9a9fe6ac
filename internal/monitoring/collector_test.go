package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rezme-Inc/incentive-agent/internal/freshness"
	"github.com/Rezme-Inc/incentive-agent/internal/identity"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
	"github.com/Rezme-Inc/incentive-agent/internal/store"
)

func seedRecord(t *testing.T, st store.Store, name string, tier model.Tier, loc string, mutate func(*model.Record)) {
	t.Helper()
	id, norm := identity.Derive(name, tier, loc)
	rec := model.Record{
		ID: id, Name: name, NameNormalized: norm,
		Tier: tier, LocationKey: loc,
		Confidence: model.ConfidenceMedium,
	}
	if mutate != nil {
		mutate(&rec)
	}
	_, err := st.Upsert(context.Background(), rec)
	require.NoError(t, err)
}

func TestCollector_Collect(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "mon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	old := time.Now().UTC().Add(-90 * 24 * time.Hour)

	// Fresh, multi-discovery federal record.
	seedRecord(t, st, "Work Opportunity Tax Credit", model.TierFederal, "federal", func(r *model.Record) {
		r.Confidence = model.ConfidenceHigh
		r.DiscoveryCount = 4
	})
	// Stale state record, seen once.
	seedRecord(t, st, "Quality Jobs Program", model.TierState, "arizona", func(r *model.Record) {
		r.FirstSeenAt = old
		r.LastConfirmedAt = old
	})
	// Suppressed: found once, missed past the threshold.
	seedRecord(t, st, "Phantom Hiring Credit", model.TierState, "arizona", func(r *model.Record) {
		r.MissCount = 3
	})
	require.NoError(t, st.LogReconcile(ctx, store.ReconcileLogEntry{
		Tier: model.TierState, LocationKey: "arizona", Candidates: 2,
	}))

	c := NewCollector(st, freshness.DefaultPolicy(), 3)
	snap, err := c.Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.TotalPrograms)
	assert.Equal(t, 1, snap.ByTier[model.TierFederal])
	assert.Equal(t, 2, snap.ByTier[model.TierState])
	assert.Equal(t, 1, snap.ByConfidence[model.ConfidenceHigh])
	assert.Equal(t, 2, snap.ByConfidence[model.ConfidenceMedium])
	assert.Equal(t, 1, snap.Stale)
	assert.Equal(t, 1, snap.Suppressed)
	assert.Equal(t, 2, snap.SingleDiscovery)
	assert.Equal(t, 1, snap.ReconcilePasses)
	assert.False(t, snap.CollectedAt.IsZero())
}
