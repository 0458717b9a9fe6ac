// Package kb is the lifecycle layer of the program knowledge base. It wires
// the store, the reconciler, and the freshness policy into the one call a
// discovery branch needs: hand in this run's candidates for a scope, get
// back the merged, suppression-filtered, durable view.
package kb

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Rezme-Inc/incentive-agent/internal/freshness"
	"github.com/Rezme-Inc/incentive-agent/internal/identity"
	"github.com/Rezme-Inc/incentive-agent/internal/model"
	"github.com/Rezme-Inc/incentive-agent/internal/reconcile"
	"github.com/Rezme-Inc/incentive-agent/internal/store"
)

// DefaultMissThreshold is the number of consecutive unconfirmed runs after
// which a once-seen record is suppressed from the visible set.
const DefaultMissThreshold = 3

// Config holds the lifecycle tuning parameters.
type Config struct {
	Reconcile reconcile.Options
	// MissThreshold suppresses a record once it was found exactly once and
	// then missed this many times.
	MissThreshold int
	// RefreshConcurrency bounds the parallel scope refreshes in RefreshAll.
	RefreshConcurrency int
}

// Manager applies lifecycle policy over the store and reconciler.
type Manager struct {
	store         store.Store
	policy        freshness.Policy
	opts          reconcile.Options
	missThreshold int
	concurrency   int
}

// NewManager creates a Manager. Zero-valued config fields fall back to
// defaults.
func NewManager(st store.Store, policy freshness.Policy, cfg Config) *Manager {
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = DefaultMissThreshold
	}
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 4
	}
	return &Manager{
		store:         st,
		policy:        policy,
		opts:          cfg.Reconcile,
		missThreshold: cfg.MissThreshold,
		concurrency:   cfg.RefreshConcurrency,
	}
}

// GetOrRefresh reconciles this run's candidates for one scope against the
// stored records and persists the outcome: matched records are confirmed,
// unmatched candidates become new records, and stored records nobody
// reconfirmed take a miss. The returned set is the suppression-filtered
// durable view with stale flags applied.
func (m *Manager) GetOrRefresh(ctx context.Context, tier model.Tier, locationKey string, candidates []model.Candidate) ([]model.Record, error) {
	log := zap.L().With(
		zap.String("tier", string(tier)),
		zap.String("location_key", locationKey),
	)

	existing, err := m.store.Lookup(ctx, tier, locationKey)
	if err != nil {
		return nil, eris.Wrap(err, "kb: lookup scope")
	}

	res := reconcile.Reconcile(existing, candidates, tier, locationKey, m.opts)
	for _, sk := range res.Skipped {
		log.Warn("kb: skipped candidate",
			zap.Int("index", sk.CandidateIndex),
			zap.String("reason", sk.Reason))
	}

	// One confirm per record per run, however many candidates matched it:
	// duplicate observations fold together first so discovery_count counts
	// runs, not extraction noise.
	obsByID := make(map[string]model.Observation, len(res.Matches))
	for _, match := range res.Matches {
		cand := candidates[match.CandidateIndex]
		obs := model.Observation{
			Name:       cand.Name,
			Confidence: cand.Confidence,
			Attributes: cand.Attributes,
		}
		if prev, ok := obsByID[match.RecordID]; ok {
			obs = model.MergeObservations(prev, obs)
		}
		obsByID[match.RecordID] = obs
	}
	for _, id := range res.Confirmed {
		if err := m.store.Confirm(ctx, id, obsByID[id]); err != nil {
			return nil, eris.Wrapf(err, "kb: confirm %s", id)
		}
	}

	// A "new" candidate can still land on an existing id when its normalized
	// name matches a stored record that the scorer kept apart (conflicting
	// agencies). The upsert merges with confirm semantics, so the record was
	// reconfirmed this run and must not also take a miss.
	created := 0
	mergedIDs := make(map[string]bool)
	for _, idx := range res.New {
		cand := candidates[idx]
		rec := newRecord(cand)
		wasNew, err := m.store.Upsert(ctx, rec)
		if err != nil {
			return nil, eris.Wrapf(err, "kb: upsert %s", rec.ID)
		}
		if wasNew {
			created++
		} else {
			mergedIDs[rec.ID] = true
		}
	}

	missed := 0
	for _, id := range res.Missed {
		if mergedIDs[id] {
			continue
		}
		if err := m.store.RecordMiss(ctx, id); err != nil {
			return nil, eris.Wrapf(err, "kb: record miss %s", id)
		}
		missed++
	}

	if err := m.store.LogReconcile(ctx, store.ReconcileLogEntry{
		Tier:        tier,
		LocationKey: locationKey,
		Candidates:  len(candidates),
		Matched:     len(res.Confirmed) + len(mergedIDs),
		Created:     created,
		Missed:      missed,
		Skipped:     len(res.Skipped),
	}); err != nil {
		return nil, eris.Wrap(err, "kb: log reconcile")
	}

	log.Info("kb: reconcile pass complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("matched", len(res.Confirmed)+len(mergedIDs)),
		zap.Int("created", created),
		zap.Int("missed", missed))

	return m.VisibleRecords(ctx, tier, locationKey)
}

// VisibleRecords returns the scope's records minus the suppressed ones:
// found exactly once and then missed missThreshold or more times. The filter
// is read-time only; counts keep accumulating underneath, so a later genuine
// reconfirmation un-suppresses a record automatically.
func (m *Manager) VisibleRecords(ctx context.Context, tier model.Tier, locationKey string) ([]model.Record, error) {
	recs, err := m.store.Lookup(ctx, tier, locationKey)
	if err != nil {
		return nil, eris.Wrap(err, "kb: lookup scope")
	}
	now := time.Now().UTC()

	out := make([]model.Record, 0, len(recs))
	for _, rec := range recs {
		if m.suppressed(rec) {
			continue
		}
		rec.Stale = !m.policy.IsFresh(rec, now)
		out = append(out, rec)
	}
	return out, nil
}

func (m *Manager) suppressed(rec model.Record) bool {
	return rec.DiscoveryCount == 1 && rec.MissCount >= m.missThreshold
}

// Seed pre-populates the store with known-authoritative baseline programs.
// Idempotent: re-seeding merges through upsert, so it never duplicates a
// record or regresses its confidence. Returns the number of records created.
func (m *Manager) Seed(ctx context.Context, candidates []model.Candidate) (int, error) {
	created := 0
	for _, cand := range candidates {
		if err := cand.Validate(); err != nil {
			zap.L().Warn("kb: skipped seed candidate", zap.Error(err))
			continue
		}
		wasNew, err := m.store.Upsert(ctx, newRecord(cand))
		if err != nil {
			return created, eris.Wrapf(err, "kb: seed %q", cand.Name)
		}
		if wasNew {
			created++
		}
	}
	return created, nil
}

// ScopeBatch is one scope's worth of candidates for RefreshAll.
type ScopeBatch struct {
	Tier        model.Tier
	LocationKey string
	Candidates  []model.Candidate
}

// ScopeResult is the per-scope outcome of RefreshAll.
type ScopeResult struct {
	Tier        model.Tier
	LocationKey string
	Records     []model.Record
	Err         error
}

// RefreshAll runs GetOrRefresh for several scopes concurrently, the way the
// discovery pipeline fans out one branch per jurisdiction tier. A failed
// scope does not abort the others; its error lands in its ScopeResult.
func (m *Manager) RefreshAll(ctx context.Context, batches []ScopeBatch) []ScopeResult {
	results := make([]ScopeResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			recs, err := m.GetOrRefresh(gctx, batch.Tier, batch.LocationKey, batch.Candidates)
			results[i] = ScopeResult{
				Tier:        batch.Tier,
				LocationKey: batch.LocationKey,
				Records:     recs,
				Err:         err,
			}
			if err != nil {
				zap.L().Error("kb: scope refresh failed",
					zap.String("tier", string(batch.Tier)),
					zap.String("location_key", batch.LocationKey),
					zap.Error(err))
			}
			return nil // isolate scope failures
		})
	}
	_ = g.Wait()
	return results
}

// newRecord builds a Record from a validated candidate, deriving its
// identity through the key deriver.
func newRecord(cand model.Candidate) model.Record {
	id, normalized := identity.Derive(cand.Name, cand.Tier, cand.LocationKey)
	conf := cand.Confidence
	if conf.Rank() < 0 {
		conf = model.ConfidenceLow
	}
	return model.Record{
		ID:             id,
		Name:           cand.Name,
		NameNormalized: normalized,
		Tier:           cand.Tier,
		LocationKey:    cand.LocationKey,
		Confidence:     conf,
		Attributes:     cand.Attributes,
	}
}
