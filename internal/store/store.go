// Package store persists the program knowledge base. All mutation goes
// through named operations that preserve the record invariants: ids are
// derived (never ad hoc), confidence only ratchets up, and counts only
// accumulate. Nothing in this package hides records; suppression is a
// read-time concern of the lifecycle layer.
package store

import (
	"context"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

// ReconcileLogEntry summarizes one reconcile pass over a scope, for
// auditability of how the knowledge base evolved.
type ReconcileLogEntry struct {
	Tier        model.Tier `json:"tier"`
	LocationKey string     `json:"location_key"`
	Candidates  int        `json:"candidates"`
	Matched     int        `json:"matched"`
	Created     int        `json:"created"`
	Missed      int        `json:"missed"`
	Skipped     int        `json:"skipped"`
}

// Stats is a point-in-time summary of the knowledge base.
type Stats struct {
	TotalPrograms   int                      `json:"total_programs"`
	ByTier          map[model.Tier]int       `json:"by_tier"`
	ByConfidence    map[model.Confidence]int `json:"by_confidence"`
	ReconcilePasses int                      `json:"reconcile_passes"`
}

// Store defines the persistence interface for the knowledge base. Writes to
// a single record are serialized by the implementation; concurrent scoped
// reads see either the fully-old or fully-new state of any one record.
type Store interface {
	// Lookup returns every record in a (tier, location_key) scope, stale and
	// suppressed ones included.
	Lookup(ctx context.Context, tier model.Tier, locationKey string) ([]model.Record, error)
	// Get returns a single record by id, or nil if absent.
	Get(ctx context.Context, id string) (*model.Record, error)
	// All returns every record in the knowledge base.
	All(ctx context.Context) ([]model.Record, error)

	// Upsert inserts rec, or merges it into the existing record with the same
	// id using confirm semantics (count bump, ratchet, longer-wins fields).
	// Returns true when a new record was created.
	Upsert(ctx context.Context, rec model.Record) (bool, error)
	// Confirm marks an existing record as reconfirmed this run.
	Confirm(ctx context.Context, id string, obs model.Observation) error
	// RecordMiss increments the miss count of a record whose scope was
	// searched without reconfirming it.
	RecordMiss(ctx context.Context, id string) error

	LogReconcile(ctx context.Context, entry ReconcileLogEntry) error
	Stats(ctx context.Context) (*Stats, error)

	Migrate(ctx context.Context) error
	Close() error
}
