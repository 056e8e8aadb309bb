package reconcile

import (
	"context"
	"log/slog"

	"feedctl/internal/storage"
)

// OffsetReconciler repairs user story offsets that drifted from their
// story's authoritative offset. The two-phase negation algorithm lives in
// storage.RepairUserStoryOffsets; this component owns the snapshot
// discipline: query once, repair that exact list.
type OffsetReconciler struct {
	store *storage.Store
	log   *slog.Logger
}

func NewOffsetReconciler(store *storage.Store, log *slog.Logger) *OffsetReconciler {
	return &OffsetReconciler{store: store, log: log}
}

// Mismatches takes the upfront snapshot of drifted rows. The returned list
// must be passed to Repair unmodified; re-querying mid-run would break the
// collision-freedom argument.
func (r *OffsetReconciler) Mismatches(ctx context.Context) ([]storage.OffsetMismatch, error) {
	return r.store.QueryOffsetMismatches(ctx)
}

// Repair converges every snapshotted user story offset to its story's
// offset in a single transaction. A no-mismatch snapshot is a no-op, so the
// repair is idempotent.
func (r *OffsetReconciler) Repair(ctx context.Context, items []storage.OffsetMismatch) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.store.RepairUserStoryOffsets(ctx, items); err != nil {
		return err
	}
	r.log.Info("repaired user story offsets", "count", len(items))
	return nil
}
