package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// RepairUserStoryOffsets makes every mismatched user story offset equal its
// story's authoritative offset using a two-phase write, all inside one
// transaction.
//
// Phase A sets each offset n to -(n+1); Phase B sets it to the target story
// offset. The shift matters: plain negation maps 0 to 0, leaving a row at
// offset 0 in the non-negative space where a Phase B target could collide
// with it. -(n+1) is a bijection from the non-negatives into the strictly
// negatives, so Phase A cannot collide with untouched rows (negative offsets
// never occur in normal data) nor with itself. After Phase A every touched
// row holds a negative value, so none of the non-negative targets written in
// Phase B is still held by any row in the list. Both phases iterate the same
// fixed snapshot in the same order.
//
// A failure in either phase rolls the whole transaction back; rows are never
// left at negative offsets. Re-running with a fresh snapshot is always safe.
func (s *Store) RepairUserStoryOffsets(ctx context.Context, items []OffsetMismatch) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		// The shifted negation only vacates the non-negative space when
		// every offset starts there; check before any row is touched.
		if item.UserStoryOffset < 0 || item.StoryOffset < 0 {
			return fmt.Errorf("user story %d: negative offset in snapshot (us=%d story=%d), refusing to repair",
				item.UserStoryID, item.UserStoryOffset, item.StoryOffset)
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			_, err := tx.ExecContext(ctx,
				`UPDATE user_storys SET "offset" = ? WHERE id = ?`,
				-(item.UserStoryOffset + 1), item.UserStoryID,
			)
			if err != nil {
				return fmt.Errorf("phase A: negate offset for user story %d: %w", item.UserStoryID, err)
			}
		}
		for _, item := range items {
			_, err := tx.ExecContext(ctx,
				`UPDATE user_storys SET "offset" = ? WHERE id = ?`,
				item.StoryOffset, item.UserStoryID,
			)
			if err != nil {
				return fmt.Errorf("phase B: set offset for user story %d: %w", item.UserStoryID, err)
			}
		}
		return nil
	})
}
