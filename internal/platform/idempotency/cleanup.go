package idempotency

import (
	"context"
	"errors"
	"time"
)

const defaultCleanupBatch = 200

// Cleanup deletes expired records in batches of batchSize until a batch comes back short or
// maxBatches is reached. It returns how many records were removed.
func Cleanup(ctx context.Context, store Store, now time.Time, batchSize, maxBatches int) (int, error) {
	if store == nil {
		return 0, errors.New("idempotency: store is required")
	}
	if batchSize <= 0 {
		batchSize = defaultCleanupBatch
	}
	if maxBatches <= 0 {
		maxBatches = 10
	}
	total := 0
	for range maxBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		removed, err := store.CleanupExpired(ctx, now.UTC(), batchSize)
		total += removed
		if err != nil {
			return total, err
		}
		if removed < batchSize {
			break
		}
	}
	return total, nil
}
