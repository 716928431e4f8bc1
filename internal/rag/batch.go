package rag

import (
	"context"
	"fmt"
)

// UpsertBatchSize is the number of records sent to the index per call.
const UpsertBatchSize = 100

// UpsertBatched upserts records into idx in consecutive batches of
// UpsertBatchSize. The first failing batch aborts the operation; batches
// already written are left in place and are overwritten by a retry because
// vector IDs are deterministic.
func UpsertBatched(ctx context.Context, idx VectorIndex, namespace string, records []VectorRecord) error {
	for start := 0; start < len(records); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(records))
		if err := idx.Upsert(ctx, namespace, records[start:end]); err != nil {
			return indexError(fmt.Sprintf("upsert batch %d-%d of %d", start, end, len(records)), err)
		}
	}
	return nil
}
