package hnsw

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// BatchInsertResult reports the outcome of a BatchInsert.
type BatchInsertResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
	VectorIDs      []uint64
}

// BatchDeleteResult reports the outcome of a BatchRemove.
type BatchDeleteResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// BatchUpdateResult reports the outcome of a BatchUpdate.
type BatchUpdateResult struct {
	TotalProcessed int
	SuccessCount   int
	FailureCount   int
	Errors         []error
}

// ProgressCallback is invoked periodically during a batch operation.
type ProgressCallback func(processed, total int)

// VectorUpdate pairs an id with its replacement vector for BatchUpdate.
type VectorUpdate struct {
	ID     uint64
	Vector []float32
}

const batchWorkers = 8

// BatchInsert inserts vectors concurrently using a bounded worker pool,
// grounded on the teacher's pkg/hnsw/batch.go BatchInsert. Each vector gets
// its own freshly assigned id; per-item failures are collected rather than
// aborting the batch.
func (idx *Index) BatchInsert(ctx context.Context, vectors [][]float32, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{
		TotalProcessed: len(vectors),
		VectorIDs:      make([]uint64, len(vectors)),
	}
	if len(vectors) == 0 {
		return result
	}

	jobs := make(chan int, len(vectors))
	var wg sync.WaitGroup
	var successCount, failureCount int64
	var errMu sync.Mutex

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				id, err := idx.Add(vectors[i])
				if err != nil {
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("vector %d: %w", i, err))
					errMu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					result.VectorIDs[i] = id
					atomic.AddInt64(&successCount, 1)
				}
				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(vectors))
				}
			}
		}()
	}

	for i := range vectors {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// BatchInsertSequential inserts vectors one at a time, in order — used
// when callers need VectorIDs to reflect strict insertion order (e.g.
// deterministic replay of a write sequence for spec.md §8 property 6).
func (idx *Index) BatchInsertSequential(vectors [][]float32, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{
		TotalProcessed: len(vectors),
		VectorIDs:      make([]uint64, len(vectors)),
	}
	for i, v := range vectors {
		id, err := idx.Add(v)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("vector %d: %w", i, err))
			result.FailureCount++
		} else {
			result.VectorIDs[i] = id
			result.SuccessCount++
		}
		if progressCb != nil {
			progressCb(i+1, len(vectors))
		}
	}
	return result
}

// BatchRemove removes multiple ids concurrently using the same worker-pool
// pattern as BatchInsert.
func (idx *Index) BatchRemove(ctx context.Context, ids []uint64, progressCb ProgressCallback) *BatchDeleteResult {
	result := &BatchDeleteResult{TotalProcessed: len(ids)}
	if len(ids) == 0 {
		return result
	}

	jobs := make(chan uint64, len(ids))
	var wg sync.WaitGroup
	var successCount, failureCount int64
	var errMu sync.Mutex

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := idx.Remove(id); err != nil {
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("id %d: %w", id, err))
					errMu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}
				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(ids))
				}
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// BatchUpdate replaces multiple vectors concurrently, again following the
// worker-pool pattern.
func (idx *Index) BatchUpdate(ctx context.Context, updates []VectorUpdate, progressCb ProgressCallback) *BatchUpdateResult {
	result := &BatchUpdateResult{TotalProcessed: len(updates)}
	if len(updates) == 0 {
		return result
	}

	jobs := make(chan VectorUpdate, len(updates))
	var wg sync.WaitGroup
	var successCount, failureCount int64
	var errMu sync.Mutex

	for w := 0; w < batchWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := idx.Update(u.ID, u.Vector); err != nil {
					errMu.Lock()
					result.Errors = append(result.Errors, fmt.Errorf("id %d: %w", u.ID, err))
					errMu.Unlock()
					atomic.AddInt64(&failureCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}
				if progressCb != nil {
					processed := int(atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount))
					progressCb(processed, len(updates))
				}
			}
		}()
	}

	for _, u := range updates {
		jobs <- u
	}
	close(jobs)
	wg.Wait()

	result.SuccessCount = int(successCount)
	result.FailureCount = int(failureCount)
	return result
}

// GetBatchStats reports a snapshot of index shape for batch-operation
// callers that want cheap introspection without pulling in the full
// IndexStats.NodesPerLayer map.
func (idx *Index) GetBatchStats() map[string]interface{} {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := map[string]interface{}{
		"total_vectors": idx.size,
		"max_layer":     idx.topLayer,
		"dimension":     idx.dimension,
		"has_entry":     idx.hasEntry,
	}
	if idx.hasEntry {
		stats["entry_point"] = idx.entryPoint
	}
	return stats
}

// BatchInsertWithBuffer processes a large batch in fixed-size chunks so
// memory use for the job channel and result buffers stays bounded,
// grounded on the teacher's BatchInsertWithBuffer.
func (idx *Index) BatchInsertWithBuffer(ctx context.Context, vectors [][]float32, bufferSize int, progressCb ProgressCallback) *BatchInsertResult {
	result := &BatchInsertResult{
		TotalProcessed: len(vectors),
		VectorIDs:      make([]uint64, len(vectors)),
	}
	if len(vectors) == 0 {
		return result
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	for start := 0; start < len(vectors); start += bufferSize {
		end := start + bufferSize
		if end > len(vectors) {
			end = len(vectors)
		}
		chunkStart := start
		chunkCb := func(processed, total int) {
			if progressCb != nil {
				progressCb(chunkStart+processed, len(vectors))
			}
		}
		chunkResult := idx.BatchInsert(ctx, vectors[start:end], chunkCb)

		result.SuccessCount += chunkResult.SuccessCount
		result.FailureCount += chunkResult.FailureCount
		result.Errors = append(result.Errors, chunkResult.Errors...)
		copy(result.VectorIDs[start:end], chunkResult.VectorIDs)
	}
	return result
}
