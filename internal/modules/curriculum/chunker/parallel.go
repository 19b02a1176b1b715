package chunker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

// DefaultWorkers bounds concurrent chunk calls.
const DefaultWorkers = 3

// DetectFunc analyzes one chunk.
type DetectFunc func(ctx context.Context, chunk curriculum.ContentChunk) (curriculum.StructureResult, error)

// ProcessParallel runs fn over chunks with at most workers in flight and
// returns one result per chunk in chunk order. A chunk that errors or
// panics yields an empty structure with Err set; the batch never aborts.
func ProcessParallel(ctx context.Context, log *logger.Logger, chunks []curriculum.ContentChunk, workers int, fn DetectFunc) []ChunkResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]ChunkResult, len(chunks))
	var g errgroup.Group
	g.SetLimit(workers)

	for i := range chunks {
		i := i
		chunk := chunks[i]
		g.Go(func() (err error) {
			results[i] = ChunkResult{ChunkIndex: chunk.ChunkIndex}
			defer func() {
				if r := recover(); r != nil {
					results[i] = ChunkResult{ChunkIndex: chunk.ChunkIndex, Err: fmt.Errorf("chunk %d panicked: %v", chunk.ChunkIndex, r)}
					log.Error("structure chunk panicked", "chunk_index", chunk.ChunkIndex, "panic", r)
				}
			}()
			if ctxErr := ctx.Err(); ctxErr != nil {
				results[i].Err = ctxErr
				return nil
			}
			s, fnErr := fn(ctx, chunk)
			if fnErr != nil {
				results[i].Err = fnErr
				log.Warn("structure chunk failed; contributing empty result",
					"chunk_index", chunk.ChunkIndex,
					"total_chunks", chunk.TotalChunks,
					"error", fnErr,
				)
				return nil
			}
			results[i].Structure = s
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed counts results that carry an error.
func Failed(results []ChunkResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
