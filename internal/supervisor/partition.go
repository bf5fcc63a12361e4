package supervisor

import (
	"errors"
	"slices"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// ErrInvalidWorkers is returned when fewer than one worker is requested.
var ErrInvalidWorkers = errors.New("worker count must be at least 1")

// Partition splits categories into workers contiguous chunks. Every chunk but
// the last holds len(categories)/workers entries; the last absorbs the
// remainder.
func Partition(categories []harvest.Category, workers int) ([][]harvest.Category, error) {
	if workers < 1 {
		return nil, ErrInvalidWorkers
	}
	chunks := make([][]harvest.Category, workers)
	for i := range chunks {
		chunks[i] = ChunkFor(categories, workers, i)
	}
	return chunks, nil
}

// ChunkFor recomputes the chunk of one worker index. It is a pure function of
// its arguments, so restarts always receive the original assignment.
func ChunkFor(categories []harvest.Category, workers, index int) []harvest.Category {
	if workers < 1 || index < 0 || index >= workers {
		return nil
	}
	size := len(categories) / workers
	start := index * size
	end := start + size
	if index == workers-1 {
		end = len(categories)
	}
	return slices.Clone(categories[start:end])
}
