package harvest

import (
	"context"
	"time"
)

// Discoverer enumerates the work items of one category.
type Discoverer interface {
	Discover(ctx context.Context, category Category) ([]WorkItem, error)
}

// Transformer turns one work item into a record. A nil record with a nil error
// means the item produced nothing.
type Transformer interface {
	Transform(ctx context.Context, item WorkItem) (Record, error)
}

// Sink commits records to their final destination. Implementations must be
// safe to call repeatedly; callers treat errors as non-fatal.
type Sink interface {
	Commit(ctx context.Context, record Record) error
}

// Hasher computes digests used to fingerprint records.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// DiscoverFunc adapts a function to Discoverer.
type DiscoverFunc func(ctx context.Context, category Category) ([]WorkItem, error)

// Discover calls f.
func (f DiscoverFunc) Discover(ctx context.Context, category Category) ([]WorkItem, error) {
	return f(ctx, category)
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, item WorkItem) (Record, error)

// Transform calls f.
func (f TransformFunc) Transform(ctx context.Context, item WorkItem) (Record, error) {
	return f(ctx, item)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record Record) error

// Commit calls f.
func (f SinkFunc) Commit(ctx context.Context, record Record) error {
	return f(ctx, record)
}
