// Package collect provides the concurrency-safe, append-only record
// collection shared by supervised workers.
package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
)

// Collection is an append-only list of records safe for concurrent use.
type Collection struct {
	mu      sync.RWMutex
	records []harvest.Record
}

// New returns an empty Collection.
func New() *Collection {
	return &Collection{}
}

// Append stores a copy of the record. Nil records are ignored.
func (c *Collection) Append(record harvest.Record) {
	if record == nil {
		return
	}
	c.mu.Lock()
	c.records = append(c.records, record.Clone())
	c.mu.Unlock()
	metrics.ObserveCollected()
}

// Commit implements harvest.Sink so a Collection can back the pipeline writer.
func (c *Collection) Commit(_ context.Context, record harvest.Record) error {
	if record == nil {
		return fmt.Errorf("nil record")
	}
	c.Append(record)
	return nil
}

// Len reports the number of collected records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Snapshot returns copies of the records collected so far, in append order.
func (c *Collection) Snapshot() []harvest.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]harvest.Record, len(c.records))
	for i, rec := range c.records {
		out[i] = rec.Clone()
	}
	return out
}

// WriteJSON serializes the snapshot as a single JSON array.
func (c *Collection) WriteJSON(w io.Writer) error {
	snapshot := c.Snapshot()
	if snapshot == nil {
		snapshot = []harvest.Record{}
	}
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}
