// Package sink combines record destinations.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// Fanout commits every record to each of its sinks in order. A failing sink
// does not prevent the others from receiving the record.
type Fanout struct {
	sinks []harvest.Sink
}

// NewFanout builds a Fanout, skipping nil sinks.
func NewFanout(sinks ...harvest.Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len reports the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Commit delivers record to every sink and joins their errors.
func (f *Fanout) Commit(ctx context.Context, record harvest.Record) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Commit(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
