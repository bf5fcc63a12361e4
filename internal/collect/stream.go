package collect

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// Appender accepts harvested records.
type Appender interface {
	Append(record harvest.Record)
}

// StreamWriter appends records to a writer as JSON lines. Child worker
// processes use it to hand records to the supervising process over stdout.
type StreamWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewStreamWriter wraps w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{enc: json.NewEncoder(w)}
}

// Append encodes one record per line. The first encode error is kept and
// reported by Err; later appends are dropped.
func (s *StreamWriter) Append(record harvest.Record) {
	if record == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if err := s.enc.Encode(record); err != nil {
		s.err = fmt.Errorf("encode record: %w", err)
	}
}

// Err returns the first encode failure.
func (s *StreamWriter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ReadStream decodes JSON-line records from r into dst until EOF. It returns
// the number of records read and any decode error.
func ReadStream(r io.Reader, dst Appender) (int, error) {
	dec := json.NewDecoder(r)
	n := 0
	for {
		var record harvest.Record
		err := dec.Decode(&record)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("decode record: %w", err)
		}
		dst.Append(record)
		n++
	}
}
