package harvest

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Category names a partition of work, e.g. a catalog section or its URL.
type Category string

// String returns the category as a plain string.
func (c Category) String() string {
	return string(c)
}

// Categories converts plain strings into categories.
func Categories(values ...string) []Category {
	out := make([]Category, 0, len(values))
	for _, v := range values {
		out = append(out, Category(v))
	}
	return out
}

// WorkItem is a raw source reference queued for transformation.
type WorkItem struct {
	Category Category
	// Ref is the raw-source reference, normally the item URL.
	Ref string
	// Payload optionally carries the raw fragment captured during discovery.
	Payload []byte
}

// Record is the structured output of one successful transformation. Values are
// strings or nested map[string]string tables.
type Record map[string]any

// Well-known record fields.
const (
	FieldName        = "name"
	FieldTitle       = "title"
	FieldCategory    = "category"
	FieldPrice       = "price"
	FieldPriceRange  = "price_range"
	FieldDescription = "description"
)

// NotAvailable is stored for optional fields the source did not provide.
const NotAvailable = "N/A"

// String returns the field as a string, or "" when unset or not a string.
func (r Record) String(field string) string {
	if r == nil {
		return ""
	}
	switch v := r[field].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// Category returns the category the record was harvested under.
func (r Record) Category() Category {
	return Category(r.String(FieldCategory))
}

// DisplayName returns the name or title of the record, whichever is set.
func (r Record) DisplayName() string {
	if name := r.String(FieldName); name != "" {
		return name
	}
	return r.String(FieldTitle)
}

// Price returns price_range or price, whichever is set.
func (r Record) Price() string {
	if p := r.String(FieldPriceRange); p != "" {
		return p
	}
	return r.String(FieldPrice)
}

// Clone returns a copy whose top-level map and nested tables are independent
// of the receiver.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		switch table := v.(type) {
		case map[string]string:
			v = maps.Clone(table)
		case map[string]any:
			v = maps.Clone(table)
		}
		out[k] = v
	}
	return out
}

// Fingerprint hashes the canonical JSON form of the record. encoding/json
// sorts map keys, so equal records always hash equally.
func (r Record) Fingerprint(h Hasher) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	sum, err := h.Hash(data)
	if err != nil {
		return "", fmt.Errorf("hash record: %w", err)
	}
	return sum, nil
}
