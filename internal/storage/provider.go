// Package storage writes the harvest output artifact to a blob store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// ContentTypeJSON is the content type of the output artifact.
const ContentTypeJSON = "application/json"

// BlobStore uploads objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// JSONEncoder writes a JSON document, such as collect.Collection.
type JSONEncoder interface {
	WriteJSON(w io.Writer) error
}

// PutJSON encodes doc and uploads it to path.
func PutJSON(ctx context.Context, store BlobStore, path string, doc JSONEncoder) (string, error) {
	if store == nil {
		return "", fmt.Errorf("blob store is required")
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	var buf bytes.Buffer
	if err := doc.WriteJSON(&buf); err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}
	uri, err := store.PutObject(ctx, path, ContentTypeJSON, &buf)
	if err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	return uri, nil
}
