// Package fetcher defines the page retrieval contract shared by the HTTP and
// headless browser implementations.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Request describes one page to retrieve.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is a retrieved page.
type Response struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// OK reports whether the response carries a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher retrieves pages.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}
