// Package api hosts the operator HTTP surface of a harvest run:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/workers and /v1/workers/{index} for supervised unit status.
//   - GET /v1/records for the size of the shared collection.
package api
