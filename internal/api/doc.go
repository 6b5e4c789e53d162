// Package api hosts the HTTP gateway to the data service. Routes:
//   - GET /healthz and /readyz for probes; readyz touches the store.
//   - GET /metrics for Prometheus scraping.
//   - PUT /v1/data/{key} writes the raw request body as text.
//   - GET /v1/data/{key} reads it back.
//   - GET /v1/articles/{id} returns a decoded article record.
package api
