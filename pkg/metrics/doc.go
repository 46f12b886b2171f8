// Package metrics defines the Prometheus collectors for the runtime's
// hot paths and exposes the scrape handler mounted by the HTTP server.
package metrics
