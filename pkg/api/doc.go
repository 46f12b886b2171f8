// Package api serves the runtime's HTTP surface: liveness, readiness,
// and Prometheus metrics, behind request logging, rate limiting, and
// the security gates.
package api
