// Package health rolls per-module health reports up into one process
// status. Readiness uses the roll-up; liveness deliberately does not.
package health
