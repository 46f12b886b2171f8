// Package correlate groups related incidents by keyword similarity.
// It consumes incident.created events, joins each incident to the best
// matching active group (or seeds a new one), and emits
// enrichment.completed per join plus incident.storm once per group
// when membership crosses the storm threshold.
package correlate
