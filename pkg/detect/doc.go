// Package detect turns log lines into incidents. The threshold
// detector matches metric values out of log.ingested lines with
// per-rule regexes, keeps a sliding sample window, and emits
// incident.created when a sustained breach survives the cooldown and
// the global rate limit.
package detect
