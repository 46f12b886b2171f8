// Package approval is the gate every mutating action must traverse:
// request, human decision, time-bounded token, validation. A request
// is approved or denied exactly once; tokens lapse after a fixed TTL;
// every transition is audited before its event is published, and a
// failed audit write aborts the transition.
package approval
