// Package events is the in-process publish/subscribe bus. Envelopes
// are typed; each well-known event type is bound to exactly one
// payload shape and Publish rejects anything else. Delivery happens on
// the publisher's goroutine, sequentially in subscription order, and a
// failing handler never blocks the ones behind it.
package events
