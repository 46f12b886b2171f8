// Package ratelimit implements sliding-window admission control. One
// limiter guards the detector's global incident cap; another fronts
// the HTTP surface, keyed by caller.
package ratelimit
