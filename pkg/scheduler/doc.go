// Package scheduler owns every recurring timer in the process. Timer
// driven components (the correlator sweep, rate limiter cleanup,
// polling connectors) register jobs here instead of running their own
// tickers, and take the Clock seam so tests can drive time.
package scheduler
