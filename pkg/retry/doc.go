// Package retry runs operations under exponential backoff with jitter.
// The core never retries storage at the engine level; the component
// that knows an operation's semantics decides what is retryable.
package retry
