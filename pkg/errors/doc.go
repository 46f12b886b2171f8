// Package errors defines the failure taxonomy used across OpsPilot.
// Errors carry a kind (config, module, dependency, security, storage,
// runtime) and preserve their cause chain, so boundary code can decide
// whether a failure is fatal, retryable, or a caller mistake without
// string matching.
package errors
