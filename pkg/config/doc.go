// Package config loads and validates the runtime's YAML configuration.
// Decoding is strict: unknown keys at any structured level are
// rejected; per-module sections stay free-form and are validated later
// against each module's declared schema.
package config
