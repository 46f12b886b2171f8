// Package storage provides the collection/key/value store underneath
// the audit log, the approval gate, and every module's private state.
// Four interchangeable backends (memory, file, sqlite, bolt) satisfy a
// single contract; modules only ever see a namespaced view that keeps
// them inside their own collections.
package storage
