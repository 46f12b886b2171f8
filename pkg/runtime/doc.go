// Package runtime is the composition root: it wires logging, storage,
// audit, events, scheduling, the approval gate, the module kernel, and
// the HTTP gates into one process, and drives startup and
// signal-ordered shutdown.
package runtime
