// Package log initializes the global zerolog logger from configuration
// and hands out per-module child loggers. Modules never construct their
// own loggers; the kernel injects a child with the module field set.
package log
