// Package module is the plugin kernel: the module contract, the
// per-module context, dependency resolution, the lifecycle state
// machine, and build-time plugin registration with directory-based
// manifest discovery.
package module
