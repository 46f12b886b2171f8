// Package types defines the shared data model for OpsPilot: module
// manifests and lifecycle states, event payloads, approval records,
// audit entries, and health reports. All other packages depend on
// types; types depends on nothing inside the project.
package types
