package types

import (
	"fmt"
	"time"
)

// ModuleCategory classifies what a module plugs into the runtime as.
type ModuleCategory string

const (
	CategoryConnector   ModuleCategory = "connector"
	CategoryDetector    ModuleCategory = "detector"
	CategoryEnricher    ModuleCategory = "enricher"
	CategoryNotifier    ModuleCategory = "notifier"
	CategoryAction      ModuleCategory = "action"
	CategoryToolHost    ModuleCategory = "tool-host"
	CategoryUIExtension ModuleCategory = "ui-extension"
)

// Categories lists every valid module category.
var Categories = []ModuleCategory{
	CategoryConnector,
	CategoryDetector,
	CategoryEnricher,
	CategoryNotifier,
	CategoryAction,
	CategoryToolHost,
	CategoryUIExtension,
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c ModuleCategory) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ModuleState is a step in the kernel-driven module lifecycle.
type ModuleState string

const (
	StateRegistered   ModuleState = "registered"
	StateInitializing ModuleState = "initializing"
	StateInitialized  ModuleState = "initialized"
	StateStarting     ModuleState = "starting"
	StateRunning      ModuleState = "running"
	StateStopping     ModuleState = "stopping"
	StateStopped      ModuleState = "stopped"
	StateDestroyed    ModuleState = "destroyed"
	StateError        ModuleState = "error"
)

// FieldSpec describes one field of a module's configuration schema.
type FieldSpec struct {
	Type     string `json:"type" yaml:"type"` // string, int, float, bool, duration, list, map
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Manifest is the immutable metadata a module declares about itself.
type Manifest struct {
	ID           string               `json:"id"`
	Version      string               `json:"version"`
	Category     ModuleCategory       `json:"category"`
	Description  string               `json:"description,omitempty"`
	Dependencies []string             `json:"dependencies,omitempty"`
	ConfigSchema map[string]FieldSpec `json:"configSchema,omitempty"`
}

// Validate checks the structural rules a manifest must satisfy.
func (m Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("manifest id is required")
	}
	if !ValidCategory(m.Category) {
		return fmt.Errorf("manifest %s: unknown category %q", m.ID, m.Category)
	}
	if m.Version == "" {
		return fmt.Errorf("manifest %s: version is required", m.ID)
	}
	return nil
}

// HealthState is the coarse status a module (or the whole process) reports.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// Health is a module's self-reported status.
type Health struct {
	Status    HealthState    `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checkedAt"`
}

// Severity grades an incident.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDenied   ApprovalStatus = "denied"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is a proposed mutating action awaiting a human decision.
// Status is the only field that changes after creation.
type ApprovalRequest struct {
	ID           string            `json:"id"`
	ActionType   string            `json:"actionType"`
	Description  string            `json:"description"`
	Reasoning    string            `json:"reasoning"`
	RequestedBy  string            `json:"requestedBy"`
	RequestedAt  time.Time         `json:"requestedAt"`
	Status       ApprovalStatus    `json:"status"`
	DenialReason string            `json:"denialReason,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ApprovalToken is time-bounded proof that a specific request was approved.
// Immutable once created.
type ApprovalToken struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"requestId"`
	ApprovedBy string    `json:"approvedBy"`
	ApprovedAt time.Time `json:"approvedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the token has lapsed at the given instant.
func (t ApprovalToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// AuditEntry is one immutable record in the append-only audit trail.
type AuditEntry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Action        string         `json:"action"`
	Actor         string         `json:"actor"`
	Target        string         `json:"target,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
}
