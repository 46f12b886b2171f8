package types

import "time"

// Wire-level payloads for the well-known event vocabulary. Each event
// type carries exactly one of these; the bus enforces the mapping.

// LogIngested is the payload of "log.ingested".
type LogIngested struct {
	Source     string            `json:"source"`
	Line       string            `json:"line"`
	LineNumber int               `json:"lineNumber,omitempty"`
	IngestedAt time.Time         `json:"ingestedAt"`
	Encoding   string            `json:"encoding,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IncidentCreated is the payload of "incident.created".
type IncidentCreated struct {
	IncidentID  string         `json:"incidentId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	DetectedBy  string         `json:"detectedBy"`
	SourceEvent string         `json:"sourceEvent,omitempty"`
	DetectedAt  time.Time      `json:"detectedAt"`
	Context     map[string]any `json:"context,omitempty"`
}

// IncidentUpdated is the payload of "incident.updated".
type IncidentUpdated struct {
	IncidentID string    `json:"incidentId"`
	Field      string    `json:"field"`
	OldValue   any       `json:"oldValue"`
	NewValue   any       `json:"newValue"`
	UpdatedBy  string    `json:"updatedBy"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IncidentStorm is the payload of "incident.storm".
type IncidentStorm struct {
	GroupID        string   `json:"groupId"`
	RootIncidentID string   `json:"rootIncidentId"`
	MemberCount    int      `json:"memberCount"`
	Severity       Severity `json:"severity"`
	Source         string   `json:"source"`
	TimeWindowMs   int64    `json:"timeWindowMs"`
	Titles         []string `json:"titles"`
}

// ActionProposed is the payload of "action.proposed": the full request.
type ActionProposed struct {
	Request ApprovalRequest `json:"request"`
}

// ActionApproved is the payload of "action.approved".
type ActionApproved struct {
	RequestID  string `json:"requestId"`
	TokenID    string `json:"tokenId"`
	ApprovedBy string `json:"approvedBy"`
}

// ActionExecuted is the payload of "action.executed".
type ActionExecuted struct {
	RequestID  string    `json:"requestId"`
	TokenID    string    `json:"tokenId"`
	ActionType string    `json:"actionType"`
	Result     string    `json:"result"` // success or failure
	Output     string    `json:"output,omitempty"`
	ExecutedBy string    `json:"executedBy"`
	ExecutedAt time.Time `json:"executedAt"`
}

// EnrichmentCompleted is the payload of "enrichment.completed".
type EnrichmentCompleted struct {
	IncidentID     string         `json:"incidentId"`
	EnricherModule string         `json:"enricherModule"`
	EnrichmentType string         `json:"enrichmentType"`
	Data           map[string]any `json:"data,omitempty"`
	CompletedAt    time.Time      `json:"completedAt"`
}

// ModuleLifecycle is the payload of "module.lifecycle".
type ModuleLifecycle struct {
	ModuleID string      `json:"moduleId"`
	State    ModuleState `json:"state"`
	Error    string      `json:"error,omitempty"`
}
