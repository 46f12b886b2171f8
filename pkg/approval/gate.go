package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ArcaneAIAutomation/opspilot/pkg/audit"
	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/metrics"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

const (
	// RequestCollection holds requests by id.
	RequestCollection = storage.SystemNamespace + "::approval_requests"
	// TokenCollection holds tokens by id.
	TokenCollection = storage.SystemNamespace + "::approval_tokens"

	// TokenTTL is how long an approval stays actionable.
	TokenTTL = 15 * time.Minute

	// tokenIDKey is the request metadata key linking to its token.
	tokenIDKey = "tokenId"
)

// Gate is the approval state machine. Transitions serialize on a
// process-wide mutex; the runtime is single-process, so storage
// backends never see concurrent read-modify-write on a request.
type Gate struct {
	store  storage.Store
	audit  *audit.Log
	bus    *events.Bus
	clock  scheduler.Clock
	logger zerolog.Logger

	mu sync.Mutex
}

// NewGate wires the gate to its storage, audit trail, and event bus.
func NewGate(store storage.Store, auditLog *audit.Log, bus *events.Bus, clock scheduler.Clock, logger zerolog.Logger) *Gate {
	if clock == nil {
		clock = scheduler.System
	}
	return &Gate{store: store, audit: auditLog, bus: bus, clock: clock, logger: logger}
}

// Request records a proposed action as pending, audits it, publishes
// action.proposed, and returns the full record.
func (g *Gate) Request(ctx context.Context, req types.ApprovalRequest) (types.ApprovalRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req.ID = uuid.New().String()
	req.RequestedAt = g.clock.Now()
	req.Status = types.ApprovalPending
	req.DenialReason = ""

	if err := storage.SetJSON(ctx, g.store, RequestCollection, req.ID, req); err != nil {
		return types.ApprovalRequest{}, err
	}

	if err := g.recordAudit(ctx, audit.ActionRequested, req.RequestedBy, req); err != nil {
		// No unaudited request may remain on disk.
		if _, derr := g.store.Delete(ctx, RequestCollection, req.ID); derr != nil {
			g.logger.Error().Err(derr).Str("request", req.ID).Msg("failed to roll back unaudited request")
		}
		return types.ApprovalRequest{}, err
	}

	g.publish(events.EventActionProposed, req.ID, types.ActionProposed{Request: req})
	return req, nil
}

// Approve transitions a pending request to approved and returns a
// fresh token with a fixed TTL.
func (g *Gate) Approve(ctx context.Context, requestID, approvedBy string) (types.ApprovalToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, err := g.load(ctx, requestID)
	if err != nil {
		return types.ApprovalToken{}, err
	}
	if req.Status != types.ApprovalPending {
		return types.ApprovalToken{}, oerrors.Securityf(
			"cannot approve request %s: status is %q, not %q", requestID, req.Status, types.ApprovalPending)
	}

	now := g.clock.Now()
	token := types.ApprovalToken{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		ApprovedBy: approvedBy,
		ApprovedAt: now,
		ExpiresAt:  now.Add(TokenTTL),
	}

	prior := req
	req.Status = types.ApprovalApproved
	// Cloned so rolling back to prior does not carry the token link.
	meta := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta[tokenIDKey] = token.ID
	req.Metadata = meta

	if err := storage.SetJSON(ctx, g.store, TokenCollection, token.ID, token); err != nil {
		return types.ApprovalToken{}, err
	}
	if err := storage.SetJSON(ctx, g.store, RequestCollection, req.ID, req); err != nil {
		if _, derr := g.store.Delete(ctx, TokenCollection, token.ID); derr != nil {
			g.logger.Error().Err(derr).Str("token", token.ID).Msg("failed to roll back orphaned token")
		}
		return types.ApprovalToken{}, err
	}

	if err := g.recordAudit(ctx, audit.ActionApproved, approvedBy, req); err != nil {
		// No unaudited approval may remain on disk, and no token a
		// failed approval minted may validate.
		g.rollback(ctx, prior, token.ID)
		return types.ApprovalToken{}, err
	}

	metrics.ApprovalDecisions.WithLabelValues("approved").Inc()
	g.publish(events.EventActionApproved, req.ID, types.ActionApproved{
		RequestID:  req.ID,
		TokenID:    token.ID,
		ApprovedBy: approvedBy,
	})
	return token, nil
}

// Deny transitions a pending request to denied with an optional reason.
func (g *Gate) Deny(ctx context.Context, requestID, deniedBy, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, err := g.load(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != types.ApprovalPending {
		return oerrors.Securityf(
			"cannot deny request %s: status is %q, not %q", requestID, req.Status, types.ApprovalPending)
	}

	prior := req
	req.Status = types.ApprovalDenied
	req.DenialReason = reason
	if err := storage.SetJSON(ctx, g.store, RequestCollection, req.ID, req); err != nil {
		return err
	}

	if err := g.recordAudit(ctx, audit.ActionDenied, deniedBy, req); err != nil {
		// No unaudited denial may remain on disk.
		g.rollback(ctx, prior, "")
		return err
	}
	metrics.ApprovalDecisions.WithLabelValues("denied").Inc()
	return nil
}

// Status returns the request's current status. Approved requests whose
// token has lapsed are transitioned to expired as a side effect before
// returning; Peek is the pure variant.
func (g *Gate) Status(ctx context.Context, requestID string) (types.ApprovalStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, err := g.load(ctx, requestID)
	if err != nil {
		return "", err
	}
	if req.Status != types.ApprovalApproved {
		return req.Status, nil
	}

	token, err := g.tokenFor(ctx, req)
	if err != nil {
		return "", err
	}
	if token != nil && !token.Expired(g.clock.Now()) {
		return req.Status, nil
	}

	prior := req
	req.Status = types.ApprovalExpired
	if err := storage.SetJSON(ctx, g.store, RequestCollection, req.ID, req); err != nil {
		return "", err
	}
	if err := g.recordAudit(ctx, audit.ActionExpired, "system", req); err != nil {
		// No unaudited expiry may remain on disk; the next Status call
		// reconciles again.
		g.rollback(ctx, prior, "")
		return "", err
	}
	metrics.ApprovalDecisions.WithLabelValues("expired").Inc()
	return req.Status, nil
}

// Peek returns the persisted status without reconciling expiry.
func (g *Gate) Peek(ctx context.Context, requestID string) (types.ApprovalStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, err := g.load(ctx, requestID)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// Get returns the full request record.
func (g *Gate) Get(ctx context.Context, requestID string) (types.ApprovalRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load(ctx, requestID)
}

// Validate reports whether token is good: it exists in storage, it
// references the same request it claims to, the stored expiry is in
// the future, and the referenced request is still approved.
func (g *Gate) Validate(ctx context.Context, token types.ApprovalToken) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var stored types.ApprovalToken
	if err := storage.GetJSON(ctx, g.store, TokenCollection, token.ID, &stored); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if stored.RequestID != token.RequestID {
		return false, nil
	}
	if stored.Expired(g.clock.Now()) {
		return false, nil
	}

	req, err := g.load(ctx, stored.RequestID)
	if err != nil {
		if oerrors.IsKind(err, oerrors.KindSecurity) {
			return false, nil
		}
		return false, err
	}
	return req.Status == types.ApprovalApproved, nil
}

// List returns requests with the given status, or all when status is
// empty, ordered by id.
func (g *Gate) List(ctx context.Context, status types.ApprovalStatus) ([]types.ApprovalRequest, error) {
	entries, err := g.store.List(ctx, RequestCollection, storage.ListOptions{})
	if err != nil {
		return nil, err
	}
	var out []types.ApprovalRequest
	for _, e := range entries {
		var req types.ApprovalRequest
		if err := storage.GetJSON(ctx, g.store, RequestCollection, e.Key, &req); err != nil {
			return nil, err
		}
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (g *Gate) load(ctx context.Context, requestID string) (types.ApprovalRequest, error) {
	var req types.ApprovalRequest
	err := storage.GetJSON(ctx, g.store, RequestCollection, requestID, &req)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.ApprovalRequest{}, oerrors.Securityf("approval request %s not found", requestID)
		}
		return types.ApprovalRequest{}, err
	}
	return req, nil
}

// tokenFor loads the token minted for an approved request. A missing
// token is treated as expired, not as an error.
func (g *Gate) tokenFor(ctx context.Context, req types.ApprovalRequest) (*types.ApprovalToken, error) {
	tokenID := req.Metadata[tokenIDKey]
	if tokenID == "" {
		return nil, nil
	}
	var token types.ApprovalToken
	if err := storage.GetJSON(ctx, g.store, TokenCollection, tokenID, &token); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// rollback restores a request to its pre-transition record after a
// failed audit write, deleting the minted token if any. Restoration
// failures are logged; the original audit error still propagates.
func (g *Gate) rollback(ctx context.Context, prior types.ApprovalRequest, tokenID string) {
	if tokenID != "" {
		if _, err := g.store.Delete(ctx, TokenCollection, tokenID); err != nil {
			g.logger.Error().Err(err).Str("token", tokenID).Msg("failed to roll back unaudited token")
		}
	}
	if err := storage.SetJSON(ctx, g.store, RequestCollection, prior.ID, prior); err != nil {
		g.logger.Error().Err(err).Str("request", prior.ID).Msg("failed to roll back unaudited transition")
	}
}

func (g *Gate) recordAudit(ctx context.Context, action, actor string, req types.ApprovalRequest) error {
	_, err := g.audit.Record(ctx, types.AuditEntry{
		Action: action,
		Actor:  actor,
		Target: req.ID,
		Details: map[string]any{
			"actionType": req.ActionType,
			"status":     string(req.Status),
		},
		CorrelationID: req.ID,
	})
	return err
}

// publish emits gate events best-effort: the transition is already
// durable and audited, so a delivery problem is logged, not raised.
func (g *Gate) publish(eventType events.EventType, requestID string, payload any) {
	err := g.bus.Publish(events.Envelope{
		Type:          eventType,
		Source:        "approval-gate",
		CorrelationID: requestID,
		Payload:       payload,
	})
	if err != nil {
		g.logger.Error().Err(err).Str("event", string(eventType)).Msg("failed to publish approval event")
	}
}
