package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/metrics"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// Collection is where audit entries live. It uses the reserved system
// namespace; modules cannot reach it through their namespaced views.
const Collection = storage.SystemNamespace + "::audit"

// Well-known audit actions recorded by the approval gate.
const (
	ActionRequested = "action.requested"
	ActionApproved  = "action.approved"
	ActionDenied    = "action.denied"
	ActionExpired   = "action.expired"
	ActionExecuted  = "action.executed"
)

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Action        string
	Actor         string
	CorrelationID string
	Since         time.Time
	Until         time.Time
	Limit         int
}

// Log is the append-only audit trail.
type Log struct {
	store storage.Store
	clock scheduler.Clock

	mu  sync.Mutex
	seq uint64
}

// NewLog creates an audit log writing to the given root store.
func NewLog(store storage.Store, clock scheduler.Clock) (*Log, error) {
	if clock == nil {
		clock = scheduler.System
	}
	// Seed the append sequence; the trail is append-only, so the entry
	// count is also the next sequence number.
	n, err := store.Count(context.Background(), Collection)
	if err != nil {
		return nil, err
	}
	return &Log{store: store, clock: clock, seq: uint64(n)}, nil
}

// Record assigns the entry an id and timestamp and appends it. The
// returned entry is the persisted form.
func (l *Log) Record(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.ID = uuid.New().String()
	entry.Timestamp = l.clock.Now()

	// Keys are sequence-prefixed so List returns append order.
	key := fmt.Sprintf("%020d-%s", l.seq, entry.ID)
	if err := storage.SetJSON(ctx, l.store, Collection, key, entry); err != nil {
		return types.AuditEntry{}, err
	}
	l.seq++
	metrics.AuditWrites.Inc()
	return entry, nil
}

// Query scans the trail, applies the filter, and returns entries
// newest-first (ties resolve to the later-appended entry first).
func (l *Log) Query(ctx context.Context, f Filter) ([]types.AuditEntry, error) {
	raw, err := l.store.List(ctx, Collection, storage.ListOptions{Descending: true})
	if err != nil {
		return nil, err
	}

	entries := make([]types.AuditEntry, 0, len(raw))
	for _, e := range raw {
		var entry types.AuditEntry
		if err := json.Unmarshal(e.Value, &entry); err != nil {
			return nil, oerrors.Storage(err, "failed to decode audit entry %s", e.Key)
		}
		if f.Action != "" && entry.Action != f.Action {
			continue
		}
		if f.Actor != "" && entry.Actor != f.Actor {
			continue
		}
		if f.CorrelationID != "" && entry.CorrelationID != f.CorrelationID {
			continue
		}
		if !f.Since.IsZero() && entry.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && entry.Timestamp.After(f.Until) {
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries, nil
}
