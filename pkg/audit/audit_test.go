package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

func newTestLog(t *testing.T) (*Log, *scheduler.FakeClock) {
	t.Helper()
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l, err := NewLog(storage.NewMemoryStore(), clock)
	require.NoError(t, err)
	return l, clock
}

func TestRecordAssignsIdentity(t *testing.T) {
	l, clock := newTestLog(t)
	ctx := context.Background()

	entry, err := l.Record(ctx, types.AuditEntry{Action: ActionRequested, Actor: "detector.threshold"})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, clock.Now(), entry.Timestamp)
}

func TestQueryNewestFirst(t *testing.T) {
	l, clock := newTestLog(t)
	ctx := context.Background()

	for _, action := range []string{ActionRequested, ActionApproved, ActionExecuted} {
		_, err := l.Record(ctx, types.AuditEntry{Action: action, Actor: "admin"})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	entries, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ActionExecuted, entries[0].Action)
	assert.Equal(t, ActionApproved, entries[1].Action)
	assert.Equal(t, ActionRequested, entries[2].Action)
}

func TestQueryFilters(t *testing.T) {
	l, clock := newTestLog(t)
	ctx := context.Background()

	start := clock.Now()
	_, err := l.Record(ctx, types.AuditEntry{Action: ActionRequested, Actor: "alice"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = l.Record(ctx, types.AuditEntry{Action: ActionApproved, Actor: "bob"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = l.Record(ctx, types.AuditEntry{Action: ActionDenied, Actor: "bob", CorrelationID: "corr-1"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: ActionApproved}, 1},
		{"by actor", Filter{Actor: "bob"}, 2},
		{"by correlation", Filter{CorrelationID: "corr-1"}, 1},
		{"by time range", Filter{Since: start.Add(30 * time.Second)}, 2},
		{"until excludes later", Filter{Until: start.Add(30 * time.Second)}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"no match", Filter{Actor: "mallory"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := l.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, entries, tt.want)
		})
	}
}

func TestTrailIsAppendOnly(t *testing.T) {
	l, clock := newTestLog(t)
	ctx := context.Background()

	first, err := l.Record(ctx, types.AuditEntry{Action: ActionRequested, Actor: "a"})
	require.NoError(t, err)

	clock.Advance(time.Second)
	for i := 0; i < 10; i++ {
		_, err := l.Record(ctx, types.AuditEntry{Action: ActionApproved, Actor: "b"})
		require.NoError(t, err)
	}

	entries, err := l.Query(ctx, Filter{Action: ActionRequested})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.ID, entries[0].ID)
}

func TestSequenceSurvivesReopen(t *testing.T) {
	store := storage.NewMemoryStore()
	clock := scheduler.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	l1, err := NewLog(store, clock)
	require.NoError(t, err)
	_, err = l1.Record(ctx, types.AuditEntry{Action: ActionRequested, Actor: "a"})
	require.NoError(t, err)

	l2, err := NewLog(store, clock)
	require.NoError(t, err)
	_, err = l2.Record(ctx, types.AuditEntry{Action: ActionApproved, Actor: "b"})
	require.NoError(t, err)

	entries, err := l2.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
