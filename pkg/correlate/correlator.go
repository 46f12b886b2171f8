package correlate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/metrics"
	"github.com/ArcaneAIAutomation/opspilot/pkg/module"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/storage"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// ModuleID is the correlator's manifest id.
const ModuleID = "enricher.correlation"

// groupCollection is the module-namespaced collection holding groups.
const groupCollection = "groups"

// sourceMatchFactor relaxes the similarity threshold when an incident
// and a group share a source.
const sourceMatchFactor = 0.7

func init() {
	module.RegisterFactory(ModuleID, func() (module.Module, error) {
		return New(), nil
	})
}

type config struct {
	similarityThreshold float64
	stormThreshold      int
	timeWindow          time.Duration
	maxGroups           int
	maxGroupSize        int
	groupTTL            time.Duration
}

// Correlator is the correlation engine module.
type Correlator struct {
	mu    sync.Mutex
	mc    *module.Context
	clock scheduler.Clock
	cfg   config

	// groups holds the active working set in stable creation order;
	// candidate scans iterate it front to back so score ties resolve
	// to the oldest group.
	groups []*Group

	sub         *events.Subscription
	cancelSweep func()
}

// New creates an uninitialized correlator.
func New() *Correlator {
	return &Correlator{clock: scheduler.System}
}

func (c *Correlator) Manifest() types.Manifest {
	return types.Manifest{
		ID:          ModuleID,
		Version:     "1.0.0",
		Category:    types.CategoryEnricher,
		Description: "Groups related incidents by keyword similarity and flags incident storms",
		ConfigSchema: map[string]types.FieldSpec{
			"similarityThreshold": {Type: "float", Default: 0.3},
			"stormThreshold":      {Type: "int", Default: 5},
			"timeWindow":          {Type: "duration", Default: "5m"},
			"maxGroups":           {Type: "int", Default: 100},
			"maxGroupSize":        {Type: "int", Default: 50},
			"groupTTL":            {Type: "duration", Default: "30m"},
		},
	}
}

func (c *Correlator) Initialize(ctx context.Context, mc *module.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mc = mc
	c.clock = mc.Scheduler.Clock()
	c.cfg = config{
		similarityThreshold: mc.ConfigFloat("similarityThreshold", 0.3),
		stormThreshold:      mc.ConfigInt("stormThreshold", 5),
		maxGroups:           mc.ConfigInt("maxGroups", 100),
		maxGroupSize:        mc.ConfigInt("maxGroupSize", 50),
	}
	c.cfg.timeWindow, _ = time.ParseDuration(mc.ConfigString("timeWindow", "5m"))
	c.cfg.groupTTL, _ = time.ParseDuration(mc.ConfigString("groupTTL", "30m"))

	c.loadGroups(ctx)
	return nil
}

// loadGroups restores the last persisted working set. Best effort: a
// restart reports last-known groups, it does not replay incidents.
func (c *Correlator) loadGroups(ctx context.Context) {
	entries, err := c.mc.Store.List(ctx, groupCollection, storage.ListOptions{})
	if err != nil {
		c.mc.Logger.Warn().Err(err).Msg("failed to load persisted correlation groups")
		return
	}
	for _, e := range entries {
		var g Group
		if err := storage.GetJSON(ctx, c.mc.Store, groupCollection, e.Key, &g); err != nil {
			c.mc.Logger.Warn().Err(err).Str("group", e.Key).Msg("skipping unreadable correlation group")
			continue
		}
		g.thaw()
		c.groups = append(c.groups, &g)
	}
	// Creation order is the iteration contract.
	sort.Slice(c.groups, func(i, j int) bool {
		return c.groups[i].CreatedAt.Before(c.groups[j].CreatedAt)
	})
	metrics.ActiveGroups.Set(float64(len(c.groups)))
}

func (c *Correlator) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sub = c.mc.Bus.Subscribe(events.EventIncidentCreated, c.handleIncident)

	interval := c.cfg.groupTTL / 4
	if interval > time.Minute || interval <= 0 {
		interval = time.Minute
	}
	c.cancelSweep = c.mc.Scheduler.Every("correlation-sweep", interval, c.sweep)
	return nil
}

func (c *Correlator) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.cancelSweep != nil {
		c.cancelSweep()
		c.cancelSweep = nil
	}
	return nil
}

func (c *Correlator) Destroy(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = nil
	return nil
}

func (c *Correlator) Health(context.Context) types.Health {
	c.mu.Lock()
	active := len(c.groups)
	c.mu.Unlock()
	return types.Health{
		Status:    types.Healthy,
		Details:   map[string]any{"activeGroups": active},
		CheckedAt: c.clock.Now(),
	}
}

func (c *Correlator) handleIncident(env events.Envelope) error {
	incident, ok := env.Payload.(types.IncidentCreated)
	if !ok {
		return errors.New("unexpected payload for incident.created")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	tokens := tokenize(incident.Title + " " + incident.Description)
	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = incident.IncidentID
	}

	if group := c.bestMatch(now, tokens, incident.SourceEvent); group != nil {
		c.join(group, incident, tokens, now, correlationID)
		return nil
	}
	c.seed(incident, tokens, now)
	return nil
}

// bestMatch scans active groups in creation order and returns the one
// with the highest similarity meeting its effective threshold, or nil.
// A strict > comparison keeps the first-encountered group on ties.
func (c *Correlator) bestMatch(now time.Time, tokens map[string]struct{}, source string) *Group {
	var (
		best      *Group
		bestScore float64
	)
	for _, g := range c.groups {
		if !g.recent(now, c.cfg.timeWindow) {
			continue
		}
		threshold := c.cfg.similarityThreshold
		if source != "" && source == g.Source {
			threshold *= sourceMatchFactor
		}
		score := jaccard(tokens, g.Tokens)
		if score < threshold {
			continue
		}
		if g.full(c.cfg.maxGroupSize) {
			c.mc.Logger.Warn().Str("group", g.ID).Float64("score", score).
				Int("members", len(g.MemberIDs)).Msg("matching correlation group is at capacity")
			continue
		}
		if score > bestScore {
			best = g
			bestScore = score
		}
	}
	return best
}

func (c *Correlator) join(g *Group, incident types.IncidentCreated, tokens map[string]struct{}, now time.Time, correlationID string) {
	g.MemberIDs = append(g.MemberIDs, incident.IncidentID)
	g.Titles = append(g.Titles, incident.Title)
	union(g.Tokens, tokens)
	g.LastActivityAt = now
	metrics.IncidentsGrouped.Inc()

	storm := false
	if !g.StormEmitted && len(g.MemberIDs) >= c.cfg.stormThreshold {
		g.StormEmitted = true
		storm = true
	}
	c.persist(g)

	c.publish(events.Envelope{
		Type:          events.EventEnrichmentCompleted,
		Source:        ModuleID,
		CorrelationID: correlationID,
		Payload: types.EnrichmentCompleted{
			IncidentID:     incident.IncidentID,
			EnricherModule: ModuleID,
			EnrichmentType: "correlation",
			Data: map[string]any{
				"groupId":        g.ID,
				"rootIncidentId": g.RootIncidentID,
				"memberCount":    len(g.MemberIDs),
				"storm":          g.StormEmitted,
			},
			CompletedAt: now,
		},
	})

	if storm {
		metrics.StormsEmitted.Inc()
		titles := make([]string, len(g.Titles))
		copy(titles, g.Titles)
		c.publish(events.Envelope{
			Type:          events.EventIncidentStorm,
			Source:        ModuleID,
			CorrelationID: correlationID,
			Payload: types.IncidentStorm{
				GroupID:        g.ID,
				RootIncidentID: g.RootIncidentID,
				MemberCount:    len(g.MemberIDs),
				Severity:       g.Severity,
				Source:         g.Source,
				TimeWindowMs:   c.cfg.timeWindow.Milliseconds(),
				Titles:         titles,
			},
		})
	}
}

func (c *Correlator) seed(incident types.IncidentCreated, tokens map[string]struct{}, now time.Time) {
	if len(c.groups) >= c.cfg.maxGroups {
		c.evictOldest()
	}
	g := &Group{
		ID:             uuid.New().String(),
		RootIncidentID: incident.IncidentID,
		MemberIDs:      []string{incident.IncidentID},
		Titles:         []string{incident.Title},
		Source:         incident.SourceEvent,
		Severity:       incident.Severity,
		CreatedAt:      now,
		LastActivityAt: now,
		Tokens:         tokens,
	}
	c.groups = append(c.groups, g)
	c.persist(g)
	metrics.ActiveGroups.Set(float64(len(c.groups)))
}

// evictOldest drops the group with the oldest activity.
func (c *Correlator) evictOldest() {
	if len(c.groups) == 0 {
		return
	}
	oldest := 0
	for i, g := range c.groups {
		if g.LastActivityAt.Before(c.groups[oldest].LastActivityAt) {
			oldest = i
		}
	}
	c.remove(oldest)
}

func (c *Correlator) remove(i int) {
	g := c.groups[i]
	c.groups = append(c.groups[:i], c.groups[i+1:]...)
	if _, err := c.mc.Store.Delete(context.Background(), groupCollection, g.ID); err != nil {
		c.mc.Logger.Warn().Err(err).Str("group", g.ID).Msg("failed to delete persisted group")
	}
	metrics.ActiveGroups.Set(float64(len(c.groups)))
}

// sweep removes groups idle past the TTL. Runs on the shared scheduler.
func (c *Correlator) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for i := len(c.groups) - 1; i >= 0; i-- {
		if now.Sub(c.groups[i].LastActivityAt) > c.cfg.groupTTL {
			c.mc.Logger.Debug().Str("group", c.groups[i].ID).Msg("expiring idle correlation group")
			c.remove(i)
		}
	}
}

func (c *Correlator) persist(g *Group) {
	g.freeze()
	if err := storage.SetJSON(context.Background(), c.mc.Store, groupCollection, g.ID, g); err != nil {
		c.mc.Logger.Warn().Err(err).Str("group", g.ID).Msg("failed to persist correlation group")
	}
}

// publish is fire-and-forget: subscriber failure never blocks group
// state.
func (c *Correlator) publish(env events.Envelope) {
	if err := c.mc.Bus.Publish(env); err != nil {
		c.mc.Logger.Error().Err(err).Str("event", string(env.Type)).Msg("failed to publish correlation event")
	}
}
