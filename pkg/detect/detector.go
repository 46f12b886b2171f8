package detect

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/events"
	"github.com/ArcaneAIAutomation/opspilot/pkg/metrics"
	"github.com/ArcaneAIAutomation/opspilot/pkg/module"
	"github.com/ArcaneAIAutomation/opspilot/pkg/ratelimit"
	"github.com/ArcaneAIAutomation/opspilot/pkg/scheduler"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// ModuleID is the detector's manifest id.
const ModuleID = "detector.threshold"

func init() {
	module.RegisterFactory(ModuleID, func() (module.Module, error) {
		return New(), nil
	})
}

// Detector is the threshold detector module.
type Detector struct {
	mu    sync.Mutex
	mc    *module.Context
	clock scheduler.Clock

	rules   []*rule
	limiter *ratelimit.Limiter

	sub           *events.Subscription
	cancelCleanup func()
}

// New creates an uninitialized detector.
func New() *Detector {
	return &Detector{clock: scheduler.System}
}

func (d *Detector) Manifest() types.Manifest {
	return types.Manifest{
		ID:          ModuleID,
		Version:     "1.0.0",
		Category:    types.CategoryDetector,
		Description: "Emits incidents when log-extracted metrics sustain a threshold breach",
		ConfigSchema: map[string]types.FieldSpec{
			"rules":                 {Type: "list", Required: true},
			"maxIncidentsPerMinute": {Type: "int", Default: 10},
		},
	}
}

func (d *Detector) Initialize(ctx context.Context, mc *module.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mc = mc
	d.clock = mc.Scheduler.Clock()

	rawRules, _ := mc.Config["rules"].([]any)
	if len(rawRules) == 0 {
		return oerrors.Configf("detector has no rules configured")
	}
	seen := make(map[string]bool, len(rawRules))
	for _, raw := range rawRules {
		m, ok := raw.(map[string]any)
		if !ok {
			return oerrors.Configf("detector rule entries must be maps, got %T", raw)
		}
		r, err := compileRule(m)
		if err != nil {
			return err
		}
		if seen[r.id] {
			return oerrors.Configf("detector rule id %q appears twice", r.id)
		}
		seen[r.id] = true
		d.rules = append(d.rules, r)
	}

	d.limiter = ratelimit.NewLimiter(mc.ConfigInt("maxIncidentsPerMinute", 10), time.Minute, d.clock)
	return nil
}

func (d *Detector) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sub = d.mc.Bus.Subscribe(events.EventLogIngested, d.handleLine)
	d.cancelCleanup = d.mc.Scheduler.Every("detector-ratelimit-cleanup", time.Minute, d.limiter.Cleanup)
	return nil
}

func (d *Detector) Stop(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sub != nil {
		d.sub.Unsubscribe()
		d.sub = nil
	}
	if d.cancelCleanup != nil {
		d.cancelCleanup()
		d.cancelCleanup = nil
	}
	return nil
}

func (d *Detector) Destroy(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rules = nil
	return nil
}

func (d *Detector) Health(context.Context) types.Health {
	d.mu.Lock()
	ruleCount := len(d.rules)
	d.mu.Unlock()
	return types.Health{
		Status:    types.Healthy,
		Details:   map[string]any{"rules": ruleCount},
		CheckedAt: d.clock.Now(),
	}
}

func (d *Detector) handleLine(env events.Envelope) error {
	ingested, ok := env.Payload.(types.LogIngested)
	if !ok {
		return errors.New("unexpected payload for log.ingested")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	for _, r := range d.rules {
		d.evaluate(r, ingested, env.CorrelationID, now)
	}
	return nil
}

// evaluate runs one rule against one line: extract, window, sustain,
// cooldown, rate limit, fire.
func (d *Detector) evaluate(r *rule, ingested types.LogIngested, correlationID string, now time.Time) {
	if !r.metricRe.MatchString(ingested.Line) {
		return
	}
	match := r.valueRe.FindStringSubmatch(ingested.Line)
	if len(match) < 2 {
		return
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return
	}

	r.observe(now, value)
	if !r.sustained() {
		return
	}
	if r.coolingDown(now) {
		metrics.SuppressedByCooldown.WithLabelValues(r.id).Inc()
		return
	}
	if decision := d.limiter.TryAcquire(""); !decision.Allowed {
		metrics.SuppressedByRateLimit.WithLabelValues(r.id).Inc()
		d.mc.Logger.Warn().Str("rule", r.id).Time("resetAt", decision.ResetAt).
			Msg("incident suppressed by rate limit")
		return
	}

	r.lastFiredAt = now
	r.hasFired = true
	metrics.IncidentsCreated.WithLabelValues(r.id).Inc()

	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	incident := types.IncidentCreated{
		IncidentID:  uuid.New().String(),
		Title:       renderTemplate(r.titleTmpl, r, value),
		Description: renderTemplate(r.descTmpl, r, value),
		Severity:    r.severity,
		DetectedBy:  ModuleID,
		SourceEvent: ingested.Source,
		DetectedAt:  now,
		Context: map[string]any{
			"rule":         r.id,
			"threshold":    r.threshold,
			"latestValue":  r.latest(),
			"averageValue": r.average(),
			"sampleCount":  len(r.samples),
		},
	}

	err = d.mc.Bus.Publish(events.Envelope{
		Type:          events.EventIncidentCreated,
		Source:        ModuleID,
		CorrelationID: correlationID,
		Payload:       incident,
	})
	if err != nil {
		d.mc.Logger.Error().Err(err).Str("rule", r.id).Msg("failed to publish incident")
	}
}

// renderTemplate substitutes the {{rule}}, {{value}}, and {{threshold}}
// placeholders.
func renderTemplate(tmpl string, r *rule, value float64) string {
	out := strings.ReplaceAll(tmpl, "{{rule}}", r.id)
	out = strings.ReplaceAll(out, "{{value}}", strconv.FormatFloat(value, 'f', -1, 64))
	out = strings.ReplaceAll(out, "{{threshold}}", strconv.FormatFloat(r.threshold, 'f', -1, 64))
	return out
}
