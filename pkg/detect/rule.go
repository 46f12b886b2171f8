package detect

import (
	"fmt"
	"regexp"
	"time"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// sample is one extracted metric observation.
type sample struct {
	at    time.Time
	value float64
}

// rule is a compiled detector rule with its sliding window.
type rule struct {
	id          string
	metricRe    *regexp.Regexp
	valueRe     *regexp.Regexp
	threshold   float64
	op          string
	window      time.Duration
	minSamples  int
	severity    types.Severity
	titleTmpl   string
	descTmpl    string
	cooldown    time.Duration
	samples     []sample
	lastFiredAt time.Time
	hasFired    bool
}

// compileRule turns one rule's raw config map into its compiled form.
// Invalid regexes, operators, and severities fail here so the module
// never carries a half-usable rule into Start.
func compileRule(raw map[string]any) (*rule, error) {
	str := func(key, fallback string) string {
		if v, ok := raw[key].(string); ok {
			return v
		}
		return fallback
	}

	id := str("id", "")
	if id == "" {
		return nil, oerrors.Configf("detector rule is missing an id")
	}

	metricRe, err := regexp.Compile(str("metricRegex", ""))
	if err != nil {
		return nil, oerrors.Configf("detector rule %s: invalid metric regex: %v", id, err)
	}
	valueRe, err := regexp.Compile(str("valueRegex", ""))
	if err != nil {
		return nil, oerrors.Configf("detector rule %s: invalid value regex: %v", id, err)
	}
	if valueRe.NumSubexp() != 1 {
		return nil, oerrors.Configf("detector rule %s: value regex must have exactly one capture group", id)
	}

	op := str("op", ">")
	switch op {
	case "<", "<=", ">", ">=", "=":
	default:
		return nil, oerrors.Configf("detector rule %s: unknown comparison operator %q", id, op)
	}

	severity := types.Severity(str("severity", string(types.SeverityWarning)))
	switch severity {
	case types.SeverityInfo, types.SeverityWarning, types.SeverityCritical:
	default:
		return nil, oerrors.Configf("detector rule %s: unknown severity %q", id, severity)
	}

	window, err := time.ParseDuration(str("window", "60s"))
	if err != nil {
		return nil, oerrors.Configf("detector rule %s: invalid window: %v", id, err)
	}
	cooldown, err := time.ParseDuration(str("cooldown", "60s"))
	if err != nil {
		return nil, oerrors.Configf("detector rule %s: invalid cooldown: %v", id, err)
	}

	return &rule{
		id:         id,
		metricRe:   metricRe,
		valueRe:    valueRe,
		threshold:  number(raw["threshold"], 0),
		op:         op,
		window:     window,
		minSamples: int(number(raw["minSamples"], 3)),
		severity:   severity,
		titleTmpl:  str("title", fmt.Sprintf("Threshold breach: %s", id)),
		descTmpl:   str("description", ""),
		cooldown:   cooldown,
	}, nil
}

// number coerces the numeric types YAML and JSON decoding produce.
func number(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return fallback
}

// observe appends a sample and prunes everything older than the window.
func (r *rule) observe(now time.Time, value float64) {
	r.samples = append(r.samples, sample{at: now, value: value})
	cutoff := now.Add(-r.window)
	retained := r.samples[:0]
	for _, s := range r.samples {
		if s.at.After(cutoff) {
			retained = append(retained, s)
		}
	}
	r.samples = retained
}

// breaches reports whether value satisfies the rule's comparison.
func (r *rule) breaches(value float64) bool {
	switch r.op {
	case "<":
		return value < r.threshold
	case "<=":
		return value <= r.threshold
	case ">":
		return value > r.threshold
	case ">=":
		return value >= r.threshold
	case "=":
		return value == r.threshold
	}
	return false
}

// sustained reports whether the retained window holds at least
// minSamples samples and at least minSamples of them breach.
func (r *rule) sustained() bool {
	if len(r.samples) < r.minSamples {
		return false
	}
	breaching := 0
	for _, s := range r.samples {
		if r.breaches(s.value) {
			breaching++
		}
	}
	return breaching >= r.minSamples
}

// coolingDown reports whether the rule fired within its cooldown.
func (r *rule) coolingDown(now time.Time) bool {
	return r.hasFired && now.Sub(r.lastFiredAt) < r.cooldown
}

// latest returns the newest sample value.
func (r *rule) latest() float64 {
	if len(r.samples) == 0 {
		return 0
	}
	return r.samples[len(r.samples)-1].value
}

// average returns the mean over retained samples.
func (r *rule) average() float64 {
	if len(r.samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range r.samples {
		sum += s.value
	}
	return sum / float64(len(r.samples))
}
