package alerting

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ClassificationMethod selects the severity classification strategy
type ClassificationMethod string

const (
	MethodRuleBased   ClassificationMethod = "rule_based"
	MethodStatistical ClassificationMethod = "statistical"
	MethodHeuristic   ClassificationMethod = "heuristic"
	MethodHybrid      ClassificationMethod = "hybrid"
)

// Hybrid ensemble weights. Abstaining methods forfeit their weight, so a
// single confident method can still carry the vote.
const (
	hybridRuleWeight      = 0.4
	hybridStatWeight      = 0.3
	hybridHeuristicWeight = 0.3
)

// SeverityRule maps a metric condition to a severity vote
type SeverityRule struct {
	Metric     string        `json:"metric" yaml:"metric"`
	Comparison Comparison    `json:"comparison" yaml:"comparison"`
	Value      float64       `json:"value" yaml:"value"`
	Severity   AlertSeverity `json:"severity" yaml:"severity"`
	Weight     float64       `json:"weight" yaml:"weight"`
}

// Validate checks a severity rule definition
func (r *SeverityRule) Validate() []error {
	var errs []error
	if r.Metric == "" {
		errs = append(errs, fmt.Errorf("severity rule: metric is required"))
	}
	if !r.Comparison.Valid() {
		errs = append(errs, fmt.Errorf("severity rule %s: invalid comparison %q", r.Metric, r.Comparison))
	}
	if !r.Severity.Valid() {
		errs = append(errs, fmt.Errorf("severity rule %s: invalid severity %q", r.Metric, r.Severity))
	}
	if r.Weight <= 0 {
		errs = append(errs, fmt.Errorf("severity rule %s: weight must be positive", r.Metric))
	}
	return errs
}

// Classification is the outcome of one severity classification
type Classification struct {
	Severity   AlertSeverity        `json:"severity"`
	Confidence float64              `json:"confidence"`
	Method     ClassificationMethod `json:"method"`
	Reasoning  string               `json:"reasoning,omitempty"`
}

// SeverityClassifierConfig configures the severity classifier
type SeverityClassifierConfig struct {
	WindowSize    int                  `json:"window_size"`
	MinSamples    int                  `json:"min_samples"`
	DefaultMethod ClassificationMethod `json:"default_method"`
}

// DefaultSeverityClassifierConfig returns severity classifier defaults
func DefaultSeverityClassifierConfig() SeverityClassifierConfig {
	return SeverityClassifierConfig{
		WindowSize:    DefaultWindowSize,
		MinSamples:    10,
		DefaultMethod: MethodHybrid,
	}
}

// SeverityClassifier assigns severities to metric observations using
// operator rules, statistical context, heuristics, or a weighted ensemble
// of all three.
type SeverityClassifier struct {
	config  SeverityClassifierConfig
	history *metricHistory
	rules   map[string][]SeverityRule
	mu      sync.RWMutex
	logger  *logrus.Logger
}

// NewSeverityClassifier creates a severity classifier
func NewSeverityClassifier(config SeverityClassifierConfig, logger *logrus.Logger) *SeverityClassifier {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.MinSamples <= 0 {
		config.MinSamples = 10
	}
	if config.DefaultMethod == "" {
		config.DefaultMethod = MethodHybrid
	}
	return &SeverityClassifier{
		config:  config,
		history: newMetricHistory(config.WindowSize),
		rules:   make(map[string][]SeverityRule),
		logger:  logger,
	}
}

// AddRule registers a severity rule for its metric
func (sc *SeverityClassifier) AddRule(rule SeverityRule) error {
	if errs := rule.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid severity rule: %s", strings.Join(msgs, "; "))
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.rules[rule.Metric] = append(sc.rules[rule.Metric], rule)
	return nil
}

// Observe records a metric sample into the classifier's history
func (sc *SeverityClassifier) Observe(metric string, value float64, at time.Time) {
	sc.history.Observe(metric, value, at)
}

// Classify determines a severity for the observation using the requested
// method, falling back to the configured default when method is empty.
func (sc *SeverityClassifier) Classify(metric string, value float64, method ClassificationMethod) Classification {
	if method == "" {
		method = sc.config.DefaultMethod
	}
	switch method {
	case MethodRuleBased:
		return sc.classifyRuleBased(metric, value)
	case MethodStatistical:
		return sc.classifyStatistical(metric, value)
	case MethodHeuristic:
		return sc.classifyHeuristic(metric, value)
	case MethodHybrid:
		return sc.classifyHybrid(metric, value)
	}
	sc.logger.WithField("method", method).Warn("Unknown classification method, using hybrid")
	return sc.classifyHybrid(metric, value)
}

func (sc *SeverityClassifier) classifyRuleBased(metric string, value float64) Classification {
	sc.mu.RLock()
	rules := sc.rules[metric]
	sc.mu.RUnlock()

	votes := make(map[AlertSeverity]float64)
	matched := 0
	for _, rule := range rules {
		if rule.Comparison.Apply(value, rule.Value) {
			votes[rule.Severity] += rule.Weight
			matched++
		}
	}
	if matched == 0 {
		return Classification{
			Severity:  SeverityInfo,
			Method:    MethodRuleBased,
			Reasoning: "no severity rules matched",
		}
	}

	var winner AlertSeverity
	var topVote float64
	for sev, vote := range votes {
		if vote > topVote || (vote == topVote && sev.Rank() > winner.Rank()) {
			winner = sev
			topVote = vote
		}
	}
	return Classification{
		Severity:   winner,
		Confidence: math.Min(1, topVote/2),
		Method:     MethodRuleBased,
		Reasoning:  fmt.Sprintf("%d rule(s) matched with top vote %.2f", matched, topVote),
	}
}

func (sc *SeverityClassifier) classifyStatistical(metric string, value float64) Classification {
	values := sc.history.Values(metric)
	if len(values) < sc.config.MinSamples {
		return Classification{
			Severity:  SeverityInfo,
			Method:    MethodStatistical,
			Reasoning: "insufficient history",
		}
	}
	sd := stddev(values)
	if sd == 0 {
		return Classification{
			Severity:  SeverityInfo,
			Method:    MethodStatistical,
			Reasoning: "zero variance history",
		}
	}
	z := math.Abs(value-mean(values)) / sd
	severity, confidence := severityForDeviation(z)
	return Classification{
		Severity:   severity,
		Confidence: confidence,
		Method:     MethodStatistical,
		Reasoning:  fmt.Sprintf("z-score %.2f against %d samples", z, len(values)),
	}
}

func (sc *SeverityClassifier) classifyHeuristic(metric string, value float64) Classification {
	values := sc.history.Values(metric)
	if len(values) < sc.config.MinSamples {
		return Classification{
			Severity:  SeverityInfo,
			Method:    MethodHeuristic,
			Reasoning: "insufficient history",
		}
	}

	baseline := mean(values)
	var deviationRatio float64
	if baseline != 0 {
		deviationRatio = math.Abs(value-baseline) / math.Abs(baseline)
	}

	half := len(values) / 2
	older := mean(values[:half])
	recent := mean(values[half:])
	var trendDelta float64
	if older != 0 {
		trendDelta = math.Abs(recent-older) / math.Abs(older)
	}

	var volatility float64
	if baseline != 0 {
		volatility = stddev(values) / math.Abs(baseline)
	}

	score := 0.5*math.Min(1, deviationRatio) + 0.3*math.Min(1, trendDelta) + 0.2*math.Min(1, volatility)

	severity := SeverityInfo
	switch {
	case score > 0.8:
		severity = SeverityCritical
	case score > 0.6:
		severity = SeverityError
	case score > 0.4:
		severity = SeverityWarning
	}
	return Classification{
		Severity:   severity,
		Confidence: math.Min(1, score),
		Method:     MethodHeuristic,
		Reasoning:  fmt.Sprintf("heuristic score %.2f (deviation %.2f, trend %.2f, volatility %.2f)", score, deviationRatio, trendDelta, volatility),
	}
}

// classifyHybrid combines the three base methods with fixed weights. Methods
// with zero confidence abstain; the winner's confidence is normalized over
// the weights of only the methods that voted for it.
func (sc *SeverityClassifier) classifyHybrid(metric string, value float64) Classification {
	sub := []struct {
		weight float64
		result Classification
	}{
		{hybridRuleWeight, sc.classifyRuleBased(metric, value)},
		{hybridStatWeight, sc.classifyStatistical(metric, value)},
		{hybridHeuristicWeight, sc.classifyHeuristic(metric, value)},
	}

	votes := make(map[AlertSeverity]float64)
	weightFor := make(map[AlertSeverity]float64)
	var reasons []string
	voted := false
	for _, s := range sub {
		if s.result.Confidence <= 0 {
			continue
		}
		voted = true
		votes[s.result.Severity] += s.weight * s.result.Confidence
		weightFor[s.result.Severity] += s.weight
		reasons = append(reasons, fmt.Sprintf("%s=%s(%.2f)", s.result.Method, s.result.Severity, s.result.Confidence))
	}

	if !voted {
		return Classification{
			Severity:  SeverityInfo,
			Method:    MethodHybrid,
			Reasoning: "all methods abstained",
		}
	}

	var winner AlertSeverity
	var topVote float64
	for sev, vote := range votes {
		if vote > topVote || (vote == topVote && sev.Rank() > winner.Rank()) {
			winner = sev
			topVote = vote
		}
	}
	return Classification{
		Severity:   winner,
		Confidence: math.Min(1, topVote/weightFor[winner]),
		Method:     MethodHybrid,
		Reasoning:  strings.Join(reasons, ", "),
	}
}
