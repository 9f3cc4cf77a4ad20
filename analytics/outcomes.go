package analytics

import (
	"github.com/shopspring/decimal"
	"github.com/warp/grant-engine/grant"
)

// =============================================================================
// OUTCOME PERFORMANCE SCORER
// =============================================================================

type OutcomeStatus string

const (
	OutcomeFallingShort OutcomeStatus = "FallingShort"
	OutcomeOnTrack      OutcomeStatus = "OnTrack"
	OutcomeExceeding    OutcomeStatus = "Exceeding"
	OutcomeUndefined    OutcomeStatus = "Undefined"
)

// OutcomeAssessment is the derived achievement of one outcome metric.
//
// Higher current values are always treated as better. Lower-is-better metrics
// (e.g. cost per participant) are not supported and will be misclassified.
type OutcomeAssessment struct {
	GrantID      grant.GrantID   `json:"grant_id"`
	GrantName    string          `json:"grant_name"`
	MetricID     grant.MetricID  `json:"metric_id"`
	MetricName   string          `json:"metric_name"`
	TargetValue  decimal.Decimal `json:"target_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Unit         string          `json:"unit_of_measure"`
	Achievement  grant.Ratio     `json:"achievement_percentage"`
	Status       OutcomeStatus   `json:"status"`
}

// AssessOutcome scores one metric. Achievement is current/target, undefined
// when the target is zero.
func AssessOutcome(g grant.Grant, m grant.OutcomeMetric, cfg OutcomeConfig) OutcomeAssessment {
	a := OutcomeAssessment{
		GrantID:      g.ID,
		GrantName:    g.Name,
		MetricID:     m.ID,
		MetricName:   m.Name,
		TargetValue:  m.TargetValue,
		CurrentValue: m.CurrentValue,
		Unit:         m.Unit,
		Achievement:  grant.NewRatio(m.CurrentValue, m.TargetValue),
		Status:       OutcomeUndefined,
	}
	if m.TargetValue.IsZero() {
		return a
	}
	// Classify on the unrounded quotient so band edges are exact.
	a.Status = ClassifyAchievement(m.CurrentValue.Div(m.TargetValue), cfg)
	return a
}

// ClassifyAchievement maps a ratio onto the configured bands. Both edges of
// the OnTrack band are inclusive.
func ClassifyAchievement(ratio decimal.Decimal, cfg OutcomeConfig) OutcomeStatus {
	switch {
	case ratio.LessThan(cfg.OnTrackLower):
		return OutcomeFallingShort
	case ratio.GreaterThan(cfg.OnTrackUpper):
		return OutcomeExceeding
	default:
		return OutcomeOnTrack
	}
}

// AssessOutcomes scores every metric of one grant.
func AssessOutcomes(gr grant.GrantRecords, cfg OutcomeConfig) []OutcomeAssessment {
	out := make([]OutcomeAssessment, 0, len(gr.Metrics))
	for _, m := range gr.Metrics {
		out = append(out, AssessOutcome(gr.Grant, m, cfg))
	}
	return out
}
