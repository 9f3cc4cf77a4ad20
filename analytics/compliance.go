/*
compliance.go - Portfolio Compliance Composer

PURPOSE:
  Blends alert severity, budget variance and outcome achievement into one
  0-100 score per grant, and a budget-weighted score for the portfolio. The
  formula is fixed and every input weight comes from ComplianceConfig, so a
  score can always be recomputed by hand and explained to a funder.

FORMULA:
  alert_penalty    = min(AlertCap, Ov*n_overdue + T30*n_tier30 + T60*n_tier60 + T90*n_tier90)
  variance_penalty = min(VarianceCap, max(0, |spent_percentage - 1| - VarianceTolerance) * VarianceRate)
                     (0 when spent_percentage is undefined)
  outcome_penalty  = min(OutcomeCap, n_falling_short / n_scored * OutcomeWeight)
                     (metrics with an undefined achievement are not scored; 0 when none are)
  score            = clamp(100 - (alert + variance + outcome), 0, 100), rounded to 2 places

  Each cap is at most 100, so no single dimension can push the score below
  zero on its own before the clamp.

PORTFOLIO:
  sum(score * total_budgeted) / sum(total_budgeted), rounded to 2 places.
  If every grant has a zero budget the unweighted mean is used. A portfolio
  with no grants has an undefined score.
*/
package analytics

import (
	"github.com/shopspring/decimal"
	"github.com/warp/grant-engine/grant"
)

// ScorePrecision is the number of decimal places scores are rounded to.
const ScorePrecision = 2

// ComplianceScore is the composite score of one grant with its breakdown.
type ComplianceScore struct {
	GrantID         grant.GrantID   `json:"grant_id"`
	GrantName       string          `json:"grant_name"`
	Score           decimal.Decimal `json:"score"`
	AlertPenalty    decimal.Decimal `json:"alert_penalty"`
	VariancePenalty decimal.Decimal `json:"variance_penalty"`
	OutcomePenalty  decimal.Decimal `json:"outcome_penalty"`
	Alerts          AlertCounts     `json:"alerts"`
	FallingShort    int             `json:"falling_short"`
	ScoredMetrics   int             `json:"scored_metrics"`
	Weight          decimal.Decimal `json:"weight"`
}

// PortfolioScore is the budget-weighted average of grant scores.
type PortfolioScore struct {
	Score       decimal.Decimal `json:"score"`
	Defined     bool            `json:"defined"`
	Weighted    bool            `json:"weighted"`
	GrantCount  int             `json:"grant_count"`
	TotalWeight decimal.Decimal `json:"total_weight"`
}

// ComposeGrant scores one grant from its derived records. alerts and
// outcomes must belong to the summary's grant.
func ComposeGrant(summary GrantFinancialSummary, alerts []ComplianceAlert, outcomes []OutcomeAssessment, cfg ComplianceConfig) ComplianceScore {
	counts := CountAlerts(alerts)
	alertPenalty := capAt(alertRaw(counts, cfg.AlertWeights), cfg.AlertCap)
	variancePenalty := variancePenalty(summary.SpentPercentage, cfg)

	var fallingShort, scored int
	for _, o := range outcomes {
		if o.Status == OutcomeUndefined {
			continue
		}
		scored++
		if o.Status == OutcomeFallingShort {
			fallingShort++
		}
	}
	outcomePenalty := decimal.Zero
	if scored > 0 {
		frac := decimal.NewFromInt(int64(fallingShort)).Div(decimal.NewFromInt(int64(scored)))
		outcomePenalty = capAt(frac.Mul(cfg.OutcomeWeight), cfg.OutcomeCap)
	}

	total := alertPenalty.Add(variancePenalty).Add(outcomePenalty)
	return ComplianceScore{
		GrantID:         summary.GrantID,
		GrantName:       summary.GrantName,
		Score:           clampScore(hundred.Sub(total)),
		AlertPenalty:    alertPenalty.Round(ScorePrecision),
		VariancePenalty: variancePenalty.Round(ScorePrecision),
		OutcomePenalty:  outcomePenalty.Round(ScorePrecision),
		Alerts:          counts,
		FallingShort:    fallingShort,
		ScoredMetrics:   scored,
		Weight:          summary.TotalBudgeted,
	}
}

func alertRaw(c AlertCounts, w AlertWeights) decimal.Decimal {
	n := func(i int) decimal.Decimal { return decimal.NewFromInt(int64(i)) }
	return w.Overdue.Mul(n(c.Overdue)).
		Add(w.Tier30.Mul(n(c.Tier30))).
		Add(w.Tier60.Mul(n(c.Tier60))).
		Add(w.Tier90.Mul(n(c.Tier90)))
}

func variancePenalty(spent grant.Ratio, cfg ComplianceConfig) decimal.Decimal {
	if !spent.Defined {
		return decimal.Zero
	}
	excess := spent.Value.Sub(decimal.NewFromInt(1)).Abs().Sub(cfg.VarianceTolerance)
	if !excess.IsPositive() {
		return decimal.Zero
	}
	return capAt(excess.Mul(cfg.VarianceRate), cfg.VarianceCap)
}

func capAt(v, limit decimal.Decimal) decimal.Decimal {
	return decimal.Min(v, limit)
}

func clampScore(v decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, decimal.Min(hundred, v)).Round(ScorePrecision)
}

// ComposePortfolio averages grant scores weighted by total_budgeted.
func ComposePortfolio(scores []ComplianceScore) PortfolioScore {
	p := PortfolioScore{GrantCount: len(scores)}
	if len(scores) == 0 {
		return p
	}
	p.Defined = true

	sum := decimal.Zero
	for _, s := range scores {
		if s.Weight.IsPositive() {
			p.TotalWeight = p.TotalWeight.Add(s.Weight)
			sum = sum.Add(s.Score.Mul(s.Weight))
		}
	}
	if p.TotalWeight.IsPositive() {
		p.Weighted = true
		p.Score = clampScore(sum.Div(p.TotalWeight))
		return p
	}

	for _, s := range scores {
		sum = sum.Add(s.Score)
	}
	p.Score = clampScore(sum.Div(decimal.NewFromInt(int64(len(scores)))))
	return p
}
