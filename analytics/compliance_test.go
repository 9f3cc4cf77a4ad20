package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/grant/granttest"
)

// scoreGrant runs every stage for one fixture grant.
func scoreGrant(t *testing.T, id grant.GrantID, cfg Config) ComplianceScore {
	t.Helper()
	gr := groupOf(t, granttest.Portfolio(), id)
	return ComposeGrant(
		Summarize(gr, granttest.AsOf, cfg.Financial),
		ScanDeadlines(gr, granttest.AsOf, cfg.Deadlines),
		AssessOutcomes(gr, cfg.Outcomes),
		cfg.Compliance,
	)
}

func TestComposeGrant_Fixture(t *testing.T) {
	cfg := DefaultConfig()

	// 2 overdue, 1 tier30, 1 tier60 -> 27; 60% spent -> 30; 1 of 2 short -> 15
	g1 := scoreGrant(t, "G-001", cfg)
	assertDecimal(t, "27", g1.AlertPenalty)
	assertDecimal(t, "30", g1.VariancePenalty)
	assertDecimal(t, "15", g1.OutcomePenalty)
	assertDecimal(t, "28", g1.Score)
	assert.Equal(t, 2, g1.ScoredMetrics)
	assert.Equal(t, 1, g1.FallingShort)
	assertDecimal(t, "100000", g1.Weight)

	// 1 tier90 -> 1; 111% spent -> 1; nothing short -> 0
	g2 := scoreGrant(t, "G-002", cfg)
	assertDecimal(t, "1", g2.AlertPenalty)
	assertDecimal(t, "1", g2.VariancePenalty)
	assertDecimal(t, "0", g2.OutcomePenalty)
	assertDecimal(t, "98", g2.Score)
}

func TestComposeGrant_ClampsUnderAdversarialInput(t *testing.T) {
	// GIVEN: Caps at 100 on every dimension and a grant failing all of them
	cfg := DefaultConfig().Compliance
	cfg.AlertCap, cfg.VarianceCap, cfg.OutcomeCap = hundred, hundred, hundred
	cfg.OutcomeWeight = hundred

	alerts := make([]ComplianceAlert, 50)
	for i := range alerts {
		alerts[i] = ComplianceAlert{AlertType: AlertOverdue}
	}
	summary := GrantFinancialSummary{SpentPercentage: grant.Ratio{Value: dec("25"), Defined: true}}
	outcomes := []OutcomeAssessment{{Status: OutcomeFallingShort}}

	// WHEN: Composing
	s := ComposeGrant(summary, alerts, outcomes, cfg)

	// THEN: Each penalty is capped and the score never goes negative
	assertDecimal(t, "100", s.AlertPenalty)
	assertDecimal(t, "100", s.VariancePenalty)
	assertDecimal(t, "100", s.OutcomePenalty)
	assertDecimal(t, "0", s.Score)
}

func TestComposeGrant_DefaultCapsFloorAtZero(t *testing.T) {
	alerts := make([]ComplianceAlert, 10)
	for i := range alerts {
		alerts[i] = ComplianceAlert{AlertType: AlertOverdue}
	}
	summary := GrantFinancialSummary{SpentPercentage: grant.Ratio{Value: dec("0"), Defined: true}}
	outcomes := []OutcomeAssessment{{Status: OutcomeFallingShort}}

	s := ComposeGrant(summary, alerts, outcomes, DefaultConfig().Compliance)

	assertDecimal(t, "40", s.AlertPenalty)
	assertDecimal(t, "30", s.VariancePenalty)
	assertDecimal(t, "30", s.OutcomePenalty)
	assertDecimal(t, "0", s.Score)
}

func TestVariancePenalty(t *testing.T) {
	cfg := DefaultConfig().Compliance

	tests := []struct {
		name  string
		spent grant.Ratio
		want  string
	}{
		{"undefined", grant.Undefined, "0"},
		{"on budget", grant.Ratio{Value: dec("1"), Defined: true}, "0"},
		{"tolerance edge over", grant.Ratio{Value: dec("1.10"), Defined: true}, "0"},
		{"tolerance edge under", grant.Ratio{Value: dec("0.90"), Defined: true}, "0"},
		{"just over tolerance", grant.Ratio{Value: dec("1.15"), Defined: true}, "5"},
		{"capped", grant.Ratio{Value: dec("3"), Defined: true}, "30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.want, variancePenalty(tt.spent, cfg))
		})
	}
}

func TestComposeGrant_NoScoredMetrics(t *testing.T) {
	outcomes := []OutcomeAssessment{{Status: OutcomeUndefined}}

	s := ComposeGrant(GrantFinancialSummary{}, nil, outcomes, DefaultConfig().Compliance)

	assertDecimal(t, "0", s.OutcomePenalty)
	assertDecimal(t, "100", s.Score)
	assert.Equal(t, 0, s.ScoredMetrics)
}

func TestComposePortfolio(t *testing.T) {
	t.Run("budget weighted", func(t *testing.T) {
		cfg := DefaultConfig()
		p := ComposePortfolio([]ComplianceScore{scoreGrant(t, "G-001", cfg), scoreGrant(t, "G-002", cfg)})

		assert.True(t, p.Defined)
		assert.True(t, p.Weighted)
		assert.Equal(t, 2, p.GrantCount)
		assertDecimal(t, "51.33", p.Score)
		assertDecimal(t, "150000", p.TotalWeight)
	})

	t.Run("no grants", func(t *testing.T) {
		p := ComposePortfolio(nil)
		assert.False(t, p.Defined)
		assert.Equal(t, 0, p.GrantCount)
	})

	t.Run("zero budgets fall back to mean", func(t *testing.T) {
		p := ComposePortfolio([]ComplianceScore{
			{Score: dec("80"), Weight: decimal.Zero},
			{Score: dec("50"), Weight: decimal.Zero},
		})
		assert.True(t, p.Defined)
		assert.False(t, p.Weighted)
		assertDecimal(t, "65", p.Score)
	})

	t.Run("zero budget grant carries no weight", func(t *testing.T) {
		p := ComposePortfolio([]ComplianceScore{
			{Score: dec("80"), Weight: dec("1000")},
			{Score: dec("0"), Weight: decimal.Zero},
		})
		assertDecimal(t, "80", p.Score)
	})
}
