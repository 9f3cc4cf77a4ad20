package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/grant/granttest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

// groupOf returns the records of one fixture grant.
func groupOf(t *testing.T, snap grant.Snapshot, id grant.GrantID) grant.GrantRecords {
	t.Helper()
	for _, gr := range snap.ByGrant() {
		if gr.Grant.ID == id {
			return gr
		}
	}
	t.Fatalf("grant %s not in snapshot", id)
	return grant.GrantRecords{}
}

func TestSummarize_Projected(t *testing.T) {
	// GIVEN: G-001, 60,000 of 100,000 spent 180 days into the grant
	gr := groupOf(t, granttest.Portfolio(), "G-001")

	// WHEN: Summarizing as of 2025-06-30
	s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

	// THEN: Totals, variance and burn match the worked figures
	assertDecimal(t, "100000", s.TotalBudgeted)
	assertDecimal(t, "60000", s.TotalSpent)
	assertDecimal(t, "40000", s.RemainingBudget)
	assertDecimal(t, "-40000", s.Variance)
	assertDecimal(t, "0.6", s.SpentPercentage.Value)
	assert.Equal(t, 184, s.DaysRemaining)
	assert.Equal(t, 0, s.ExcludedExpenses)

	assert.Equal(t, 180, s.BurnRate.DaysElapsed)
	assertDecimal(t, "333.333333", s.BurnRate.DailyRate)
	assert.Equal(t, DepletionProjected, s.BurnRate.Status)
	assert.Equal(t, "2025-10-28", s.BurnRate.ProjectedDepletion.String())

	// AND: Categories are ordered by ID with their own variance
	require.Len(t, s.Categories, 2)
	assert.Equal(t, grant.CategoryID("C-001"), s.Categories[0].CategoryID)
	assertDecimal(t, "55000", s.Categories[0].Spent)
	assertDecimal(t, "-5000", s.Categories[0].Variance)
	assertDecimal(t, "0.916667", s.Categories[0].SpentPercentage.Value)
	assertDecimal(t, "0.125", s.Categories[1].SpentPercentage.Value)
}

func TestSummarize_ApprovalPolicy(t *testing.T) {
	gr := groupOf(t, granttest.Portfolio(), "G-002")

	t.Run("pending included, rejected never", func(t *testing.T) {
		s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

		assertDecimal(t, "55500", s.TotalSpent)
		assertDecimal(t, "-5500", s.RemainingBudget)
		assertDecimal(t, "1.11", s.SpentPercentage.Value)
		assert.Equal(t, 1, s.ExcludedExpenses)
		assert.Equal(t, DepletionDepleted, s.BurnRate.Status)
		assert.Equal(t, granttest.AsOf, s.BurnRate.ProjectedDepletion)
	})

	t.Run("pending excluded", func(t *testing.T) {
		cfg := DefaultConfig().Financial
		cfg.ExcludePendingExpenses = true

		s := Summarize(gr, granttest.AsOf, cfg)

		assertDecimal(t, "45500", s.TotalSpent)
		assert.Equal(t, 2, s.ExcludedExpenses)
		assert.Equal(t, DepletionProjected, s.BurnRate.Status)
	})
}

func TestSummarize_ZeroBudgetCategory(t *testing.T) {
	gr := groupOf(t, granttest.Portfolio(), "G-002")

	s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

	require.Len(t, s.Categories, 2)
	travel := s.Categories[1]
	assert.Equal(t, grant.CategoryID("C-004"), travel.CategoryID)
	assert.False(t, travel.SpentPercentage.Defined)
	assert.True(t, travel.Overspent())
}

func TestSummarize_OutOfWindowPolicy(t *testing.T) {
	// GIVEN: G-001 plus an expense dated after its end date
	gr := groupOf(t, granttest.Portfolio(), "G-001")
	gr.Expenses = append(gr.Expenses, grant.Expense{
		ID: "E-900", GrantID: "G-001", CategoryID: "C-002",
		Date: grant.MustParseDate("2026-01-15"), Amount: dec("1000"), Approval: grant.ApprovalApproved,
	})

	flag := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)
	assertDecimal(t, "61000", flag.TotalSpent)

	cfg := DefaultConfig().Financial
	cfg.OutOfWindow = OutOfWindowExclude
	exclude := Summarize(gr, granttest.AsOf, cfg)
	assertDecimal(t, "60000", exclude.TotalSpent)
	assert.Equal(t, 1, exclude.ExcludedExpenses)
}

func TestSummarize_Reversal(t *testing.T) {
	gr := groupOf(t, granttest.Portfolio(), "G-001")
	gr.Expenses = append(gr.Expenses, grant.Expense{
		ID: "E-901", GrantID: "G-001", CategoryID: "C-001",
		Date: grant.MustParseDate("2025-05-02"), Amount: dec("-25000"), Approval: grant.ApprovalApproved,
	})

	s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

	assertDecimal(t, "35000", s.TotalSpent)
	assertDecimal(t, "30000", s.Categories[0].Spent)
}

func TestSummarize_MonthlySpend(t *testing.T) {
	// GIVEN: G-001 with spend in February, March and May
	gr := groupOf(t, granttest.Portfolio(), "G-001")

	// WHEN: Summarizing as of 2025-06-30
	s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

	// THEN: One entry per month with spend, oldest first
	require.Len(t, s.MonthlySpend, 3)
	assert.Equal(t, "2025-02", s.MonthlySpend[0].Month)
	assertDecimal(t, "30000", s.MonthlySpend[0].Amount)
	assert.Equal(t, "2025-03", s.MonthlySpend[1].Month)
	assertDecimal(t, "5000", s.MonthlySpend[1].Amount)
	assert.Equal(t, "2025-05", s.MonthlySpend[2].Month)
	assertDecimal(t, "25000", s.MonthlySpend[2].Amount)
}

func TestSummarize_MonthlySpendWindow(t *testing.T) {
	// GIVEN: G-002 plus one expense older than twelve months, one at the
	//        start of the trailing window and one dated after today
	gr := groupOf(t, granttest.Portfolio(), "G-002")
	gr.Expenses = append(gr.Expenses,
		grant.Expense{ID: "E-910", GrantID: "G-002", CategoryID: "C-003", Date: grant.MustParseDate("2024-06-15"), Amount: dec("700"), Approval: grant.ApprovalApproved},
		grant.Expense{ID: "E-911", GrantID: "G-002", CategoryID: "C-003", Date: grant.MustParseDate("2024-07-05"), Amount: dec("100"), Approval: grant.ApprovalApproved},
		grant.Expense{ID: "E-912", GrantID: "G-002", CategoryID: "C-003", Date: grant.MustParseDate("2025-07-10"), Amount: dec("900"), Approval: grant.ApprovalApproved},
	)

	// WHEN: Summarizing as of 2025-06-30
	s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

	// THEN: All three count toward the total spent
	assertDecimal(t, "57200", s.TotalSpent)

	// AND: The trend covers the trailing twelve months only, with the
	//      pending expense included and the rejected one left out
	months := make([]string, len(s.MonthlySpend))
	for i, m := range s.MonthlySpend {
		months[i] = m.Month
	}
	assert.Equal(t, []string{"2024-07", "2025-01", "2025-02", "2025-06"}, months)
	assertDecimal(t, "100", s.MonthlySpend[0].Amount)
	assertDecimal(t, "45000", s.MonthlySpend[1].Amount)
	assertDecimal(t, "10000", s.MonthlySpend[3].Amount)
}

func TestSummarize_NoSpendHasEmptyTrend(t *testing.T) {
	gr := groupOf(t, granttest.Portfolio(), "G-001")
	gr.Expenses = nil

	s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

	assert.NotNil(t, s.MonthlySpend)
	assert.Empty(t, s.MonthlySpend)
}

func TestProjectBurn(t *testing.T) {
	g := grant.Grant{
		ID: "G-1", StartDate: grant.MustParseDate("2025-06-30"), EndDate: grant.MustParseDate("2026-06-30"),
	}
	today := grant.MustParseDate("2025-06-30")

	t.Run("no spend", func(t *testing.T) {
		br := projectBurn(g, decimal.Zero, dec("1000"), today, 36500)
		assert.Equal(t, DepletionNoSpend, br.Status)
		assert.True(t, br.ProjectedDepletion.IsZero())
		assert.True(t, br.DailyRate.IsZero())
	})

	t.Run("first day divides by one", func(t *testing.T) {
		br := projectBurn(g, dec("100"), dec("900"), today, 36500)
		assert.Equal(t, 0, br.DaysElapsed)
		assertDecimal(t, "100", br.DailyRate)
		assert.Equal(t, "2025-07-09", br.ProjectedDepletion.String())
	})

	t.Run("before start", func(t *testing.T) {
		br := projectBurn(g, dec("100"), dec("900"), today.AddDays(-10), 36500)
		assert.Equal(t, 0, br.DaysElapsed)
		assertDecimal(t, "100", br.DailyRate)
	})

	t.Run("partial days round up", func(t *testing.T) {
		br := projectBurn(g, dec("100"), dec("150"), today, 36500)
		assert.Equal(t, "2025-07-02", br.ProjectedDepletion.String())
	})

	t.Run("beyond horizon", func(t *testing.T) {
		br := projectBurn(g, dec("0.01"), dec("1000000"), today, 365)
		assert.Equal(t, DepletionBeyondHorizon, br.Status)
		assert.True(t, br.ProjectedDepletion.IsZero())
	})

	t.Run("exactly spent", func(t *testing.T) {
		br := projectBurn(g, dec("1000"), decimal.Zero, today, 36500)
		assert.Equal(t, DepletionDepleted, br.Status)
		assert.Equal(t, today, br.ProjectedDepletion)
	})
}

func TestBudgetAlerts(t *testing.T) {
	snap := granttest.Portfolio()
	var summaries []GrantFinancialSummary
	for _, gr := range snap.ByGrant() {
		summaries = append(summaries, Summarize(gr, granttest.AsOf, DefaultConfig().Financial))
	}

	alerts := BudgetAlerts(summaries)

	// Defined percentages first, undefined (zero budget) last
	require.Len(t, alerts, 2)
	assert.Equal(t, grant.CategoryID("C-003"), alerts[0].CategoryID)
	assertDecimal(t, "5000", alerts[0].Overspend)
	assertDecimal(t, "0.1", alerts[0].OverspendPercentage.Value)
	assert.Equal(t, grant.CategoryID("C-004"), alerts[1].CategoryID)
	assertDecimal(t, "500", alerts[1].Overspend)
	assert.False(t, alerts[1].OverspendPercentage.Defined)
}

func TestBudgetAlerts_None(t *testing.T) {
	gr := groupOf(t, granttest.Portfolio(), "G-001")
	s := Summarize(gr, granttest.AsOf, DefaultConfig().Financial)

	assert.Empty(t, BudgetAlerts([]GrantFinancialSummary{s}))
}
