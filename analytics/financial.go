/*
financial.go - Financial Aggregator

PURPOSE:
  Rolls expenses up into per-category and per-grant budget, spend, variance
  and burn-rate figures. Pure function of one grant's records and the current
  date; no I/O, no shared state.

FORMULAS:
  Category:
    spent            = sum(expense.amount)
    variance         = spent - budgeted
    spent_percentage = spent / budgeted        (undefined when budgeted = 0)

  Grant:
    total_budgeted   = sum(category.budgeted)
    total_spent      = sum(category.spent)
    remaining_budget = total_budgeted - total_spent
    days_remaining   = max(0, end_date - today)
    spent_percentage = total_spent / total_budgeted (undefined when 0)

BURN RATE (linear projection, not a forecast model):
  daily_rate = total_spent / max(1, days_elapsed_since_start)
  depletion  = today + ceil(remaining_budget / daily_rate) days

  The quotient is computed as remaining * elapsed / spent so that the exact
  answer is not disturbed by rounding the daily rate first. Flat or negative
  spend projects no depletion; a spent-out grant is depleted today. Decimal
  arithmetic means NaN and Inf cannot occur.

MONTHLY SPEND TREND:
  Counted expenses dated from today minus SpendTrendMonths up to today, summed
  per calendar month (YYYY-MM), ascending. Months without expenses are
  omitted; reversals can make a month negative.

SEE ALSO:
  - compliance.go: Consumes GrantFinancialSummary.SpentPercentage
*/
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/grant-engine/grant"
)

// =============================================================================
// OUTPUT RECORDS
// =============================================================================

// CategorySpend is the derived spend of one budget category.
type CategorySpend struct {
	CategoryID      grant.CategoryID `json:"category_id"`
	GrantID         grant.GrantID    `json:"grant_id"`
	Name            string           `json:"category_name"`
	Budgeted        decimal.Decimal  `json:"budgeted_amount"`
	Spent           decimal.Decimal  `json:"spent_amount"`
	Variance        decimal.Decimal  `json:"variance"`
	SpentPercentage grant.Ratio      `json:"spent_percentage"`
}

// Overspent is true when spend exceeds the category budget.
func (c CategorySpend) Overspent() bool { return c.Spent.GreaterThan(c.Budgeted) }

type DepletionStatus string

const (
	DepletionProjected     DepletionStatus = "projected"
	DepletionNoSpend       DepletionStatus = "no_spend"
	DepletionDepleted      DepletionStatus = "depleted"
	DepletionBeyondHorizon DepletionStatus = "beyond_horizon"
)

// BurnRate is the linear spend projection of a grant.
// ProjectedDepletion is the zero Date unless Status is projected or depleted.
type BurnRate struct {
	DailyRate          decimal.Decimal `json:"daily_rate"`
	DaysElapsed        int             `json:"days_elapsed"`
	Status             DepletionStatus `json:"depletion_status"`
	ProjectedDepletion grant.Date      `json:"projected_depletion_date"`
}

// SpendTrendMonths is the trailing window of the monthly spend trend.
const SpendTrendMonths = 12

// MonthlySpend is the counted spend of one grant in one calendar month.
type MonthlySpend struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// GrantFinancialSummary is the derived financial state of one grant.
type GrantFinancialSummary struct {
	GrantID         grant.GrantID   `json:"grant_id"`
	GrantName       string          `json:"grant_name"`
	FunderName      string          `json:"funder_name"`
	AwardAmount     decimal.Decimal `json:"total_amount"`
	TotalBudgeted   decimal.Decimal `json:"total_budgeted"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
	Variance        decimal.Decimal `json:"variance"`
	SpentPercentage grant.Ratio     `json:"spent_percentage"`
	DaysRemaining   int             `json:"days_remaining"`
	BurnRate        BurnRate        `json:"burn_rate"`
	Categories      []CategorySpend `json:"categories"`
	MonthlySpend    []MonthlySpend  `json:"monthly_spend"`

	// Expenses left out of spend by policy (rejected, pending, out of window).
	ExcludedExpenses int `json:"excluded_expenses"`
}

// BudgetAlert flags a category whose spend exceeds its budget.
type BudgetAlert struct {
	GrantID             grant.GrantID    `json:"grant_id"`
	GrantName           string           `json:"grant_name"`
	CategoryID          grant.CategoryID `json:"category_id"`
	CategoryName        string           `json:"category_name"`
	Budgeted            decimal.Decimal  `json:"budgeted_amount"`
	Spent               decimal.Decimal  `json:"spent_amount"`
	Overspend           decimal.Decimal  `json:"overspend"`
	OverspendPercentage grant.Ratio      `json:"overspend_percentage"`
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Summarize computes the financial summary of one grant as of today.
func Summarize(gr grant.GrantRecords, today grant.Date, cfg FinancialConfig) GrantFinancialSummary {
	g := gr.Grant
	summary := GrantFinancialSummary{
		GrantID:     g.ID,
		GrantName:   g.Name,
		FunderName:  g.FunderName,
		AwardAmount: g.AwardAmount,
		Categories:  make([]CategorySpend, 0, len(gr.Categories)),
	}

	spentByCategory := make(map[grant.CategoryID]decimal.Decimal, len(gr.Categories))
	for _, c := range gr.Categories {
		spentByCategory[c.ID] = decimal.Zero
	}
	trend := newSpendTrend(today)
	for _, e := range gr.Expenses {
		spent, ok := spentByCategory[e.CategoryID]
		if !ok || !countsTowardSpend(e, g, cfg) {
			summary.ExcludedExpenses++
			continue
		}
		spentByCategory[e.CategoryID] = spent.Add(e.Amount)
		trend.add(e)
	}
	summary.MonthlySpend = trend.series()

	for _, c := range gr.Categories {
		spent := spentByCategory[c.ID]
		summary.Categories = append(summary.Categories, CategorySpend{
			CategoryID:      c.ID,
			GrantID:         c.GrantID,
			Name:            c.Name,
			Budgeted:        c.BudgetedAmount,
			Spent:           spent,
			Variance:        spent.Sub(c.BudgetedAmount),
			SpentPercentage: grant.NewRatio(spent, c.BudgetedAmount),
		})
		summary.TotalBudgeted = summary.TotalBudgeted.Add(c.BudgetedAmount)
		summary.TotalSpent = summary.TotalSpent.Add(spent)
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].CategoryID < summary.Categories[j].CategoryID
	})

	summary.RemainingBudget = summary.TotalBudgeted.Sub(summary.TotalSpent)
	summary.Variance = summary.TotalSpent.Sub(summary.TotalBudgeted)
	summary.SpentPercentage = grant.NewRatio(summary.TotalSpent, summary.TotalBudgeted)
	summary.DaysRemaining = max(0, grant.DaysBetween(today, g.EndDate))
	summary.BurnRate = projectBurn(g, summary.TotalSpent, summary.RemainingBudget, today, cfg.MaxProjectionDays)
	return summary
}

type spendTrend struct {
	from, to grant.Date
	byMonth  map[string]decimal.Decimal
}

func newSpendTrend(today grant.Date) *spendTrend {
	return &spendTrend{
		from:    grant.DateOf(today.Time.AddDate(0, -SpendTrendMonths, 0)),
		to:      today,
		byMonth: make(map[string]decimal.Decimal),
	}
}

func (t *spendTrend) add(e grant.Expense) {
	if e.Date.Before(t.from) || e.Date.After(t.to) {
		return
	}
	month := e.Date.Time.Format("2006-01")
	t.byMonth[month] = t.byMonth[month].Add(e.Amount)
}

func (t *spendTrend) series() []MonthlySpend {
	out := make([]MonthlySpend, 0, len(t.byMonth))
	for month, amount := range t.byMonth {
		out = append(out, MonthlySpend{Month: month, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func countsTowardSpend(e grant.Expense, g grant.Grant, cfg FinancialConfig) bool {
	switch e.Approval {
	case grant.ApprovalRejected:
		return false
	case grant.ApprovalPending:
		if cfg.ExcludePendingExpenses {
			return false
		}
	}
	if cfg.OutOfWindow == OutOfWindowExclude && !g.Window().Contains(e.Date) {
		return false
	}
	return true
}

func projectBurn(g grant.Grant, spent, remaining decimal.Decimal, today grant.Date, horizon int) BurnRate {
	elapsed := grant.DaysBetween(g.StartDate, today)
	divisor := decimal.NewFromInt(int64(max(1, elapsed)))

	br := BurnRate{
		DailyRate:   spent.DivRound(divisor, grant.RatioPrecision),
		DaysElapsed: max(0, elapsed),
	}

	switch {
	case !spent.IsPositive():
		br.Status = DepletionNoSpend
	case !remaining.IsPositive():
		br.Status = DepletionDepleted
		br.ProjectedDepletion = today
	default:
		days := remaining.Mul(divisor).Div(spent).Ceil()
		if days.GreaterThan(decimal.NewFromInt(int64(horizon))) {
			br.Status = DepletionBeyondHorizon
			return br
		}
		br.Status = DepletionProjected
		br.ProjectedDepletion = today.AddDays(int(days.IntPart()))
	}
	return br
}

// BudgetAlerts lists overspent categories across summaries, largest
// overspend percentage first. A category with a zero budget and positive
// spend is overspent with an undefined percentage and sorts last.
func BudgetAlerts(summaries []GrantFinancialSummary) []BudgetAlert {
	var alerts []BudgetAlert
	for _, s := range summaries {
		for _, c := range s.Categories {
			if !c.Overspent() {
				continue
			}
			over := c.Spent.Sub(c.Budgeted)
			alerts = append(alerts, BudgetAlert{
				GrantID:             s.GrantID,
				GrantName:           s.GrantName,
				CategoryID:          c.CategoryID,
				CategoryName:        c.Name,
				Budgeted:            c.Budgeted,
				Spent:               c.Spent,
				Overspend:           over,
				OverspendPercentage: grant.NewRatio(over, c.Budgeted),
			})
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.OverspendPercentage.Defined != b.OverspendPercentage.Defined {
			return a.OverspendPercentage.Defined
		}
		if !a.OverspendPercentage.Value.Equal(b.OverspendPercentage.Value) {
			return a.OverspendPercentage.Value.GreaterThan(b.OverspendPercentage.Value)
		}
		if a.GrantID != b.GrantID {
			return a.GrantID < b.GrantID
		}
		return a.CategoryID < b.CategoryID
	})
	return alerts
}
