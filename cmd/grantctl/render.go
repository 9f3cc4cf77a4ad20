package main

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/warp/grant-engine/analytics"
	"github.com/warp/grant-engine/grant"
)

var (
	colorText   = lipgloss.Color("#FFFCF0")
	colorDim    = lipgloss.Color("#575653")
	colorAccent = lipgloss.Color("#3AA99F")
	colorRed    = lipgloss.Color("#D14D41")
	colorOrange = lipgloss.Color("#DA702C")
	colorGreen  = lipgloss.Color("#879A39")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	valueStyle  = lipgloss.NewStyle().Foreground(colorText)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	badStyle    = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle   = lipgloss.NewStyle().Foreground(colorOrange)
	goodStyle   = lipgloss.NewStyle().Foreground(colorGreen)
)

// Table is a bordered text table. The first column is left-aligned, the
// rest right-aligned.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTable draws t with box-drawing borders.
func RenderTable(t Table) string {
	numCols := len(t.Headers)
	if numCols == 0 && len(t.Rows) > 0 {
		numCols = len(t.Rows[0])
	}
	if numCols == 0 {
		return ""
	}

	widths := make([]int, numCols)
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < numCols {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}
	line := func(cells []string, style lipgloss.Style, alignFirstOnly bool) {
		b.WriteString(dimStyle.Render("│"))
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if i == 0 || alignFirstOnly {
				cell = " " + cell + pad + " "
			} else {
				cell = " " + pad + cell + " "
			}
			b.WriteString(style.Render(cell))
			if i < numCols-1 {
				b.WriteString(dimStyle.Render("│"))
			}
		}
		b.WriteString(dimStyle.Render("│"))
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")
	if len(t.Headers) > 0 {
		line(t.Headers, headerStyle, true)
		rule("├", "┼", "┤")
	}
	for _, row := range t.Rows {
		line(row, valueStyle, false)
	}
	rule("╰", "┴", "╯")
	return b.String()
}

// formatMoney renders an amount in the currency's display format. Unknown
// currency codes fall back to a plain two-decimal figure.
func formatMoney(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return d.StringFixed(2)
	}
	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := d.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

func formatRatio(r grant.Ratio) string {
	if !r.Defined {
		return "n/a"
	}
	return r.Value.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

func formatDepletion(br analytics.BurnRate) string {
	switch br.Status {
	case analytics.DepletionProjected, analytics.DepletionDepleted:
		return br.ProjectedDepletion.String()
	case analytics.DepletionNoSpend:
		return "no spend"
	default:
		return "beyond horizon"
	}
}

func styleScore(s decimal.Decimal) string {
	text := s.StringFixed(analytics.ScorePrecision)
	switch {
	case s.LessThan(decimal.NewFromInt(50)):
		return badStyle.Render(text)
	case s.LessThan(decimal.NewFromInt(80)):
		return warnStyle.Render(text)
	default:
		return goodStyle.Render(text)
	}
}

// renderResult lays out every feed of res as terminal tables.
func renderResult(res *analytics.Result, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n  %s  as of %s\n\n", headerStyle.Render("Grant portfolio"), res.AsOf)

	grants := Table{
		Title:   "Grants",
		Headers: []string{"Grant", "Budgeted", "Spent", "Remaining", "Spent %", "Days left", "Daily burn", "Depletion"},
	}
	for _, s := range res.Summaries {
		grants.Rows = append(grants.Rows, []string{
			fmt.Sprintf("%s %s", s.GrantID, s.GrantName),
			formatMoney(s.TotalBudgeted, currency),
			formatMoney(s.TotalSpent, currency),
			formatMoney(s.RemainingBudget, currency),
			formatRatio(s.SpentPercentage),
			fmt.Sprint(s.DaysRemaining),
			formatMoney(s.BurnRate.DailyRate, currency),
			formatDepletion(s.BurnRate),
		})
	}
	b.WriteString(RenderTable(grants))
	b.WriteString("\n")

	if len(res.Alerts) > 0 {
		alerts := Table{
			Title:   "Deadline alerts",
			Headers: []string{"Item", "Grant", "Tier", "Due", "Days overdue"},
		}
		for _, a := range res.Alerts {
			alerts.Rows = append(alerts.Rows, []string{
				fmt.Sprintf("%s %s (%s)", a.ItemID, a.ItemName, a.ItemKind),
				string(a.GrantID),
				string(a.AlertType),
				a.DueDate.String(),
				fmt.Sprint(a.DaysOverdue),
			})
		}
		b.WriteString(RenderTable(alerts))
		b.WriteString("\n")
	}

	late := Table{
		Title:   "Late deliverables",
		Headers: []string{"Deliverable", "Grant", "Due", "Completed", "Days late"},
	}
	for _, d := range res.Deliverables {
		if d.DaysLate == 0 {
			continue
		}
		done := "open"
		if d.Completed {
			done = d.CompletionDate.String()
		}
		late.Rows = append(late.Rows, []string{
			fmt.Sprintf("%s %s", d.DeliverableID, d.Name),
			string(d.GrantID),
			d.DueDate.String(),
			done,
			fmt.Sprint(d.DaysLate),
		})
	}
	if len(late.Rows) > 0 {
		b.WriteString(RenderTable(late))
		b.WriteString("\n")
	}

	trend := Table{
		Title:   "Monthly spend",
		Headers: []string{"Month", "Grant", "Spent"},
	}
	for _, s := range res.Summaries {
		for _, m := range s.MonthlySpend {
			trend.Rows = append(trend.Rows, []string{m.Month, string(s.GrantID), formatMoney(m.Amount, currency)})
		}
	}
	if len(trend.Rows) > 0 {
		b.WriteString(RenderTable(trend))
		b.WriteString("\n")
	}

	if len(res.BudgetAlerts) > 0 {
		over := Table{
			Title:   "Overspent categories",
			Headers: []string{"Category", "Grant", "Budgeted", "Spent", "Overspend", "Over %"},
		}
		for _, a := range res.BudgetAlerts {
			over.Rows = append(over.Rows, []string{
				fmt.Sprintf("%s %s", a.CategoryID, a.CategoryName),
				string(a.GrantID),
				formatMoney(a.Budgeted, currency),
				formatMoney(a.Spent, currency),
				formatMoney(a.Overspend, currency),
				formatRatio(a.OverspendPercentage),
			})
		}
		b.WriteString(RenderTable(over))
		b.WriteString("\n")
	}

	if len(res.Outcomes) > 0 {
		outcomes := Table{
			Title:   "Outcomes",
			Headers: []string{"Metric", "Grant", "Target", "Current", "Achieved", "Status"},
		}
		for _, o := range res.Outcomes {
			outcomes.Rows = append(outcomes.Rows, []string{
				fmt.Sprintf("%s %s", o.MetricID, o.MetricName),
				string(o.GrantID),
				o.TargetValue.String(),
				o.CurrentValue.String(),
				formatRatio(o.Achievement),
				string(o.Status),
			})
		}
		b.WriteString(RenderTable(outcomes))
		b.WriteString("\n")
	}

	scores := Table{
		Title:   "Compliance",
		Headers: []string{"Grant", "Alerts", "Variance", "Outcomes", "Score"},
	}
	for _, s := range res.Scores {
		scores.Rows = append(scores.Rows, []string{
			fmt.Sprintf("%s %s", s.GrantID, s.GrantName),
			"-" + s.AlertPenalty.StringFixed(analytics.ScorePrecision),
			"-" + s.VariancePenalty.StringFixed(analytics.ScorePrecision),
			"-" + s.OutcomePenalty.StringFixed(analytics.ScorePrecision),
			styleScore(s.Score),
		})
	}
	b.WriteString(RenderTable(scores))
	if res.Portfolio.Defined {
		fmt.Fprintf(&b, "  Portfolio score: %s (%d grants)\n", styleScore(res.Portfolio.Score), res.Portfolio.GrantCount)
	} else {
		b.WriteString("  Portfolio score: n/a (no grants)\n")
	}

	if len(res.Issues) > 0 {
		b.WriteString("\n")
		issues := Table{
			Title:   "Data quality",
			Headers: []string{"Record", "Kind", "Grant", "Severity", "Issue"},
		}
		for _, is := range res.Issues {
			issues.Rows = append(issues.Rows, []string{
				is.RecordID,
				string(is.Kind),
				string(is.GrantID),
				string(is.Severity),
				is.Message,
			})
		}
		b.WriteString(RenderTable(issues))
	}
	return b.String()
}
