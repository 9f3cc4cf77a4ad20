/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the analytics records (decimal amounts, Ratio values) from the external
  feed contract consumed by the dashboard.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

FEEDS:
  Grant summary:      GrantSummaryDTO (+ CategoryDTO, BurnRateDTO,
                      MonthlySpendDTO on detail)
  Compliance alerts:  AlertDTO, BudgetAlertDTO, DeliverableDTO
  Outcome performance: OutcomeDTO
  Compliance scores:  ComplianceDTO, PortfolioDTO
  Data quality:       IssueDTO

UNDEFINED VALUES:
  A ratio that is undefined (division by a zero budget or target) is
  encoded as JSON null, never as 0. The same applies to a projected
  depletion date when no depletion is projected.

SEE ALSO:
  - handlers.go: Uses these types
  - analytics/engine.go: Result, the source of every feed
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/grant-engine/analytics"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/store/sqlite"
)

// =============================================================================
// GRANT SUMMARY FEED
// =============================================================================

// GrantSummaryDTO is one record of the grant summary feed.
type GrantSummaryDTO struct {
	GrantID                string   `json:"grant_id"`
	GrantName              string   `json:"grant_name"`
	FunderName             string   `json:"funder_name"`
	TotalAmount            float64  `json:"total_amount"`
	TotalBudgeted          float64  `json:"total_budgeted"`
	TotalSpent             float64  `json:"total_spent"`
	RemainingBudget        float64  `json:"remaining_budget"`
	SpentPercentage        *float64 `json:"spent_percentage"`
	DaysRemaining          int      `json:"days_remaining"`
	ProjectedDepletionDate *string  `json:"projected_depletion_date"`
	ComplianceScore        *float64 `json:"compliance_score,omitempty"`
}

// GrantDetailDTO is a grant summary with its categories and burn rate.
type GrantDetailDTO struct {
	GrantSummaryDTO
	Variance         float64           `json:"variance"`
	BurnRate         BurnRateDTO       `json:"burn_rate"`
	Categories       []CategoryDTO     `json:"categories"`
	MonthlySpend     []MonthlySpendDTO `json:"monthly_spend"`
	ExcludedExpenses int               `json:"excluded_expenses"`
	Alerts           []AlertDTO        `json:"alerts"`
	Deliverables     []DeliverableDTO  `json:"deliverables"`
	Outcomes         []OutcomeDTO      `json:"outcomes"`
}

// MonthlySpendDTO is the counted spend of one calendar month (YYYY-MM).
type MonthlySpendDTO struct {
	Month  string  `json:"month"`
	Amount float64 `json:"amount"`
}

// BurnRateDTO is the linear spend projection of a grant.
type BurnRateDTO struct {
	DailyRate              float64 `json:"daily_rate"`
	DaysElapsed            int     `json:"days_elapsed"`
	Status                 string  `json:"depletion_status"`
	ProjectedDepletionDate *string `json:"projected_depletion_date"`
}

// CategoryDTO is the derived spend of one budget category.
type CategoryDTO struct {
	CategoryID      string   `json:"category_id"`
	CategoryName    string   `json:"category_name"`
	BudgetedAmount  float64  `json:"budgeted_amount"`
	SpentAmount     float64  `json:"spent_amount"`
	Variance        float64  `json:"variance"`
	SpentPercentage *float64 `json:"spent_percentage"`
}

// =============================================================================
// COMPLIANCE ALERT FEED
// =============================================================================

// AlertDTO is one record of the compliance alert feed. DaysOverdue is
// positive (or zero) for overdue items and the negative lead time otherwise.
type AlertDTO struct {
	AlertType   string `json:"alert_type"`
	ItemKind    string `json:"item_kind"`
	GrantID     string `json:"grant_id"`
	GrantName   string `json:"grant_name"`
	ItemID      string `json:"item_id"`
	ItemName    string `json:"item_name"`
	DueDate     string `json:"due_date"`
	DaysOverdue int    `json:"days_overdue"`
}

// DeliverableDTO is the timeliness of one deliverable. CompletionDate is
// null while the deliverable is open.
type DeliverableDTO struct {
	GrantID         string  `json:"grant_id"`
	GrantName       string  `json:"grant_name"`
	DeliverableID   string  `json:"deliverable_id"`
	DeliverableName string  `json:"deliverable_name"`
	DueDate         string  `json:"due_date"`
	Status          string  `json:"status"`
	CompletionDate  *string `json:"completion_date"`
	Completed       bool    `json:"completed"`
	DaysLate        int     `json:"days_late"`
}

// BudgetAlertDTO flags an overspent budget category.
type BudgetAlertDTO struct {
	GrantID             string   `json:"grant_id"`
	GrantName           string   `json:"grant_name"`
	CategoryID          string   `json:"category_id"`
	CategoryName        string   `json:"category_name"`
	BudgetedAmount      float64  `json:"budgeted_amount"`
	SpentAmount         float64  `json:"spent_amount"`
	Overspend           float64  `json:"overspend"`
	OverspendPercentage *float64 `json:"overspend_percentage"`
}

// =============================================================================
// OUTCOME PERFORMANCE FEED
// =============================================================================

// OutcomeDTO is one record of the outcome performance feed.
type OutcomeDTO struct {
	GrantID               string   `json:"grant_id"`
	GrantName             string   `json:"grant_name"`
	MetricID              string   `json:"metric_id"`
	MetricName            string   `json:"metric_name"`
	TargetValue           float64  `json:"target_value"`
	CurrentValue          float64  `json:"current_value"`
	UnitOfMeasure         string   `json:"unit_of_measure,omitempty"`
	AchievementPercentage *float64 `json:"achievement_percentage"`
	Status                string   `json:"status"`
}

// =============================================================================
// COMPLIANCE SCORES
// =============================================================================

// ComplianceDTO is the composite score of one grant with its breakdown.
type ComplianceDTO struct {
	GrantID         string                `json:"grant_id"`
	GrantName       string                `json:"grant_name"`
	Score           float64               `json:"score"`
	AlertPenalty    float64               `json:"alert_penalty"`
	VariancePenalty float64               `json:"variance_penalty"`
	OutcomePenalty  float64               `json:"outcome_penalty"`
	Alerts          analytics.AlertCounts `json:"alerts"`
	FallingShort    int                   `json:"falling_short"`
	ScoredMetrics   int                   `json:"scored_metrics"`
}

// PortfolioDTO is the budget-weighted portfolio score. Score is null for an
// empty portfolio.
type PortfolioDTO struct {
	Score      *float64 `json:"score"`
	Weighted   bool     `json:"weighted"`
	GrantCount int      `json:"grant_count"`
}

// ComplianceResponse wraps per-grant scores and the portfolio score.
type ComplianceResponse struct {
	AsOf      string          `json:"as_of"`
	Portfolio PortfolioDTO    `json:"portfolio"`
	Grants    []ComplianceDTO `json:"grants"`
}

// =============================================================================
// DATA QUALITY + OPERATIONS
// =============================================================================

// IssueDTO is one data-quality finding.
type IssueDTO struct {
	RecordKind string `json:"record_kind"`
	RecordID   string `json:"record_id"`
	GrantID    string `json:"grant_id,omitempty"`
	Code       string `json:"code"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
}

// RefreshRunDTO is one row of the refresh history.
type RefreshRunDTO struct {
	ID             string `json:"id"`
	Trigger        string `json:"trigger"`
	AsOf           string `json:"as_of,omitempty"`
	Status         string `json:"status"`
	Grants         int    `json:"grants"`
	Alerts         int    `json:"alerts"`
	Issues         int    `json:"issues"`
	PortfolioScore string `json:"portfolio_score,omitempty"`
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

// RefreshRunsResponse is the refresh history with the next scheduled run.
type RefreshRunsResponse struct {
	Runs    []RefreshRunDTO `json:"runs"`
	NextRun string          `json:"next_run,omitempty"`
}

// FeedResponse wraps a feed with the date it was computed for.
type FeedResponse[T any] struct {
	AsOf  string `json:"as_of"`
	Items []T    `json:"items"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) float64 { return d.InexactFloat64() }

func ratioPtr(r grant.Ratio) *float64 {
	v, ok := r.Float64()
	if !ok {
		return nil
	}
	return &v
}

func datePtr(d grant.Date) *string {
	if d.IsZero() {
		return nil
	}
	s := d.String()
	return &s
}

func toGrantSummaryDTO(s analytics.GrantFinancialSummary) GrantSummaryDTO {
	return GrantSummaryDTO{
		GrantID:                string(s.GrantID),
		GrantName:              s.GrantName,
		FunderName:             s.FunderName,
		TotalAmount:            money(s.AwardAmount),
		TotalBudgeted:          money(s.TotalBudgeted),
		TotalSpent:             money(s.TotalSpent),
		RemainingBudget:        money(s.RemainingBudget),
		SpentPercentage:        ratioPtr(s.SpentPercentage),
		DaysRemaining:          s.DaysRemaining,
		ProjectedDepletionDate: datePtr(s.BurnRate.ProjectedDepletion),
	}
}

func toCategoryDTO(c analytics.CategorySpend) CategoryDTO {
	return CategoryDTO{
		CategoryID:      string(c.CategoryID),
		CategoryName:    c.Name,
		BudgetedAmount:  money(c.Budgeted),
		SpentAmount:     money(c.Spent),
		Variance:        money(c.Variance),
		SpentPercentage: ratioPtr(c.SpentPercentage),
	}
}

func toAlertDTO(a analytics.ComplianceAlert) AlertDTO {
	return AlertDTO{
		AlertType:   string(a.AlertType),
		ItemKind:    string(a.ItemKind),
		GrantID:     string(a.GrantID),
		GrantName:   a.GrantName,
		ItemID:      a.ItemID,
		ItemName:    a.ItemName,
		DueDate:     a.DueDate.String(),
		DaysOverdue: a.DaysOverdue,
	}
}

func toAlertDTOs(alerts []analytics.ComplianceAlert) []AlertDTO {
	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = toAlertDTO(a)
	}
	return dtos
}

func toMonthlySpendDTOs(months []analytics.MonthlySpend) []MonthlySpendDTO {
	dtos := make([]MonthlySpendDTO, len(months))
	for i, m := range months {
		dtos[i] = MonthlySpendDTO{Month: m.Month, Amount: money(m.Amount)}
	}
	return dtos
}

func toDeliverableDTOs(ds []analytics.DeliverableTimeliness) []DeliverableDTO {
	dtos := make([]DeliverableDTO, len(ds))
	for i, d := range ds {
		dtos[i] = DeliverableDTO{
			GrantID:         string(d.GrantID),
			GrantName:       d.GrantName,
			DeliverableID:   string(d.DeliverableID),
			DeliverableName: d.Name,
			DueDate:         d.DueDate.String(),
			Status:          string(d.Status),
			CompletionDate:  datePtr(d.CompletionDate),
			Completed:       d.Completed,
			DaysLate:        d.DaysLate,
		}
	}
	return dtos
}

func toBudgetAlertDTO(a analytics.BudgetAlert) BudgetAlertDTO {
	return BudgetAlertDTO{
		GrantID:             string(a.GrantID),
		GrantName:           a.GrantName,
		CategoryID:          string(a.CategoryID),
		CategoryName:        a.CategoryName,
		BudgetedAmount:      money(a.Budgeted),
		SpentAmount:         money(a.Spent),
		Overspend:           money(a.Overspend),
		OverspendPercentage: ratioPtr(a.OverspendPercentage),
	}
}

func toOutcomeDTO(o analytics.OutcomeAssessment) OutcomeDTO {
	return OutcomeDTO{
		GrantID:               string(o.GrantID),
		GrantName:             o.GrantName,
		MetricID:              string(o.MetricID),
		MetricName:            o.MetricName,
		TargetValue:           money(o.TargetValue),
		CurrentValue:          money(o.CurrentValue),
		UnitOfMeasure:         o.Unit,
		AchievementPercentage: ratioPtr(o.Achievement),
		Status:                string(o.Status),
	}
}

func toOutcomeDTOs(outcomes []analytics.OutcomeAssessment) []OutcomeDTO {
	dtos := make([]OutcomeDTO, len(outcomes))
	for i, o := range outcomes {
		dtos[i] = toOutcomeDTO(o)
	}
	return dtos
}

func toComplianceDTO(s analytics.ComplianceScore) ComplianceDTO {
	return ComplianceDTO{
		GrantID:         string(s.GrantID),
		GrantName:       s.GrantName,
		Score:           money(s.Score),
		AlertPenalty:    money(s.AlertPenalty),
		VariancePenalty: money(s.VariancePenalty),
		OutcomePenalty:  money(s.OutcomePenalty),
		Alerts:          s.Alerts,
		FallingShort:    s.FallingShort,
		ScoredMetrics:   s.ScoredMetrics,
	}
}

func toPortfolioDTO(p analytics.PortfolioScore) PortfolioDTO {
	dto := PortfolioDTO{Weighted: p.Weighted, GrantCount: p.GrantCount}
	if p.Defined {
		v := money(p.Score)
		dto.Score = &v
	}
	return dto
}

func toIssueDTO(is grant.Issue) IssueDTO {
	return IssueDTO{
		RecordKind: string(is.Kind),
		RecordID:   is.RecordID,
		GrantID:    string(is.GrantID),
		Code:       string(is.Code),
		Severity:   string(is.Severity),
		Message:    is.Message,
	}
}

func toRefreshRunDTO(r sqlite.RefreshRun) RefreshRunDTO {
	dto := RefreshRunDTO{
		ID:             r.ID,
		Trigger:        r.Trigger,
		AsOf:           r.AsOf,
		Status:         r.Status,
		Grants:         r.Grants,
		Alerts:         r.Alerts,
		Issues:         r.Issues,
		PortfolioScore: r.PortfolioScore,
		Error:          r.Error,
		StartedAt:      r.StartedAt.Format(timeLayout),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(timeLayout)
	}
	return dto
}
