/*
Package grant provides the data model shared by the analytics engine and its stores.

PURPOSE:
  This package contains the read-only input records of a nonprofit grant
  portfolio and the small value types every computation is built on. The
  records are owned and mutated by an external store; the engine only reads
  them through the Reader contract (store.go) as an immutable Snapshot.

KEY CONCEPTS IN THIS FILE (types.go):
  - Grant: an award from a funder with an active window
  - BudgetCategory / Expense: the financial tree (Grant owns Categories owns Expenses)
  - Deliverable / Report: dated obligations tracked for deadlines
  - OutcomeMetric: a target/current pair measured per grant
  - Ratio: a division result that may be explicitly undefined

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, never float64
  2. Type Safety: Strong typing for IDs prevents mixing grant/category IDs
  3. No hidden faults: division by zero yields an undefined Ratio, not a panic

SEE ALSO:
  - time.go: Date, Clock and Window
  - validate.go: Per-record validation producing data-quality Issues
  - store.go: Reader contract and Snapshot loading
*/
package grant

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type GrantID string
type CategoryID string
type ExpenseID string
type DeliverableID string
type MetricID string
type ReportID string

// =============================================================================
// ENUMS
// =============================================================================

type FunderType string

const (
	FunderFederal    FunderType = "Federal"
	FunderFoundation FunderType = "Foundation"
	FunderCorporate  FunderType = "Corporate"
	FunderState      FunderType = "State"
)

type GrantStatus string

const (
	GrantActive  GrantStatus = "Active"
	GrantClosed  GrantStatus = "Closed"
	GrantPending GrantStatus = "Pending"
)

type ReportingFrequency string

const (
	ReportingMonthly    ReportingFrequency = "Monthly"
	ReportingQuarterly  ReportingFrequency = "Quarterly"
	ReportingSemiAnnual ReportingFrequency = "Semi-Annual"
	ReportingAnnual     ReportingFrequency = "Annual"
)

type ApprovalState string

const (
	ApprovalApproved ApprovalState = "Approved"
	ApprovalPending  ApprovalState = "Pending"
	ApprovalRejected ApprovalState = "Rejected"
)

type DeliverableStatus string

const (
	DeliverableCompleted  DeliverableStatus = "Completed"
	DeliverableInProgress DeliverableStatus = "InProgress"
	DeliverableOverdue    DeliverableStatus = "Overdue"
)

type ReportStatus string

const (
	ReportPending   ReportStatus = "Pending"
	ReportSubmitted ReportStatus = "Submitted"
	ReportLate      ReportStatus = "Late"
)

// =============================================================================
// RECORDS - Read-only inputs owned by the external store
// =============================================================================

type Grant struct {
	ID                 GrantID            `json:"grant_id"`
	Name               string             `json:"grant_name"`
	FunderName         string             `json:"funder_name"`
	FunderType         FunderType         `json:"funder_type"`
	AwardAmount        decimal.Decimal    `json:"total_amount"`
	StartDate          Date               `json:"start_date"`
	EndDate            Date               `json:"end_date"`
	Status             GrantStatus        `json:"status"`
	ReportingFrequency ReportingFrequency `json:"reporting_frequency"`
	Purpose            string             `json:"purpose,omitempty"`
}

// Window returns the grant's active period.
func (g Grant) Window() Window { return Window{Start: g.StartDate, End: g.EndDate} }

type BudgetCategory struct {
	ID             CategoryID      `json:"category_id"`
	GrantID        GrantID         `json:"grant_id"`
	Name           string          `json:"category_name"`
	BudgetedAmount decimal.Decimal `json:"budgeted_amount"`
}

// Expense amounts may be negative (reversals).
type Expense struct {
	ID          ExpenseID       `json:"expense_id"`
	GrantID     GrantID         `json:"grant_id"`
	CategoryID  CategoryID      `json:"category_id"`
	Date        Date            `json:"expense_date"`
	Amount      decimal.Decimal `json:"amount"`
	Approval    ApprovalState   `json:"approval_state"`
	Vendor      string          `json:"vendor,omitempty"`
	Description string          `json:"description,omitempty"`
}

type Deliverable struct {
	ID             DeliverableID     `json:"deliverable_id"`
	GrantID        GrantID           `json:"grant_id"`
	Name           string            `json:"deliverable_name"`
	DueDate        Date              `json:"due_date"`
	Status         DeliverableStatus `json:"status"`
	CompletionDate Date              `json:"completion_date"`
}

// IsComplete reports whether the deliverable no longer needs tracking.
func (d Deliverable) IsComplete() bool { return d.Status == DeliverableCompleted }

type OutcomeMetric struct {
	ID                MetricID        `json:"metric_id"`
	GrantID           GrantID         `json:"grant_id"`
	Name              string          `json:"metric_name"`
	TargetValue       decimal.Decimal `json:"target_value"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	Unit              string          `json:"unit_of_measure"`
	MeasurementPeriod string          `json:"measurement_period"`
}

type Report struct {
	ID             ReportID     `json:"report_id"`
	GrantID        GrantID      `json:"grant_id"`
	ReportType     string       `json:"report_type"`
	DueDate        Date         `json:"due_date"`
	SubmissionDate Date         `json:"submission_date"`
	Status         ReportStatus `json:"status"`
}

// IsSubmitted is true once the report has been handed in, late or not.
func (r Report) IsSubmitted() bool {
	return r.Status == ReportSubmitted || !r.SubmissionDate.IsZero()
}

// =============================================================================
// RATIO - Division result with an explicit undefined state
// =============================================================================

// RatioPrecision is the number of decimal places ratios are rounded to.
const RatioPrecision = 6

// Ratio is num/den, or undefined when den is zero.
type Ratio struct {
	Value   decimal.Decimal
	Defined bool
}

// Undefined is the sentinel for a division by zero.
var Undefined = Ratio{}

// NewRatio divides num by den, returning Undefined when den is zero.
func NewRatio(num, den decimal.Decimal) Ratio {
	if den.IsZero() {
		return Undefined
	}
	return Ratio{Value: num.DivRound(den, RatioPrecision), Defined: true}
}

// Float64 returns the value and whether it is defined.
func (r Ratio) Float64() (float64, bool) {
	if !r.Defined {
		return 0, false
	}
	return r.Value.InexactFloat64(), true
}

func (r Ratio) String() string {
	if !r.Defined {
		return "undefined"
	}
	return r.Value.String()
}

// MarshalJSON encodes an undefined ratio as null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value.InexactFloat64())
}
