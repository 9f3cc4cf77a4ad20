package grant

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ISSUES - Per-record data-quality findings
// =============================================================================

type RecordKind string

const (
	KindGrant       RecordKind = "grant"
	KindCategory    RecordKind = "budget_category"
	KindExpense     RecordKind = "expense"
	KindDeliverable RecordKind = "deliverable"
	KindMetric      RecordKind = "outcome_metric"
	KindReport      RecordKind = "report"
)

// Severity decides whether a record is excluded (error) or only flagged (warning).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type IssueCode string

const (
	IssueMissingID          IssueCode = "missing_id"
	IssueDuplicateID        IssueCode = "duplicate_id"
	IssueMissingDate        IssueCode = "missing_date"
	IssueMalformedDate      IssueCode = "malformed_date"
	IssueMalformedAmount    IssueCode = "malformed_amount"
	IssueMalformedRecord    IssueCode = "malformed_record"
	IssueInvalidWindow      IssueCode = "invalid_window"
	IssueNegativeAmount     IssueCode = "negative_amount"
	IssueDanglingReference  IssueCode = "dangling_reference"
	IssueCategoryMismatch   IssueCode = "category_grant_mismatch"
	IssueOutOfWindow        IssueCode = "expense_out_of_window"
	IssueBudgetExceedsAward IssueCode = "budget_exceeds_award"
	IssueCompletionMismatch IssueCode = "completion_mismatch"
)

// Issue is one data-quality finding, returned alongside valid results.
type Issue struct {
	Kind     RecordKind `json:"record_kind"`
	RecordID string     `json:"record_id"`
	GrantID  GrantID    `json:"grant_id,omitempty"`
	Code     IssueCode  `json:"code"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
}

// Err converts the issue into a RecordError (errors.Is ErrInvalidInput).
func (i Issue) Err() error {
	return &RecordError{Kind: i.Kind, RecordID: i.RecordID, Code: i.Code, Message: i.Message}
}

// Excludes returns true if the issue removes its record from aggregates.
func (i Issue) Excludes() bool { return i.Severity == SeverityError }

var kindOrder = map[RecordKind]int{
	KindGrant: 0, KindCategory: 1, KindExpense: 2, KindDeliverable: 3, KindMetric: 4, KindReport: 5,
}

// SortIssues orders issues by record kind, record ID, then code.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		x, y := issues[a], issues[b]
		if kindOrder[x.Kind] != kindOrder[y.Kind] {
			return kindOrder[x.Kind] < kindOrder[y.Kind]
		}
		if x.RecordID != y.RecordID {
			return x.RecordID < y.RecordID
		}
		return x.Code < y.Code
	})
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks every record of s and returns the snapshot with invalid
// records removed plus the full issue list. It never fails: a bad record is
// excluded and reported, the rest of the batch is kept.
//
// Records owned by an excluded grant are dropped with it; the grant's own
// issue explains why.
func Validate(s Snapshot) (Snapshot, []Issue) {
	v := &validator{excluded: make(map[recordKey]bool)}
	rejectedGrants := make(map[GrantID]bool)
	for _, is := range s.LoadIssues {
		v.issues = append(v.issues, is)
		if is.Excludes() {
			v.excluded[recordKey{is.Kind, is.RecordID}] = true
			if is.Kind == KindGrant {
				rejectedGrants[GrantID(is.RecordID)] = true
			}
		}
	}

	var clean Snapshot

	grants := make(map[GrantID]Grant)
	seenGrants := make(map[GrantID]bool)
	for _, g := range s.Grants {
		duplicate := seenGrants[g.ID]
		seenGrants[g.ID] = true
		if v.validGrant(g, duplicate) {
			grants[g.ID] = g
			clean.Grants = append(clean.Grants, g)
		} else if g.ID != "" {
			if _, ok := grants[g.ID]; !ok {
				rejectedGrants[g.ID] = true
			}
		}
	}

	owner := func(kind RecordKind, id string, gid GrantID) (Grant, bool) {
		if g, ok := grants[gid]; ok {
			return g, true
		}
		if !rejectedGrants[gid] {
			v.add(kind, id, gid, IssueDanglingReference, SeverityError,
				fmt.Sprintf("references unknown grant %q", gid))
		}
		return Grant{}, false
	}

	categories := make(map[CategoryID]BudgetCategory)
	seenCategories := make(map[CategoryID]bool)
	budgetByGrant := make(map[GrantID]decimal.Decimal)
	for _, c := range s.Categories {
		id := string(c.ID)
		if !v.checkID(KindCategory, id, c.GrantID, seenCategories[c.ID]) {
			continue
		}
		seenCategories[c.ID] = true
		if _, ok := owner(KindCategory, id, c.GrantID); !ok {
			continue
		}
		if c.BudgetedAmount.IsNegative() {
			v.add(KindCategory, id, c.GrantID, IssueNegativeAmount, SeverityError,
				fmt.Sprintf("budgeted amount %s is negative", c.BudgetedAmount))
			continue
		}
		categories[c.ID] = c
		budgetByGrant[c.GrantID] = budgetByGrant[c.GrantID].Add(c.BudgetedAmount)
		clean.Categories = append(clean.Categories, c)
	}
	for _, g := range clean.Grants {
		total := budgetByGrant[g.ID]
		if total.GreaterThan(g.AwardAmount) {
			v.add(KindGrant, string(g.ID), g.ID, IssueBudgetExceedsAward, SeverityWarning,
				fmt.Sprintf("category budgets total %s exceed award %s", total, g.AwardAmount))
		}
	}

	seenExpenses := make(map[ExpenseID]bool)
	for _, e := range s.Expenses {
		id := string(e.ID)
		if !v.checkID(KindExpense, id, e.GrantID, seenExpenses[e.ID]) {
			continue
		}
		seenExpenses[e.ID] = true
		g, ok := owner(KindExpense, id, e.GrantID)
		if !ok {
			continue
		}
		c, ok := categories[e.CategoryID]
		if !ok {
			v.add(KindExpense, id, e.GrantID, IssueDanglingReference, SeverityError,
				fmt.Sprintf("references unknown budget category %q", e.CategoryID))
			continue
		}
		if c.GrantID != e.GrantID {
			v.add(KindExpense, id, e.GrantID, IssueCategoryMismatch, SeverityError,
				fmt.Sprintf("category %q belongs to grant %q", c.ID, c.GrantID))
			continue
		}
		if e.Date.IsZero() {
			v.add(KindExpense, id, e.GrantID, IssueMissingDate, SeverityError, "expense date is missing")
			continue
		}
		if !g.Window().Contains(e.Date) {
			v.add(KindExpense, id, e.GrantID, IssueOutOfWindow, SeverityWarning,
				fmt.Sprintf("dated %s, outside grant window %s", e.Date, g.Window()))
		}
		clean.Expenses = append(clean.Expenses, e)
	}

	seenDeliverables := make(map[DeliverableID]bool)
	for _, d := range s.Deliverables {
		id := string(d.ID)
		if !v.checkID(KindDeliverable, id, d.GrantID, seenDeliverables[d.ID]) {
			continue
		}
		seenDeliverables[d.ID] = true
		if _, ok := owner(KindDeliverable, id, d.GrantID); !ok {
			continue
		}
		if d.DueDate.IsZero() {
			v.add(KindDeliverable, id, d.GrantID, IssueMissingDate, SeverityError, "due date is missing")
			continue
		}
		if d.IsComplete() == d.CompletionDate.IsZero() {
			v.add(KindDeliverable, id, d.GrantID, IssueCompletionMismatch, SeverityWarning,
				fmt.Sprintf("status %s inconsistent with completion date %q", d.Status, d.CompletionDate))
		}
		clean.Deliverables = append(clean.Deliverables, d)
	}

	seenMetrics := make(map[MetricID]bool)
	for _, m := range s.Metrics {
		id := string(m.ID)
		if !v.checkID(KindMetric, id, m.GrantID, seenMetrics[m.ID]) {
			continue
		}
		seenMetrics[m.ID] = true
		if _, ok := owner(KindMetric, id, m.GrantID); !ok {
			continue
		}
		clean.Metrics = append(clean.Metrics, m)
	}

	seenReports := make(map[ReportID]bool)
	for _, r := range s.Reports {
		id := string(r.ID)
		if !v.checkID(KindReport, id, r.GrantID, seenReports[r.ID]) {
			continue
		}
		seenReports[r.ID] = true
		if _, ok := owner(KindReport, id, r.GrantID); !ok {
			continue
		}
		if r.DueDate.IsZero() {
			v.add(KindReport, id, r.GrantID, IssueMissingDate, SeverityError, "due date is missing")
			continue
		}
		clean.Reports = append(clean.Reports, r)
	}

	SortIssues(v.issues)
	return clean, v.issues
}

type recordKey struct {
	kind RecordKind
	id   string
}

type validator struct {
	issues   []Issue
	excluded map[recordKey]bool
}

func (v *validator) add(kind RecordKind, id string, gid GrantID, code IssueCode, sev Severity, msg string) {
	v.issues = append(v.issues, Issue{
		Kind: kind, RecordID: id, GrantID: gid, Code: code, Severity: sev, Message: msg,
	})
}

// checkID rejects records with no ID, duplicates, and records the store
// already excluded while decoding.
func (v *validator) checkID(kind RecordKind, id string, gid GrantID, duplicate bool) bool {
	if v.excluded[recordKey{kind, id}] {
		return false
	}
	if id == "" {
		v.add(kind, id, gid, IssueMissingID, SeverityError, "record has no identifier")
		return false
	}
	if duplicate {
		v.add(kind, id, gid, IssueDuplicateID, SeverityError, "identifier already used by another record")
		return false
	}
	return true
}

func (v *validator) validGrant(g Grant, duplicate bool) bool {
	id := string(g.ID)
	if !v.checkID(KindGrant, id, g.ID, duplicate) {
		return false
	}
	switch {
	case g.StartDate.IsZero() || g.EndDate.IsZero():
		v.add(KindGrant, id, g.ID, IssueMissingDate, SeverityError, "start or end date is missing")
		return false
	case !g.EndDate.After(g.StartDate):
		v.add(KindGrant, id, g.ID, IssueInvalidWindow, SeverityError,
			fmt.Sprintf("end date %s is not after start date %s", g.EndDate, g.StartDate))
		return false
	case g.AwardAmount.IsNegative():
		v.add(KindGrant, id, g.ID, IssueNegativeAmount, SeverityError,
			fmt.Sprintf("award amount %s is negative", g.AwardAmount))
		return false
	}
	return true
}
