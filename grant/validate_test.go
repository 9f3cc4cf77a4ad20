package grant_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/grant/granttest"
)

func codes(issues []grant.Issue) map[string]grant.IssueCode {
	out := make(map[string]grant.IssueCode, len(issues))
	for _, is := range issues {
		out[is.RecordID] = is.Code
	}
	return out
}

func TestValidate_CleanPortfolio(t *testing.T) {
	snap := granttest.Portfolio()

	clean, issues := grant.Validate(snap)

	assert.Empty(t, issues)
	assert.Len(t, clean.Grants, 2)
	assert.Len(t, clean.Categories, 4)
	assert.Len(t, clean.Expenses, 7)
	assert.Len(t, clean.Deliverables, 4)
	assert.Len(t, clean.Metrics, 4)
	assert.Len(t, clean.Reports, 3)
}

func TestValidate_InvalidGrantDropsItsRecords(t *testing.T) {
	// GIVEN: G-002 has an end date before its start date
	snap := granttest.Portfolio()
	snap.Grants[1].EndDate = grant.MustParseDate("2024-01-01")

	// WHEN: Validating
	clean, issues := grant.Validate(snap)

	// THEN: One error for the grant, nothing for its children
	require.Len(t, issues, 1)
	assert.Equal(t, grant.KindGrant, issues[0].Kind)
	assert.Equal(t, grant.IssueInvalidWindow, issues[0].Code)
	assert.True(t, issues[0].Excludes())

	// AND: G-001 is fully kept
	require.Len(t, clean.Grants, 1)
	assert.Equal(t, grant.GrantID("G-001"), clean.Grants[0].ID)
	assert.Len(t, clean.Categories, 2)
	assert.Len(t, clean.Expenses, 3)
	assert.Len(t, clean.Reports, 2)
}

func TestValidate_RecordIssues(t *testing.T) {
	snap := granttest.Portfolio()

	// Expense pointing at a category of another grant
	snap.Expenses = append(snap.Expenses, grant.Expense{
		ID: "E-100", GrantID: "G-001", CategoryID: "C-003",
		Date: grant.MustParseDate("2025-03-01"), Amount: decimal.NewFromInt(10),
	})
	// Expense outside the window: kept, flagged
	snap.Expenses = append(snap.Expenses, grant.Expense{
		ID: "E-101", GrantID: "G-001", CategoryID: "C-002",
		Date: grant.MustParseDate("2026-02-01"), Amount: decimal.NewFromInt(10),
	})
	// Expense without a date
	snap.Expenses = append(snap.Expenses, grant.Expense{
		ID: "E-102", GrantID: "G-001", CategoryID: "C-002", Amount: decimal.NewFromInt(10),
	})
	// Duplicate expense ID
	snap.Expenses = append(snap.Expenses, snap.Expenses[0])
	// Dangling grant reference
	snap.Deliverables = append(snap.Deliverables, grant.Deliverable{
		ID: "D-100", GrantID: "G-404", DueDate: grant.MustParseDate("2025-08-01"),
	})
	// Completed without a completion date: kept, flagged
	snap.Deliverables = append(snap.Deliverables, grant.Deliverable{
		ID: "D-101", GrantID: "G-001", DueDate: grant.MustParseDate("2025-08-01"), Status: grant.DeliverableCompleted,
	})
	// Negative category budget
	snap.Categories = append(snap.Categories, grant.BudgetCategory{
		ID: "C-100", GrantID: "G-001", BudgetedAmount: decimal.NewFromInt(-1),
	})
	// Report without a due date
	snap.Reports = append(snap.Reports, grant.Report{ID: "R-100", GrantID: "G-002"})

	clean, issues := grant.Validate(snap)

	got := codes(issues)
	assert.Equal(t, grant.IssueCategoryMismatch, got["E-100"])
	assert.Equal(t, grant.IssueOutOfWindow, got["E-101"])
	assert.Equal(t, grant.IssueMissingDate, got["E-102"])
	assert.Equal(t, grant.IssueDuplicateID, got["E-001"])
	assert.Equal(t, grant.IssueDanglingReference, got["D-100"])
	assert.Equal(t, grant.IssueCompletionMismatch, got["D-101"])
	assert.Equal(t, grant.IssueNegativeAmount, got["C-100"])
	assert.Equal(t, grant.IssueMissingDate, got["R-100"])

	// Warnings keep their record, errors drop it
	assert.Len(t, clean.Expenses, 8) // 7 + E-101
	assert.Len(t, clean.Deliverables, 5)
	assert.Len(t, clean.Categories, 4)
	assert.Len(t, clean.Reports, 3)
}

func TestValidate_DuplicateOfRejectedRecord(t *testing.T) {
	// GIVEN: A category and a grant whose first copies are invalid, each
	//        followed by a valid record reusing the same ID
	snap := granttest.Portfolio()
	badCat := snap.Categories[0]
	badCat.BudgetedAmount = decimal.NewFromInt(-1)
	snap.Categories = append([]grant.BudgetCategory{badCat}, snap.Categories...)

	badGrant := snap.Grants[1]
	badGrant.EndDate = grant.Date{}
	snap.Grants = append([]grant.Grant{badGrant}, snap.Grants...)

	// WHEN: Validating
	clean, issues := grant.Validate(snap)

	// THEN: The second copies are reported as duplicates, not accepted
	var dupCategory, dupGrant bool
	for _, is := range issues {
		if is.Code != grant.IssueDuplicateID {
			continue
		}
		switch {
		case is.Kind == grant.KindCategory && is.RecordID == string(badCat.ID):
			dupCategory = true
		case is.Kind == grant.KindGrant && is.RecordID == string(badGrant.ID):
			dupGrant = true
		}
	}
	assert.True(t, dupCategory, "duplicate category reported")
	assert.True(t, dupGrant, "duplicate grant reported")

	for _, c := range clean.Categories {
		assert.NotEqual(t, badCat.ID, c.ID)
	}
	require.Len(t, clean.Grants, 1)
	assert.Equal(t, grant.GrantID("G-001"), clean.Grants[0].ID)
}

func TestValidate_BudgetExceedsAwardIsWarning(t *testing.T) {
	snap := granttest.Portfolio()
	snap.Categories[0].BudgetedAmount = decimal.NewFromInt(70000)

	clean, issues := grant.Validate(snap)

	require.Len(t, issues, 1)
	assert.Equal(t, grant.IssueBudgetExceedsAward, issues[0].Code)
	assert.Equal(t, grant.SeverityWarning, issues[0].Severity)
	assert.Len(t, clean.Grants, 2)
}

func TestValidate_LoadIssuesExcludeRecords(t *testing.T) {
	// GIVEN: The store could not decode E-004's amount
	snap := granttest.Portfolio()
	snap.LoadIssues = []grant.Issue{{
		Kind: grant.KindExpense, RecordID: "E-004", GrantID: "G-002",
		Code: grant.IssueMalformedAmount, Severity: grant.SeverityError, Message: `amount "n/a" is not a number`,
	}}

	clean, issues := grant.Validate(snap)

	require.Len(t, issues, 1)
	assert.Equal(t, grant.IssueMalformedAmount, issues[0].Code)
	assert.Len(t, clean.Expenses, 6)
	for _, e := range clean.Expenses {
		assert.NotEqual(t, grant.ExpenseID("E-004"), e.ID)
	}
}

func TestValidate_IssuesAreSorted(t *testing.T) {
	snap := granttest.Portfolio()
	snap.Reports = append(snap.Reports, grant.Report{ID: "R-100", GrantID: "G-002"})
	snap.Grants = append(snap.Grants, grant.Grant{ID: "G-003"})

	_, issues := grant.Validate(snap)

	require.Len(t, issues, 2)
	assert.Equal(t, grant.KindGrant, issues[0].Kind)
	assert.Equal(t, grant.KindReport, issues[1].Kind)
}

func TestIssue_Err(t *testing.T) {
	is := grant.Issue{Kind: grant.KindExpense, RecordID: "E-1", Code: grant.IssueMissingDate, Message: "expense date is missing"}

	err := is.Err()
	assert.ErrorIs(t, err, grant.ErrInvalidInput)
	assert.Contains(t, err.Error(), "E-1")
	assert.False(t, grant.IsFatal(err))
}

func TestByGrant_GroupsAndSorts(t *testing.T) {
	snap := granttest.Portfolio()
	// Reverse the expense order; grouping restores ID order
	for i, j := 0, len(snap.Expenses)-1; i < j; i, j = i+1, j-1 {
		snap.Expenses[i], snap.Expenses[j] = snap.Expenses[j], snap.Expenses[i]
	}

	groups := snap.ByGrant()

	require.Len(t, groups, 2)
	assert.Equal(t, grant.GrantID("G-001"), groups[0].Grant.ID)
	require.Len(t, groups[0].Expenses, 3)
	assert.Equal(t, grant.ExpenseID("E-001"), groups[0].Expenses[0].ID)
	assert.Len(t, groups[1].Expenses, 4)
	assert.Len(t, groups[1].Metrics, 1)
}
