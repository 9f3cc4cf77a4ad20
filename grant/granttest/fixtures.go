// Package granttest provides a small, fully worked grant portfolio for tests.
//
// Portfolio evaluated as of 2025-06-30 with the default configuration:
//
//	G-001 Youth Literacy (Hope Foundation), award 100,000, 2025-01-01..2025-12-31
//	  C-001 Personnel 60,000, C-002 Supplies 40,000; spent 60,000 by day 180
//	  daily rate 333.333333, depletion 2025-10-28 (120 days)
//	  alerts: R-001 Overdue 61, D-001 Overdue 0, D-002 Tier30, D-003 Tier60
//	  outcomes: M-001 0.75 FallingShort, M-002 0.95 OnTrack, M-003 undefined
//	  score 100 - (27 + 30 + 15) = 28
//
//	G-002 Community Health (HHS), award 50,000, 2024-07-01..2026-06-30
//	  C-003 Programs 50,000 spent 55,000 (pending included), C-004 Travel 0 spent 500
//	  E-007 rejected, excluded; total spent 55,500, depleted today
//	  alerts: R-003 Tier90
//	  outcomes: M-004 1.20 Exceeding
//	  score 100 - (1 + 1 + 0) = 98
//
//	portfolio (100,000*28 + 50,000*98) / 150,000 = 51.33
package granttest

import (
	"github.com/shopspring/decimal"
	"github.com/warp/grant-engine/grant"
)

// AsOf is the evaluation date the expected figures above assume.
var AsOf = grant.NewDate(2025, 6, 30)

// Clock returns a clock pinned to AsOf.
func Clock() grant.Clock { return grant.FixedClock{Date: AsOf} }

func d(s string) grant.Date { return grant.MustParseDate(s) }

func n(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Portfolio returns the two-grant portfolio described in the package doc.
func Portfolio() grant.Snapshot {
	return grant.Snapshot{
		Grants: []grant.Grant{
			{
				ID: "G-001", Name: "Youth Literacy", FunderName: "Hope Foundation",
				FunderType: grant.FunderFoundation, AwardAmount: n("100000"),
				StartDate: d("2025-01-01"), EndDate: d("2025-12-31"),
				Status: grant.GrantActive, ReportingFrequency: grant.ReportingQuarterly,
			},
			{
				ID: "G-002", Name: "Community Health", FunderName: "HHS",
				FunderType: grant.FunderFederal, AwardAmount: n("50000"),
				StartDate: d("2024-07-01"), EndDate: d("2026-06-30"),
				Status: grant.GrantActive, ReportingFrequency: grant.ReportingAnnual,
			},
		},
		Categories: []grant.BudgetCategory{
			{ID: "C-001", GrantID: "G-001", Name: "Personnel", BudgetedAmount: n("60000")},
			{ID: "C-002", GrantID: "G-001", Name: "Supplies", BudgetedAmount: n("40000")},
			{ID: "C-003", GrantID: "G-002", Name: "Programs", BudgetedAmount: n("50000")},
			{ID: "C-004", GrantID: "G-002", Name: "Travel", BudgetedAmount: n("0")},
		},
		Expenses: []grant.Expense{
			{ID: "E-001", GrantID: "G-001", CategoryID: "C-001", Date: d("2025-02-15"), Amount: n("30000"), Approval: grant.ApprovalApproved, Vendor: "Payroll"},
			{ID: "E-002", GrantID: "G-001", CategoryID: "C-001", Date: d("2025-05-01"), Amount: n("25000"), Approval: grant.ApprovalApproved, Vendor: "Payroll"},
			{ID: "E-003", GrantID: "G-001", CategoryID: "C-002", Date: d("2025-03-10"), Amount: n("5000"), Approval: grant.ApprovalApproved, Vendor: "Office Depot"},
			{ID: "E-004", GrantID: "G-002", CategoryID: "C-003", Date: d("2025-01-15"), Amount: n("45000"), Approval: grant.ApprovalApproved},
			{ID: "E-005", GrantID: "G-002", CategoryID: "C-003", Date: d("2025-06-01"), Amount: n("10000"), Approval: grant.ApprovalPending},
			{ID: "E-006", GrantID: "G-002", CategoryID: "C-004", Date: d("2025-02-01"), Amount: n("500"), Approval: grant.ApprovalApproved},
			{ID: "E-007", GrantID: "G-002", CategoryID: "C-003", Date: d("2025-03-01"), Amount: n("9999"), Approval: grant.ApprovalRejected},
		},
		Deliverables: []grant.Deliverable{
			{ID: "D-001", GrantID: "G-001", Name: "Tutor training", DueDate: d("2025-06-30"), Status: grant.DeliverableInProgress},
			{ID: "D-002", GrantID: "G-001", Name: "Summer program launch", DueDate: d("2025-07-30"), Status: grant.DeliverableInProgress},
			{ID: "D-003", GrantID: "G-001", Name: "Curriculum review", DueDate: d("2025-08-14"), Status: grant.DeliverableInProgress},
			{ID: "D-004", GrantID: "G-001", Name: "Site selection", DueDate: d("2025-03-01"), Status: grant.DeliverableCompleted, CompletionDate: d("2025-02-20")},
		},
		Metrics: []grant.OutcomeMetric{
			{ID: "M-001", GrantID: "G-001", Name: "Students enrolled", TargetValue: n("200"), CurrentValue: n("150"), Unit: "students"},
			{ID: "M-002", GrantID: "G-001", Name: "Tutors trained", TargetValue: n("100"), CurrentValue: n("95"), Unit: "tutors"},
			{ID: "M-003", GrantID: "G-001", Name: "Press mentions", TargetValue: n("0"), CurrentValue: n("3"), Unit: "mentions"},
			{ID: "M-004", GrantID: "G-002", Name: "Screenings", TargetValue: n("100"), CurrentValue: n("120"), Unit: "people"},
		},
		Reports: []grant.Report{
			{ID: "R-001", GrantID: "G-001", ReportType: "Q1 Progress", DueDate: d("2025-04-30"), Status: grant.ReportPending},
			{ID: "R-002", GrantID: "G-001", ReportType: "Q1 Financial", DueDate: d("2025-03-31"), SubmissionDate: d("2025-03-28"), Status: grant.ReportSubmitted},
			{ID: "R-003", GrantID: "G-002", ReportType: "Annual", DueDate: d("2025-09-28"), Status: grant.ReportPending},
		},
	}
}
