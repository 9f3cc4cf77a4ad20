package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/grant/granttest"
)

func TestMemory_FilterByGrant(t *testing.T) {
	m := NewMemoryFrom(granttest.Portfolio())
	ctx := context.Background()

	snap, err := grant.LoadSnapshot(ctx, m, grant.Filter{GrantID: "G-002"})
	require.NoError(t, err)

	assert.Len(t, snap.Grants, 1)
	assert.Len(t, snap.Categories, 2)
	assert.Len(t, snap.Expenses, 4)
	assert.Empty(t, snap.Deliverables)
	assert.Len(t, snap.Metrics, 1)
	assert.Len(t, snap.Reports, 1)

	all, err := grant.LoadSnapshot(ctx, m, grant.Filter{})
	require.NoError(t, err)
	assert.Len(t, all.Grants, 2)
	assert.Len(t, all.Expenses, 7)
}

func TestMemory_UnknownGrant(t *testing.T) {
	m := NewMemoryFrom(granttest.Portfolio())

	_, err := grant.LoadSnapshot(context.Background(), m, grant.Filter{GrantID: "G-404"})
	assert.True(t, grant.IsNotFound(err))
}

func TestMemory_ReadsAreCopies(t *testing.T) {
	// GIVEN: A store seeded from a snapshot
	src := granttest.Portfolio()
	m := NewMemoryFrom(src)

	// WHEN: Mutating both the source and a read result
	src.Grants[0].Name = "changed"
	got, err := m.Grants(context.Background(), grant.Filter{})
	require.NoError(t, err)
	got[0].Name = "changed again"

	// THEN: The store is unaffected
	again, err := m.Grants(context.Background(), grant.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "Youth Literacy", again[0].Name)
}

func TestMemory_Add(t *testing.T) {
	m := NewMemory()
	m.AddGrant(grant.Grant{ID: "G-1", StartDate: granttest.AsOf, EndDate: granttest.AsOf.AddDays(365)})
	m.AddCategory(grant.BudgetCategory{ID: "C-1", GrantID: "G-1", BudgetedAmount: decimal.NewFromInt(100)})
	m.AddExpense(grant.Expense{ID: "E-1", GrantID: "G-1", CategoryID: "C-1", Date: granttest.AsOf, Amount: decimal.NewFromInt(40)})
	m.AddDeliverable(grant.Deliverable{ID: "D-1", GrantID: "G-1", DueDate: granttest.AsOf})
	m.AddMetric(grant.OutcomeMetric{ID: "M-1", GrantID: "G-1"})
	m.AddReport(grant.Report{ID: "R-1", GrantID: "G-1", DueDate: granttest.AsOf})

	snap, err := grant.LoadSnapshot(context.Background(), m, grant.Filter{GrantID: "G-1"})
	require.NoError(t, err)
	assert.Len(t, snap.Expenses, 1)
	assert.Len(t, snap.Deliverables, 1)
	assert.Len(t, snap.Metrics, 1)
	assert.Len(t, snap.Reports, 1)
}

func TestLoadSnapshot_CancelledContext(t *testing.T) {
	m := NewMemoryFrom(granttest.Portfolio())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := grant.LoadSnapshot(ctx, m, grant.Filter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, grant.ErrSnapshotFetch)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingReader struct {
	grant.Reader
}

func (failingReader) Reports(context.Context, grant.Filter) ([]grant.Report, error) {
	return nil, errors.New("connection reset")
}

func TestLoadSnapshot_ReadFailureIsFatal(t *testing.T) {
	r := failingReader{NewMemoryFrom(granttest.Portfolio())}

	_, err := grant.LoadSnapshot(context.Background(), r, grant.Filter{})

	require.Error(t, err)
	assert.ErrorIs(t, err, grant.ErrSnapshotFetch)
	assert.Contains(t, err.Error(), "reports")
	assert.True(t, grant.IsFatal(err))
}

func TestMemory_SnapshotKeepsLoadIssues(t *testing.T) {
	// GIVEN: A store seeded with a snapshot carrying a load issue for G-002
	snap := granttest.Portfolio()
	snap.LoadIssues = []grant.Issue{{
		Kind: grant.KindExpense, RecordID: "E-005", GrantID: "G-002",
		Code: grant.IssueMalformedAmount, Severity: grant.SeverityError,
	}}
	m := NewMemoryFrom(snap)
	ctx := context.Background()

	// WHEN: Loading the whole portfolio and then only G-001
	all, err := grant.LoadSnapshot(ctx, m, grant.Filter{})
	require.NoError(t, err)
	one, err := grant.LoadSnapshot(ctx, m, grant.Filter{GrantID: "G-001"})
	require.NoError(t, err)

	// THEN: The issue follows its grant through the filter
	require.Len(t, all.LoadIssues, 1)
	assert.Equal(t, "E-005", all.LoadIssues[0].RecordID)
	assert.Empty(t, one.LoadIssues)
	assert.Len(t, one.Grants, 1)
}
