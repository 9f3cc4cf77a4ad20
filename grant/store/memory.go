// Package store provides in-memory grant.Reader implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/grant-engine/grant"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds a portfolio in memory. Writes replace or append records;
// reads return copies so callers can never mutate stored state.
//
// Load issues of a seeded snapshot (e.g. one decoded from a JSON file) are
// kept and returned by Snapshot for the grants they belong to.
type Memory struct {
	mu   sync.RWMutex
	data grant.Snapshot
}

func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryFrom seeds a store with an existing snapshot.
func NewMemoryFrom(s grant.Snapshot) *Memory {
	m := NewMemory()
	m.Load(s)
	return m
}

// Load replaces the whole store content.
func (m *Memory) Load(s grant.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = grant.Snapshot{
		Grants:       append([]grant.Grant(nil), s.Grants...),
		Categories:   append([]grant.BudgetCategory(nil), s.Categories...),
		Expenses:     append([]grant.Expense(nil), s.Expenses...),
		Deliverables: append([]grant.Deliverable(nil), s.Deliverables...),
		Metrics:      append([]grant.OutcomeMetric(nil), s.Metrics...),
		Reports:      append([]grant.Report(nil), s.Reports...),
		LoadIssues:   append([]grant.Issue(nil), s.LoadIssues...),
	}
}

func (m *Memory) AddGrant(g grant.Grant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Grants = append(m.data.Grants, g)
}

func (m *Memory) AddCategory(c grant.BudgetCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Categories = append(m.data.Categories, c)
}

func (m *Memory) AddExpense(e grant.Expense) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Expenses = append(m.data.Expenses, e)
}

func (m *Memory) AddDeliverable(d grant.Deliverable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Deliverables = append(m.data.Deliverables, d)
}

func (m *Memory) AddMetric(om grant.OutcomeMetric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Metrics = append(m.data.Metrics, om)
}

func (m *Memory) AddReport(r grant.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Reports = append(m.data.Reports, r)
}

// =============================================================================
// READER
// =============================================================================

func (m *Memory) Grants(ctx context.Context, f grant.Filter) ([]grant.Grant, error) {
	return read(ctx, m, func(s *grant.Snapshot) []grant.Grant { return s.Grants }, f, func(g grant.Grant) grant.GrantID { return g.ID })
}

func (m *Memory) BudgetCategories(ctx context.Context, f grant.Filter) ([]grant.BudgetCategory, error) {
	return read(ctx, m, func(s *grant.Snapshot) []grant.BudgetCategory { return s.Categories }, f, func(c grant.BudgetCategory) grant.GrantID { return c.GrantID })
}

func (m *Memory) Expenses(ctx context.Context, f grant.Filter) ([]grant.Expense, error) {
	return read(ctx, m, func(s *grant.Snapshot) []grant.Expense { return s.Expenses }, f, func(e grant.Expense) grant.GrantID { return e.GrantID })
}

func (m *Memory) Deliverables(ctx context.Context, f grant.Filter) ([]grant.Deliverable, error) {
	return read(ctx, m, func(s *grant.Snapshot) []grant.Deliverable { return s.Deliverables }, f, func(d grant.Deliverable) grant.GrantID { return d.GrantID })
}

func (m *Memory) OutcomeMetrics(ctx context.Context, f grant.Filter) ([]grant.OutcomeMetric, error) {
	return read(ctx, m, func(s *grant.Snapshot) []grant.OutcomeMetric { return s.Metrics }, f, func(om grant.OutcomeMetric) grant.GrantID { return om.GrantID })
}

func (m *Memory) Reports(ctx context.Context, f grant.Filter) ([]grant.Report, error) {
	return read(ctx, m, func(s *grant.Snapshot) []grant.Report { return s.Reports }, f, func(r grant.Report) grant.GrantID { return r.GrantID })
}

// read copies the records of the selected collection that pass f.
func read[T any](ctx context.Context, m *Memory, collection func(*grant.Snapshot) []T, f grant.Filter, owner func(T) grant.GrantID) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return filter(collection(&m.data), f, owner), nil
}

// Snapshot reads every collection selected by f under one lock.
func (m *Memory) Snapshot(ctx context.Context, f grant.Filter) (grant.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return grant.Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return grant.Snapshot{
		Grants:       filter(m.data.Grants, f, func(g grant.Grant) grant.GrantID { return g.ID }),
		Categories:   filter(m.data.Categories, f, func(c grant.BudgetCategory) grant.GrantID { return c.GrantID }),
		Expenses:     filter(m.data.Expenses, f, func(e grant.Expense) grant.GrantID { return e.GrantID }),
		Deliverables: filter(m.data.Deliverables, f, func(d grant.Deliverable) grant.GrantID { return d.GrantID }),
		Metrics:      filter(m.data.Metrics, f, func(om grant.OutcomeMetric) grant.GrantID { return om.GrantID }),
		Reports:      filter(m.data.Reports, f, func(r grant.Report) grant.GrantID { return r.GrantID }),
		LoadIssues:   filter(m.data.LoadIssues, f, func(is grant.Issue) grant.GrantID { return is.GrantID }),
	}, nil
}

func filter[T any](items []T, f grant.Filter, owner func(T) grant.GrantID) []T {
	var result []T
	for _, it := range items {
		if f.Matches(owner(it)) {
			result = append(result, it)
		}
	}
	return result
}
