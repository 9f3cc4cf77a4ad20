/*
store.go - Read contract between the analytics engine and the external store

PURPOSE:
  The engine never writes. It reads Grant, BudgetCategory, Expense,
  Deliverable, OutcomeMetric and Report collections, either for one grant or
  for the whole portfolio, once per invocation, and computes over that
  immutable Snapshot.

FILTERING:
  Every collection accepts a Filter. The zero Filter means "everything".
  Filter{GrantID: "g-1"} restricts the read to one grant's records.

TIMEOUTS:
  Timeouts apply only here, at the fetch boundary. LoadSnapshot honours the
  context deadline; the in-memory computation afterwards never blocks.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite-backed store
  - grant/store/memory.go: In-memory store for tests and the CLI

SEE ALSO:
  - snapshot.go: Snapshot and per-grant grouping
*/
package grant

import (
	"context"
	"fmt"
)

// Filter restricts a read to a single grant. Zero value = all grants.
type Filter struct {
	GrantID GrantID
}

// Matches returns true if a record owned by id passes the filter.
func (f Filter) Matches(id GrantID) bool {
	return f.GrantID == "" || f.GrantID == id
}

// Reader is the read-only store contract the engine depends on.
type Reader interface {
	Grants(ctx context.Context, f Filter) ([]Grant, error)
	BudgetCategories(ctx context.Context, f Filter) ([]BudgetCategory, error)
	Expenses(ctx context.Context, f Filter) ([]Expense, error)
	Deliverables(ctx context.Context, f Filter) ([]Deliverable, error)
	OutcomeMetrics(ctx context.Context, f Filter) ([]OutcomeMetric, error)
	Reports(ctx context.Context, f Filter) ([]Report, error)
}

// SnapshotReader is implemented by stores that can read every collection in
// one consistent pass, reporting per-record decode failures (e.g. a malformed
// date column) in Snapshot.LoadIssues instead of failing the read.
type SnapshotReader interface {
	Snapshot(ctx context.Context, f Filter) (Snapshot, error)
}

// LoadSnapshot reads every collection through r, in a single pass when r is a
// SnapshotReader. Any read failure is fatal for the run and wrapped with
// ErrSnapshotFetch.
func LoadSnapshot(ctx context.Context, r Reader, f Filter) (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	fail := func(what string, err error) (Snapshot, error) {
		return Snapshot{}, fmt.Errorf("%w: %s: %w", ErrSnapshotFetch, what, err)
	}

	if sr, ok := r.(SnapshotReader); ok {
		if snap, err = sr.Snapshot(ctx, f); err != nil {
			return fail("snapshot", err)
		}
		if f.GrantID != "" && len(snap.Grants) == 0 {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrGrantNotFound, f.GrantID)
		}
		if err := ctx.Err(); err != nil {
			return fail("context", err)
		}
		return snap, nil
	}

	if snap.Grants, err = r.Grants(ctx, f); err != nil {
		return fail("grants", err)
	}
	if f.GrantID != "" && len(snap.Grants) == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrGrantNotFound, f.GrantID)
	}
	if snap.Categories, err = r.BudgetCategories(ctx, f); err != nil {
		return fail("budget categories", err)
	}
	if snap.Expenses, err = r.Expenses(ctx, f); err != nil {
		return fail("expenses", err)
	}
	if snap.Deliverables, err = r.Deliverables(ctx, f); err != nil {
		return fail("deliverables", err)
	}
	if snap.Metrics, err = r.OutcomeMetrics(ctx, f); err != nil {
		return fail("outcome metrics", err)
	}
	if snap.Reports, err = r.Reports(ctx, f); err != nil {
		return fail("reports", err)
	}
	if err := ctx.Err(); err != nil {
		return fail("context", err)
	}
	return snap, nil
}
