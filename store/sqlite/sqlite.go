/*
Package sqlite provides a SQLite-backed implementation of grant.Reader.

PURPOSE:
  Stores the grant portfolio in the same tables the program staff already
  maintain (grants, budget_categories, expenses, deliverables,
  outcome_metrics, reports) and serves them to the analytics engine through
  the read contract. It also keeps a history of engine refresh runs.

READ CONTRACT:
  grant.Reader:         Filtered collection reads
  grant.SnapshotReader: Every collection in one read-only transaction

  A row that fails to decode is still returned with the bad field left at its
  zero value, and Snapshot.LoadIssues reports it with severity error.
  Validation then excludes it, and anything it owns, from every aggregate.

WRITES:
  The engine never writes. Save*, Import and Replace exist for the CLI import
  path and for tests; they upsert on the primary key.

KEY TABLES:
  grants, budget_categories, expenses, deliverables, outcome_metrics, reports:
                Portfolio records. Dates are YYYY-MM-DD text, amounts are
                decimal text (REAL columns from older databases also decode).
  refresh_runs: One row per engine refresh (scheduler or POST /api/refresh)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to a
  single connection, since every new connection would open an empty one.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/grants.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := analytics.NewService(store, engine, logger)

MIGRATION:
  Schema is auto-migrated on New(). Columns added since the original layout
  (expenses.approval_state) are added in place when missing.

SEE ALSO:
  - grant/store.go: Reader contract
  - grant/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/grant-engine/grant"
)

// Store implements grant.Reader using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grants (
		grant_id TEXT PRIMARY KEY,
		grant_name TEXT NOT NULL,
		funder_name TEXT NOT NULL,
		funder_type TEXT,
		total_amount TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT,
		grant_officer TEXT,
		purpose TEXT,
		reporting_frequency TEXT
	);

	CREATE TABLE IF NOT EXISTS budget_categories (
		category_id TEXT PRIMARY KEY,
		grant_id TEXT NOT NULL,
		category_name TEXT NOT NULL,
		budgeted_amount TEXT NOT NULL,
		FOREIGN KEY (grant_id) REFERENCES grants(grant_id)
	);

	CREATE INDEX IF NOT EXISTS idx_budget_categories_grant
		ON budget_categories(grant_id);

	CREATE TABLE IF NOT EXISTS expenses (
		expense_id TEXT PRIMARY KEY,
		grant_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		expense_date TEXT NOT NULL,
		vendor TEXT,
		description TEXT,
		amount TEXT NOT NULL,
		approved_by TEXT,
		FOREIGN KEY (grant_id) REFERENCES grants(grant_id),
		FOREIGN KEY (category_id) REFERENCES budget_categories(category_id)
	);

	-- Hot path: per-grant spend roll-up
	CREATE INDEX IF NOT EXISTS idx_expenses_grant_category
		ON expenses(grant_id, category_id);

	CREATE TABLE IF NOT EXISTS deliverables (
		deliverable_id TEXT PRIMARY KEY,
		grant_id TEXT NOT NULL,
		deliverable_name TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT,
		completion_date TEXT,
		notes TEXT,
		FOREIGN KEY (grant_id) REFERENCES grants(grant_id)
	);

	CREATE INDEX IF NOT EXISTS idx_deliverables_grant_due
		ON deliverables(grant_id, due_date);

	CREATE TABLE IF NOT EXISTS outcome_metrics (
		metric_id TEXT PRIMARY KEY,
		grant_id TEXT NOT NULL,
		metric_name TEXT NOT NULL,
		target_value TEXT NOT NULL,
		current_value TEXT DEFAULT '0',
		measurement_period TEXT,
		unit_of_measure TEXT,
		FOREIGN KEY (grant_id) REFERENCES grants(grant_id)
	);

	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		grant_id TEXT NOT NULL,
		report_type TEXT NOT NULL,
		due_date TEXT NOT NULL,
		submission_date TEXT,
		status TEXT,
		submitted_by TEXT,
		FOREIGN KEY (grant_id) REFERENCES grants(grant_id)
	);

	CREATE INDEX IF NOT EXISTS idx_reports_grant_due
		ON reports(grant_id, due_date);

	-- Engine refresh history
	CREATE TABLE IF NOT EXISTS refresh_runs (
		id TEXT PRIMARY KEY,
		run_trigger TEXT NOT NULL,
		as_of TEXT,
		status TEXT NOT NULL,
		grants INTEGER DEFAULT 0,
		alerts INTEGER DEFAULT 0,
		issues INTEGER DEFAULT 0,
		portfolio_score TEXT,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_runs_started
		ON refresh_runs(started_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.addColumnIfMissing("expenses", "approval_state", "TEXT DEFAULT 'Approved'")
}

func (s *Store) addColumnIfMissing(table, column, decl string) error {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return err
	}
	var found bool
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		if name == column {
			found = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if found {
		return nil
	}
	_, err = s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// =============================================================================
// READ CONTRACT (grant.Reader)
// =============================================================================

// grantFilter restricts a query to one grant when f names one.
const grantFilter = `(? = '' OR grant_id = ?)`

func filterArgs(f grant.Filter) []any {
	return []any{string(f.GrantID), string(f.GrantID)}
}

// Grants returns the grants selected by f, ordered by ID.
func (s *Store) Grants(ctx context.Context, f grant.Filter) ([]grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryGrants(ctx, s.db, f, &grant.Decoder{})
}

// BudgetCategories returns the budget categories selected by f.
func (s *Store) BudgetCategories(ctx context.Context, f grant.Filter) ([]grant.BudgetCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryCategories(ctx, s.db, f, &grant.Decoder{})
}

// Expenses returns the expenses selected by f.
func (s *Store) Expenses(ctx context.Context, f grant.Filter) ([]grant.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryExpenses(ctx, s.db, f, &grant.Decoder{})
}

// Deliverables returns the deliverables selected by f.
func (s *Store) Deliverables(ctx context.Context, f grant.Filter) ([]grant.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryDeliverables(ctx, s.db, f, &grant.Decoder{})
}

// OutcomeMetrics returns the outcome metrics selected by f.
func (s *Store) OutcomeMetrics(ctx context.Context, f grant.Filter) ([]grant.OutcomeMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryMetrics(ctx, s.db, f, &grant.Decoder{})
}

// Reports returns the reports selected by f.
func (s *Store) Reports(ctx context.Context, f grant.Filter) ([]grant.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryReports(ctx, s.db, f, &grant.Decoder{})
}

// Snapshot reads every collection selected by f inside one read-only
// transaction. Decode failures come from the same rows that are returned.
func (s *Store) Snapshot(ctx context.Context, f grant.Filter) (grant.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return grant.Snapshot{}, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		snap grant.Snapshot
		dec  grant.Decoder
	)
	if snap.Grants, err = queryGrants(ctx, tx, f, &dec); err != nil {
		return grant.Snapshot{}, err
	}
	if snap.Categories, err = queryCategories(ctx, tx, f, &dec); err != nil {
		return grant.Snapshot{}, err
	}
	if snap.Expenses, err = queryExpenses(ctx, tx, f, &dec); err != nil {
		return grant.Snapshot{}, err
	}
	if snap.Deliverables, err = queryDeliverables(ctx, tx, f, &dec); err != nil {
		return grant.Snapshot{}, err
	}
	if snap.Metrics, err = queryMetrics(ctx, tx, f, &dec); err != nil {
		return grant.Snapshot{}, err
	}
	if snap.Reports, err = queryReports(ctx, tx, f, &dec); err != nil {
		return grant.Snapshot{}, err
	}

	snap.LoadIssues = dec.Issues()
	grant.SortIssues(snap.LoadIssues)
	return snap, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryRows runs query and decodes each row with scan. Callers hold the lock.
func queryRows[T any](ctx context.Context, q querier, query string, args []any, dec *grant.Decoder, scan func(*sql.Rows, *grant.Decoder) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := scan(rows, dec)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func queryGrants(ctx context.Context, q querier, f grant.Filter, dec *grant.Decoder) ([]grant.Grant, error) {
	query := `
		SELECT grant_id, grant_name, funder_name, funder_type, total_amount,
		       start_date, end_date, status, reporting_frequency, purpose
		FROM grants
		WHERE ` + grantFilter + `
		ORDER BY grant_id
	`
	return queryRows(ctx, q, query, filterArgs(f), dec, func(rows *sql.Rows, dec *grant.Decoder) (grant.Grant, error) {
		var (
			g                             grant.Grant
			funderType, status, frequency sql.NullString
			purpose, amount               sql.NullString
			start, end                    sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.FunderName, &funderType, &amount,
			&start, &end, &status, &frequency, &purpose); err != nil {
			return g, fmt.Errorf("failed to scan grant: %w", err)
		}
		dec.At(grant.KindGrant, string(g.ID), g.ID)
		g.FunderType = grant.FunderType(funderType.String)
		g.Status = grant.GrantStatus(status.String)
		g.ReportingFrequency = grant.ReportingFrequency(frequency.String)
		g.Purpose = purpose.String
		g.AwardAmount = dec.Amount("total_amount", amount.String)
		g.StartDate = dec.Date("start_date", start.String)
		g.EndDate = dec.Date("end_date", end.String)
		return g, nil
	})
}

func queryCategories(ctx context.Context, q querier, f grant.Filter, dec *grant.Decoder) ([]grant.BudgetCategory, error) {
	query := `
		SELECT category_id, grant_id, category_name, budgeted_amount
		FROM budget_categories
		WHERE ` + grantFilter + `
		ORDER BY category_id
	`
	return queryRows(ctx, q, query, filterArgs(f), dec, func(rows *sql.Rows, dec *grant.Decoder) (grant.BudgetCategory, error) {
		var (
			c      grant.BudgetCategory
			amount sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.GrantID, &c.Name, &amount); err != nil {
			return c, fmt.Errorf("failed to scan budget category: %w", err)
		}
		dec.At(grant.KindCategory, string(c.ID), c.GrantID)
		c.BudgetedAmount = dec.Amount("budgeted_amount", amount.String)
		return c, nil
	})
}

func queryExpenses(ctx context.Context, q querier, f grant.Filter, dec *grant.Decoder) ([]grant.Expense, error) {
	query := `
		SELECT expense_id, grant_id, category_id, expense_date, amount,
		       approval_state, vendor, description
		FROM expenses
		WHERE ` + grantFilter + `
		ORDER BY expense_id
	`
	return queryRows(ctx, q, query, filterArgs(f), dec, func(rows *sql.Rows, dec *grant.Decoder) (grant.Expense, error) {
		var (
			e                      grant.Expense
			date, amount, approval sql.NullString
			vendor, description    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.GrantID, &e.CategoryID, &date, &amount,
			&approval, &vendor, &description); err != nil {
			return e, fmt.Errorf("failed to scan expense: %w", err)
		}
		dec.At(grant.KindExpense, string(e.ID), e.GrantID)
		e.Date = dec.Date("expense_date", date.String)
		e.Amount = dec.Amount("amount", amount.String)
		e.Approval = grant.ApprovalState(approval.String)
		if e.Approval == "" {
			e.Approval = grant.ApprovalApproved
		}
		e.Vendor = vendor.String
		e.Description = description.String
		return e, nil
	})
}

func queryDeliverables(ctx context.Context, q querier, f grant.Filter, dec *grant.Decoder) ([]grant.Deliverable, error) {
	query := `
		SELECT deliverable_id, grant_id, deliverable_name, due_date, status, completion_date
		FROM deliverables
		WHERE ` + grantFilter + `
		ORDER BY deliverable_id
	`
	return queryRows(ctx, q, query, filterArgs(f), dec, func(rows *sql.Rows, dec *grant.Decoder) (grant.Deliverable, error) {
		var (
			d                       grant.Deliverable
			due, status, completion sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.GrantID, &d.Name, &due, &status, &completion); err != nil {
			return d, fmt.Errorf("failed to scan deliverable: %w", err)
		}
		dec.At(grant.KindDeliverable, string(d.ID), d.GrantID)
		d.DueDate = dec.Date("due_date", due.String)
		d.Status = grant.DeliverableStatus(status.String)
		d.CompletionDate = dec.Date("completion_date", completion.String)
		return d, nil
	})
}

func queryMetrics(ctx context.Context, q querier, f grant.Filter, dec *grant.Decoder) ([]grant.OutcomeMetric, error) {
	query := `
		SELECT metric_id, grant_id, metric_name, target_value, current_value,
		       unit_of_measure, measurement_period
		FROM outcome_metrics
		WHERE ` + grantFilter + `
		ORDER BY metric_id
	`
	return queryRows(ctx, q, query, filterArgs(f), dec, func(rows *sql.Rows, dec *grant.Decoder) (grant.OutcomeMetric, error) {
		var (
			m               grant.OutcomeMetric
			target, current sql.NullString
			unit, period    sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.GrantID, &m.Name, &target, &current, &unit, &period); err != nil {
			return m, fmt.Errorf("failed to scan outcome metric: %w", err)
		}
		dec.At(grant.KindMetric, string(m.ID), m.GrantID)
		m.TargetValue = dec.Amount("target_value", target.String)
		m.CurrentValue = dec.Amount("current_value", current.String)
		m.Unit = unit.String
		m.MeasurementPeriod = period.String
		return m, nil
	})
}

func queryReports(ctx context.Context, q querier, f grant.Filter, dec *grant.Decoder) ([]grant.Report, error) {
	query := `
		SELECT report_id, grant_id, report_type, due_date, submission_date, status
		FROM reports
		WHERE ` + grantFilter + `
		ORDER BY report_id
	`
	return queryRows(ctx, q, query, filterArgs(f), dec, func(rows *sql.Rows, dec *grant.Decoder) (grant.Report, error) {
		var (
			r                      grant.Report
			due, submitted, status sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.GrantID, &r.ReportType, &due, &submitted, &status); err != nil {
			return r, fmt.Errorf("failed to scan report: %w", err)
		}
		dec.At(grant.KindReport, string(r.ID), r.GrantID)
		r.DueDate = dec.Date("due_date", due.String)
		r.SubmissionDate = dec.Date("submission_date", submitted.String)
		r.Status = grant.ReportStatus(status.String)
		return r, nil
	})
}

// =============================================================================
// WRITES - Import path only, never used by the engine
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveGrant upserts a grant.
func (s *Store) SaveGrant(ctx context.Context, g grant.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGrant(ctx, s.db, g)
}

// SaveCategory upserts a budget category.
func (s *Store) SaveCategory(ctx context.Context, c grant.BudgetCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCategory(ctx, s.db, c)
}

// SaveExpense upserts an expense.
func (s *Store) SaveExpense(ctx context.Context, e grant.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveExpense(ctx, s.db, e)
}

// SaveDeliverable upserts a deliverable.
func (s *Store) SaveDeliverable(ctx context.Context, d grant.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveDeliverable(ctx, s.db, d)
}

// SaveMetric upserts an outcome metric.
func (s *Store) SaveMetric(ctx context.Context, m grant.OutcomeMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveMetric(ctx, s.db, m)
}

// SaveReport upserts a report.
func (s *Store) SaveReport(ctx context.Context, r grant.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveReport(ctx, s.db, r)
}

// ImportCounts reports how many rows Import wrote per table.
type ImportCounts struct {
	Grants       int `json:"grants"`
	Categories   int `json:"budget_categories"`
	Expenses     int `json:"expenses"`
	Deliverables int `json:"deliverables"`
	Metrics      int `json:"outcome_metrics"`
	Reports      int `json:"reports"`
}

// Import writes every record of snap atomically, parents before children.
// Existing records with the same IDs are updated; others are left alone.
func (s *Store) Import(ctx context.Context, snap grant.Snapshot) (ImportCounts, error) {
	return s.importSnapshot(ctx, snap, false)
}

// Replace clears every portfolio table and writes snap in the same
// transaction, so readers see either the old portfolio or the new one.
// Refresh history is kept.
func (s *Store) Replace(ctx context.Context, snap grant.Snapshot) (ImportCounts, error) {
	return s.importSnapshot(ctx, snap, true)
}

// portfolioTables lists the portfolio tables children first, the order rows
// must be deleted in under foreign keys.
var portfolioTables = []string{"expenses", "budget_categories", "deliverables", "outcome_metrics", "reports", "grants"}

func (s *Store) importSnapshot(ctx context.Context, snap grant.Snapshot, replace bool) (ImportCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts ImportCounts
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if replace {
		for _, table := range portfolioTables {
			if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return ImportCounts{}, fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
	}

	for _, g := range snap.Grants {
		if err := saveGrant(ctx, sqlTx, g); err != nil {
			return ImportCounts{}, err
		}
		counts.Grants++
	}
	for _, c := range snap.Categories {
		if err := saveCategory(ctx, sqlTx, c); err != nil {
			return ImportCounts{}, err
		}
		counts.Categories++
	}
	for _, e := range snap.Expenses {
		if err := saveExpense(ctx, sqlTx, e); err != nil {
			return ImportCounts{}, err
		}
		counts.Expenses++
	}
	for _, d := range snap.Deliverables {
		if err := saveDeliverable(ctx, sqlTx, d); err != nil {
			return ImportCounts{}, err
		}
		counts.Deliverables++
	}
	for _, m := range snap.Metrics {
		if err := saveMetric(ctx, sqlTx, m); err != nil {
			return ImportCounts{}, err
		}
		counts.Metrics++
	}
	for _, r := range snap.Reports {
		if err := saveReport(ctx, sqlTx, r); err != nil {
			return ImportCounts{}, err
		}
		counts.Reports++
	}

	if err := sqlTx.Commit(); err != nil {
		return ImportCounts{}, fmt.Errorf("failed to commit import: %w", err)
	}
	return counts, nil
}

func saveGrant(ctx context.Context, db execer, g grant.Grant) error {
	query := `
		INSERT INTO grants (grant_id, grant_name, funder_name, funder_type, total_amount,
			start_date, end_date, status, purpose, reporting_frequency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(grant_id) DO UPDATE SET
			grant_name = excluded.grant_name,
			funder_name = excluded.funder_name,
			funder_type = excluded.funder_type,
			total_amount = excluded.total_amount,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			purpose = excluded.purpose,
			reporting_frequency = excluded.reporting_frequency
	`
	_, err := db.ExecContext(ctx, query,
		g.ID, g.Name, g.FunderName, nullString(string(g.FunderType)), g.AwardAmount.String(),
		g.StartDate.String(), g.EndDate.String(), nullString(string(g.Status)),
		nullString(g.Purpose), nullString(string(g.ReportingFrequency)),
	)
	if err != nil {
		return fmt.Errorf("failed to save grant %s: %w", g.ID, err)
	}
	return nil
}

func saveCategory(ctx context.Context, db execer, c grant.BudgetCategory) error {
	query := `
		INSERT INTO budget_categories (category_id, grant_id, category_name, budgeted_amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category_id) DO UPDATE SET
			grant_id = excluded.grant_id,
			category_name = excluded.category_name,
			budgeted_amount = excluded.budgeted_amount
	`
	_, err := db.ExecContext(ctx, query, c.ID, c.GrantID, c.Name, c.BudgetedAmount.String())
	if err != nil {
		return fmt.Errorf("failed to save budget category %s: %w", c.ID, err)
	}
	return nil
}

func saveExpense(ctx context.Context, db execer, e grant.Expense) error {
	query := `
		INSERT INTO expenses (expense_id, grant_id, category_id, expense_date, vendor,
			description, amount, approval_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(expense_id) DO UPDATE SET
			grant_id = excluded.grant_id,
			category_id = excluded.category_id,
			expense_date = excluded.expense_date,
			vendor = excluded.vendor,
			description = excluded.description,
			amount = excluded.amount,
			approval_state = excluded.approval_state
	`
	approval := e.Approval
	if approval == "" {
		approval = grant.ApprovalApproved
	}
	_, err := db.ExecContext(ctx, query,
		e.ID, e.GrantID, e.CategoryID, e.Date.String(), nullString(e.Vendor),
		nullString(e.Description), e.Amount.String(), string(approval),
	)
	if err != nil {
		return fmt.Errorf("failed to save expense %s: %w", e.ID, err)
	}
	return nil
}

func saveDeliverable(ctx context.Context, db execer, d grant.Deliverable) error {
	query := `
		INSERT INTO deliverables (deliverable_id, grant_id, deliverable_name, due_date,
			status, completion_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(deliverable_id) DO UPDATE SET
			grant_id = excluded.grant_id,
			deliverable_name = excluded.deliverable_name,
			due_date = excluded.due_date,
			status = excluded.status,
			completion_date = excluded.completion_date
	`
	_, err := db.ExecContext(ctx, query,
		d.ID, d.GrantID, d.Name, d.DueDate.String(),
		nullString(string(d.Status)), nullString(d.CompletionDate.String()),
	)
	if err != nil {
		return fmt.Errorf("failed to save deliverable %s: %w", d.ID, err)
	}
	return nil
}

func saveMetric(ctx context.Context, db execer, m grant.OutcomeMetric) error {
	query := `
		INSERT INTO outcome_metrics (metric_id, grant_id, metric_name, target_value,
			current_value, measurement_period, unit_of_measure)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(metric_id) DO UPDATE SET
			grant_id = excluded.grant_id,
			metric_name = excluded.metric_name,
			target_value = excluded.target_value,
			current_value = excluded.current_value,
			measurement_period = excluded.measurement_period,
			unit_of_measure = excluded.unit_of_measure
	`
	_, err := db.ExecContext(ctx, query,
		m.ID, m.GrantID, m.Name, m.TargetValue.String(), m.CurrentValue.String(),
		nullString(m.MeasurementPeriod), nullString(m.Unit),
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome metric %s: %w", m.ID, err)
	}
	return nil
}

func saveReport(ctx context.Context, db execer, r grant.Report) error {
	query := `
		INSERT INTO reports (report_id, grant_id, report_type, due_date, submission_date, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET
			grant_id = excluded.grant_id,
			report_type = excluded.report_type,
			due_date = excluded.due_date,
			submission_date = excluded.submission_date,
			status = excluded.status
	`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.GrantID, r.ReportType, r.DueDate.String(),
		nullString(r.SubmissionDate.String()), nullString(string(r.Status)),
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	return nil
}

// =============================================================================
// REFRESH RUNS
// =============================================================================

// RefreshRun records one engine refresh.
type RefreshRun struct {
	ID             string
	Trigger        string // scheduler, api, startup
	AsOf           string
	Status         string // running, completed, failed
	Grants         int
	Alerts         int
	Issues         int
	PortfolioScore string
	Error          string
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// SaveRefreshRun upserts a refresh run by ID.
func (s *Store) SaveRefreshRun(ctx context.Context, r RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO refresh_runs (id, run_trigger, as_of, status, grants, alerts, issues,
			portfolio_score, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			as_of = excluded.as_of,
			status = excluded.status,
			grants = excluded.grants,
			alerts = excluded.alerts,
			issues = excluded.issues,
			portfolio_score = excluded.portfolio_score,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		v := r.CompletedAt.UTC().Format(time.RFC3339Nano)
		completedAt = &v
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, nullString(r.AsOf), r.Status, r.Grants, r.Alerts, r.Issues,
		nullString(r.PortfolioScore), nullString(r.Error),
		r.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
	)
	return err
}

// GetRefreshRuns returns the most recent refresh runs, newest first.
// A limit of zero or less returns every run.
func (s *Store) GetRefreshRuns(ctx context.Context, limit int) ([]RefreshRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, run_trigger, as_of, status, grants, alerts, issues,
			portfolio_score, error, started_at, completed_at
		FROM refresh_runs
		ORDER BY started_at DESC, id
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RefreshRun
	for rows.Next() {
		var r RefreshRun
		var asOf, score, runErr, completedAt sql.NullString
		var startedAt string
		if err := rows.Scan(
			&r.ID, &r.Trigger, &asOf, &r.Status, &r.Grants, &r.Alerts, &r.Issues,
			&score, &runErr, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		r.AsOf = asOf.String
		r.PortfolioScore = score.String
		r.Error = runErr.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Exec runs a raw statement under the write lock (maintenance and tests).
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
