/*
Package analytics provides the Grant Compliance & Financial Analytics Engine.

PURPOSE:
  Turns an immutable grant.Snapshot into the derived signals a funder-facing
  dashboard needs: budget variance and burn rate, tiered deadline alerts,
  outcome achievement, and a composite compliance score per grant and for
  the whole portfolio.

PIPELINE:
  1. Read today from the Clock (fatal if unavailable)
  2. Validate records; invalid ones become data-quality Issues
  3. Run in parallel over the same read-only records:
       - Financial Aggregator   (financial.go)
       - Deadline Alert Engine  (deadlines.go, with deliverable lateness)
       - Outcome Scorer         (outcomes.go)
  4. Compose compliance scores (compliance.go)

  The three parallel stages share nothing but the snapshot, so no locks are
  needed; each writes only its own result slot.

DETERMINISM:
  Every output collection is sorted by stable keys. Running the engine twice
  on the same snapshot with the same date yields identical records, which is
  what makes cached results safe to serve.

CANCELLATION:
  Computation is pure; if ctx is cancelled the partial result is discarded.

SEE ALSO:
  - service.go: Snapshot fetch with timeout + logging around Run
  - config.go: All thresholds and weights
*/
package analytics

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/grant-engine/grant"
)

// Result is the complete output of one engine run.
type Result struct {
	AsOf         grant.Date              `json:"as_of"`
	Summaries    []GrantFinancialSummary `json:"grants"`
	Alerts       []ComplianceAlert       `json:"alerts"`
	Deliverables []DeliverableTimeliness `json:"deliverables"`
	BudgetAlerts []BudgetAlert           `json:"budget_alerts"`
	Outcomes     []OutcomeAssessment     `json:"outcomes"`
	Scores       []ComplianceScore       `json:"compliance"`
	Portfolio    PortfolioScore          `json:"portfolio"`
	Issues       []grant.Issue           `json:"data_quality"`
}

// Summary returns the financial summary of one grant.
func (r *Result) Summary(id grant.GrantID) (GrantFinancialSummary, bool) {
	for _, s := range r.Summaries {
		if s.GrantID == id {
			return s, true
		}
	}
	return GrantFinancialSummary{}, false
}

// DeliverablesFor returns the deliverable timeliness records of one grant.
func (r *Result) DeliverablesFor(id grant.GrantID) []DeliverableTimeliness {
	var out []DeliverableTimeliness
	for _, d := range r.Deliverables {
		if d.GrantID == id {
			out = append(out, d)
		}
	}
	return out
}

// AlertsFor returns the alerts of one grant, preserving contract order.
func (r *Result) AlertsFor(id grant.GrantID) []ComplianceAlert {
	var out []ComplianceAlert
	for _, a := range r.Alerts {
		if a.GrantID == id {
			out = append(out, a)
		}
	}
	return out
}

// Engine runs the analytics pipeline with a fixed config and clock.
type Engine struct {
	config Config
	clock  grant.Clock
}

// NewEngine validates cfg and returns an engine reading dates from clock.
func NewEngine(cfg Config, clock grant.Clock) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{config: cfg, clock: clock}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.config }

// WithClock returns a copy of the engine that reads dates from clock.
func (e *Engine) WithClock(clock grant.Clock) *Engine {
	return &Engine{config: e.config, clock: clock}
}

// Run computes every derived record from snap. Only clock failures and
// cancellation are errors; bad records are reported in Result.Issues.
func (e *Engine) Run(ctx context.Context, snap grant.Snapshot) (*Result, error) {
	today, err := grant.Now(e.clock)
	if err != nil {
		return nil, err
	}

	clean, issues := grant.Validate(snap)
	groups := clean.ByGrant()

	summaries := make([]GrantFinancialSummary, len(groups))
	alerts := make([][]ComplianceAlert, len(groups))
	deliverables := make([][]DeliverableTimeliness, len(groups))
	outcomes := make([][]OutcomeAssessment, len(groups))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i, gr := range groups {
			summaries[i] = Summarize(gr, today, e.config.Financial)
		}
	}()
	go func() {
		defer wg.Done()
		for i, gr := range groups {
			alerts[i] = ScanDeadlines(gr, today, e.config.Deadlines)
			deliverables[i] = AssessDeliverables(gr, today)
		}
	}()
	go func() {
		defer wg.Done()
		for i, gr := range groups {
			outcomes[i] = AssessOutcomes(gr, e.config.Outcomes)
		}
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("engine run cancelled: %w", err)
	}

	res := &Result{
		AsOf:         today,
		Summaries:    summaries,
		Alerts:       []ComplianceAlert{},
		Deliverables: []DeliverableTimeliness{},
		Outcomes:     []OutcomeAssessment{},
		Scores:       make([]ComplianceScore, len(groups)),
		BudgetAlerts: BudgetAlerts(summaries),
		Issues:       issues,
	}
	for i := range groups {
		res.Scores[i] = ComposeGrant(summaries[i], alerts[i], outcomes[i], e.config.Compliance)
		res.Alerts = append(res.Alerts, alerts[i]...)
		res.Deliverables = append(res.Deliverables, deliverables[i]...)
		res.Outcomes = append(res.Outcomes, outcomes[i]...)
	}
	SortAlerts(res.Alerts)
	SortDeliverables(res.Deliverables)
	res.Portfolio = ComposePortfolio(res.Scores)
	if res.BudgetAlerts == nil {
		res.BudgetAlerts = []BudgetAlert{}
	}
	if res.Issues == nil {
		res.Issues = []grant.Issue{}
	}
	return res, nil
}
