/*
handlers_test.go - HTTP tests for the feed endpoints

Tests for:
- Feed contents and ordering over the fixture portfolio
- as_of evaluation and its validation
- Error status mapping (404, 400, 503)
- Refresh and refresh history
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/grant-engine/analytics"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/grant/granttest"
	"github.com/warp/grant-engine/grant/store"
	"github.com/warp/grant-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *sqlite.Store
}

func newTestServer(t *testing.T, clock grant.Clock) *testServer {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Import(context.Background(), granttest.Portfolio())
	require.NoError(t, err)

	engine, err := analytics.NewEngine(analytics.DefaultConfig(), clock)
	require.NoError(t, err)

	h := NewHandler(analytics.NewService(db, engine, nil), db, nil)
	return &testServer{handler: h, router: NewRouter(h, nil), store: db}
}

func (ts *testServer) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// GRANT SUMMARY FEED
// =============================================================================

func TestListGrants_SummaryFeed(t *testing.T) {
	// GIVEN: The fixture portfolio evaluated on 2025-06-30
	ts := newTestServer(t, granttest.Clock())

	// WHEN: Fetching the grant summary feed
	rec := ts.do(t, http.MethodGet, "/api/grants")

	// THEN: One record per grant with spend, depletion and score
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[FeedResponse[GrantSummaryDTO]](t, rec)
	assert.Equal(t, "2025-06-30", feed.AsOf)
	require.Len(t, feed.Items, 2)

	g1 := feed.Items[0]
	assert.Equal(t, "G-001", g1.GrantID)
	assert.Equal(t, 100000.0, g1.TotalAmount)
	assert.Equal(t, 60000.0, g1.TotalSpent)
	assert.Equal(t, 40000.0, g1.RemainingBudget)
	require.NotNil(t, g1.SpentPercentage)
	assert.Equal(t, 0.6, *g1.SpentPercentage)
	assert.Equal(t, 184, g1.DaysRemaining)
	require.NotNil(t, g1.ProjectedDepletionDate)
	assert.Equal(t, "2025-10-28", *g1.ProjectedDepletionDate)
	require.NotNil(t, g1.ComplianceScore)
	assert.Equal(t, 28.0, *g1.ComplianceScore)

	g2 := feed.Items[1]
	assert.Equal(t, "G-002", g2.GrantID)
	assert.Equal(t, 55500.0, g2.TotalSpent)
	require.NotNil(t, g2.ProjectedDepletionDate)
	assert.Equal(t, "2025-06-30", *g2.ProjectedDepletionDate, "overspent grant is depleted today")
}

func TestGetGrant_Detail(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/grants/G-001")

	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[GrantDetailDTO](t, rec)
	assert.Equal(t, "G-001", detail.GrantID)
	assert.Equal(t, 333.333333, detail.BurnRate.DailyRate)
	assert.Equal(t, 180, detail.BurnRate.DaysElapsed)
	assert.Equal(t, "projected", detail.BurnRate.Status)
	require.Len(t, detail.Categories, 2)
	assert.Equal(t, "C-001", detail.Categories[0].CategoryID)
	assert.Equal(t, 55000.0, detail.Categories[0].SpentAmount)
	assert.Equal(t, -5000.0, detail.Categories[0].Variance)
	assert.Len(t, detail.Alerts, 4)
	assert.Len(t, detail.Outcomes, 3)

	assert.Equal(t, []MonthlySpendDTO{
		{Month: "2025-02", Amount: 30000},
		{Month: "2025-03", Amount: 5000},
		{Month: "2025-05", Amount: 25000},
	}, detail.MonthlySpend)
	require.Len(t, detail.Deliverables, 4)
	assert.Equal(t, "D-003", detail.Deliverables[0].DeliverableID)
}

func TestGetGrant_NotFound(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/grants/G-404")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Grant not found", resp.Error)
	assert.Equal(t, "not_found", resp.Code)
}

// =============================================================================
// ALERT FEED
// =============================================================================

func TestListAlerts_ContractOrder(t *testing.T) {
	// GIVEN: Two overdue items and three upcoming ones across both grants
	ts := newTestServer(t, granttest.Clock())

	// WHEN: Fetching the alert feed
	rec := ts.do(t, http.MethodGet, "/api/alerts")

	// THEN: Overdue first by days overdue, then tiers by days remaining
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[FeedResponse[AlertDTO]](t, rec)
	require.Len(t, feed.Items, 5)

	type row struct {
		Type string
		ID   string
		Days int
	}
	var got []row
	for _, a := range feed.Items {
		got = append(got, row{a.AlertType, a.ItemID, a.DaysOverdue})
	}
	assert.Equal(t, []row{
		{"Overdue", "R-001", 61},
		{"Overdue", "D-001", 0},
		{"Tier30", "D-002", -30},
		{"Tier60", "D-003", -45},
		{"Tier90", "R-003", -90},
	}, got)
}

func TestListAlerts_FilterByGrant(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/alerts?grant_id=G-002")
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[FeedResponse[AlertDTO]](t, rec)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "R-003", feed.Items[0].ItemID)

	rec = ts.do(t, http.MethodGet, "/api/alerts?grant_id=G-404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// DELIVERABLE TIMELINESS
// =============================================================================

func TestListDeliverables_DaysLateAsOf(t *testing.T) {
	// GIVEN: The fixture evaluated seven weeks after D-001 fell due
	ts := newTestServer(t, granttest.Clock())

	// WHEN: Fetching deliverable timeliness as of 2025-08-20
	rec := ts.do(t, http.MethodGet, "/api/deliverables?as_of=2025-08-20")

	// THEN: Open deliverables past due count days late; the early one stays at 0
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[FeedResponse[DeliverableDTO]](t, rec)
	assert.Equal(t, "2025-08-20", feed.AsOf)
	require.Len(t, feed.Items, 4)

	late := map[string]int{}
	for _, d := range feed.Items {
		late[d.DeliverableID] = d.DaysLate
	}
	assert.Equal(t, map[string]int{"D-001": 51, "D-002": 21, "D-003": 6, "D-004": 0}, late)

	done := feed.Items[3]
	assert.Equal(t, "D-004", done.DeliverableID)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletionDate)
	assert.Equal(t, "2025-02-20", *done.CompletionDate)
	assert.Nil(t, feed.Items[0].CompletionDate)
}

func TestListDeliverables_FilterByGrant(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/deliverables?grant_id=G-002")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"as_of":"2025-06-30","items":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/deliverables?grant_id=G-404")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAlerts_AsOf(t *testing.T) {
	// GIVEN: The same portfolio
	ts := newTestServer(t, granttest.Clock())

	// WHEN: Evaluating one month later
	rec := ts.do(t, http.MethodGet, "/api/alerts?as_of=2025-07-31")

	// THEN: The Tier30 deliverable has become overdue by one day
	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[FeedResponse[AlertDTO]](t, rec)
	assert.Equal(t, "2025-07-31", feed.AsOf)
	var d002 *AlertDTO
	for i := range feed.Items {
		if feed.Items[i].ItemID == "D-002" {
			d002 = &feed.Items[i]
		}
	}
	require.NotNil(t, d002)
	assert.Equal(t, "Overdue", d002.AlertType)
	assert.Equal(t, 1, d002.DaysOverdue)

	// AND: The cached result is untouched
	rec = ts.do(t, http.MethodGet, "/api/alerts")
	assert.Equal(t, "2025-06-30", decode[FeedResponse[AlertDTO]](t, rec).AsOf)
}

func TestAsOf_Malformed(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/grants?as_of=June-30")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid as_of", decode[ErrorResponse](t, rec).Error)
}

// =============================================================================
// BUDGET, OUTCOME, COMPLIANCE FEEDS
// =============================================================================

func TestListBudgetAlerts_UndefinedSortsLast(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/budget-alerts")

	require.Equal(t, http.StatusOK, rec.Code)
	feed := decode[FeedResponse[BudgetAlertDTO]](t, rec)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "C-003", feed.Items[0].CategoryID)
	assert.Equal(t, 5000.0, feed.Items[0].Overspend)
	require.NotNil(t, feed.Items[0].OverspendPercentage)
	assert.Equal(t, 0.1, *feed.Items[0].OverspendPercentage)
	assert.Equal(t, "C-004", feed.Items[1].CategoryID)
	assert.Nil(t, feed.Items[1].OverspendPercentage, "zero budget has no percentage")
}

func TestListOutcomes_UndefinedIsNull(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/outcomes?grant_id=G-001")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"achievement_percentage":null`)
	feed := decode[FeedResponse[OutcomeDTO]](t, rec)
	require.Len(t, feed.Items, 3)
	assert.Equal(t, "FallingShort", feed.Items[0].Status)
	assert.Equal(t, 0.75, *feed.Items[0].AchievementPercentage)
	assert.Equal(t, "OnTrack", feed.Items[1].Status)
	assert.Equal(t, "Undefined", feed.Items[2].Status)
	assert.Nil(t, feed.Items[2].AchievementPercentage)
}

func TestGetCompliance_PortfolioWeightedByBudget(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodGet, "/api/compliance")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ComplianceResponse](t, rec)
	require.NotNil(t, resp.Portfolio.Score)
	assert.Equal(t, 51.33, *resp.Portfolio.Score)
	assert.True(t, resp.Portfolio.Weighted)
	require.Len(t, resp.Grants, 2)
	assert.Equal(t, 27.0, resp.Grants[0].AlertPenalty)
	assert.Equal(t, 30.0, resp.Grants[0].VariancePenalty)
	assert.Equal(t, 15.0, resp.Grants[0].OutcomePenalty)
	assert.Equal(t, 98.0, resp.Grants[1].Score)
}

func TestListDataQuality_PartialSuccess(t *testing.T) {
	// GIVEN: A portfolio with one grant whose window is inverted
	snap := granttest.Portfolio()
	snap.Grants[1].EndDate = grant.MustParseDate("2024-01-01")
	engine, err := analytics.NewEngine(analytics.DefaultConfig(), granttest.Clock())
	require.NoError(t, err)
	h := NewHandler(analytics.NewService(store.NewMemoryFrom(snap), engine, nil), nil, nil)
	router := NewRouter(h, nil)

	// WHEN: Fetching data quality and grants
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/data-quality", nil))

	// THEN: The bad grant is reported and the good one is still served
	require.Equal(t, http.StatusOK, rec.Code)
	issues := decode[FeedResponse[IssueDTO]](t, rec)
	require.Len(t, issues.Items, 1)
	assert.Equal(t, "G-002", issues.Items[0].RecordID)
	assert.Equal(t, "invalid_window", issues.Items[0].Code)
	assert.Equal(t, "error", issues.Items[0].Severity)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/grants", nil))
	grants := decode[FeedResponse[GrantSummaryDTO]](t, rec)
	require.Len(t, grants.Items, 1)
	assert.Equal(t, "G-001", grants.Items[0].GrantID)
}

// =============================================================================
// FAILURES + OPERATIONS
// =============================================================================

func TestClockFailure_ServiceUnavailable(t *testing.T) {
	// GIVEN: A clock that cannot produce a date
	broken := grant.ClockFunc(func() (grant.Date, error) {
		return grant.Date{}, errors.New("time service unreachable")
	})
	ts := newTestServer(t, broken)

	// WHEN: Requesting any feed
	rec := ts.do(t, http.MethodGet, "/api/grants")

	// THEN: The run is aborted with 503 and the cause
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Current date unavailable", resp.Error)
	assert.Contains(t, resp.Details, "time service unreachable")
	assert.Nil(t, ts.handler.Cached())
}

func TestRefresh_RecordsRun(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())

	rec := ts.do(t, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, ts.handler.Cached())

	rec = ts.do(t, http.MethodGet, "/api/refresh/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Runs []RefreshRunDTO `json:"runs"`
	}](t, rec)
	require.Len(t, resp.Runs, 1)
	run := resp.Runs[0]
	assert.Equal(t, TriggerAPI, run.Trigger)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "2025-06-30", run.AsOf)
	assert.Equal(t, 2, run.Grants)
	assert.Equal(t, 5, run.Alerts)
	assert.Equal(t, "51.33", run.PortfolioScore)
	assert.NotEmpty(t, run.CompletedAt)
}

func TestRefresh_FailureRecordedAndCacheKept(t *testing.T) {
	// GIVEN: A handler with a cached result
	ts := newTestServer(t, granttest.Clock())
	_, err := ts.handler.Refresh(context.Background(), TriggerStartup)
	require.NoError(t, err)
	cached := ts.handler.Cached()

	// WHEN: The store goes away and a refresh is attempted
	require.NoError(t, ts.store.Exec(context.Background(), `DROP TABLE expenses`))
	_, err = ts.handler.Refresh(context.Background(), TriggerScheduler)

	// THEN: The refresh fails as a fetch error, the old cache is kept,
	//       and the failure is in the history
	require.ErrorIs(t, err, grant.ErrSnapshotFetch)
	assert.Same(t, cached, ts.handler.Cached())

	runs, err := ts.store.GetRefreshRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	var failed int
	for _, r := range runs {
		if r.Status == "failed" {
			failed++
			assert.Equal(t, TriggerScheduler, r.Trigger)
			assert.NotEmpty(t, r.Error)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestScheduler_StartRefreshesImmediately(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())
	sched := NewRefreshScheduler(ts.handler, nil)

	sched.RunNow(context.Background())

	require.NotNil(t, ts.handler.Cached())
	assert.Equal(t, "2025-06-30", ts.handler.Cached().AsOf.String())
}

func TestRefreshRuns_ReportsNextRun(t *testing.T) {
	// GIVEN: A running scheduler with a long interval
	ts := newTestServer(t, granttest.Clock())
	sched := NewRefreshScheduler(ts.handler, nil)
	sched.Interval = time.Hour
	ts.handler.Schedule = sched

	rec := ts.do(t, http.MethodGet, "/api/refresh/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[RefreshRunsResponse](t, rec).NextRun, "no next run before start")

	before := time.Now()
	sched.Start()
	t.Cleanup(sched.Stop)

	// WHEN: Listing refresh runs
	rec = ts.do(t, http.MethodGet, "/api/refresh/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The next run is one interval after start
	resp := decode[RefreshRunsResponse](t, rec)
	require.NotEmpty(t, resp.NextRun)
	next, err := time.Parse(time.RFC3339, resp.NextRun)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), next, 5*time.Second)

	// AND: Stopping clears it
	sched.Stop()
	assert.True(t, sched.NextRunTime().IsZero())
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, granttest.Clock())
	rec := ts.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}
