/*
handlers.go - HTTP API handlers for the grant analytics engine

PURPOSE:
  Exposes the engine's feeds via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every computation to analytics.Service.

ENDPOINTS:
  Feeds:
    GET    /api/grants               Grant summary feed
    GET    /api/grants/{id}          One grant with categories, spend trend, alerts, outcomes
    GET    /api/alerts               Compliance alert feed (?grant_id=)
    GET    /api/deliverables         Deliverable timeliness (?grant_id=)
    GET    /api/budget-alerts        Overspent budget categories
    GET    /api/outcomes             Outcome performance feed (?grant_id=)
    GET    /api/compliance           Per-grant and portfolio scores
    GET    /api/data-quality         Records excluded or flagged by validation

  Operations:
    POST   /api/refresh              Recompute the cached result now
    GET    /api/refresh/runs         Refresh history and next scheduled run

  Every feed accepts ?as_of=YYYY-MM-DD to evaluate as of another date.
  Those requests are computed on demand and never replace the cache.

CACHING:
  The latest result is cached. It is replaced by the RefreshScheduler, by
  POST /api/refresh, or lazily by the first request after startup. Engine
  output is deterministic, so serving the cache is equivalent to recomputing
  against the same snapshot and date.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed as_of
  - 404: Unknown grant
  - 503: Clock or store unavailable (the run was aborted)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Response data structures
  - scheduler.go: Periodic refresh
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/grant-engine/analytics"
	"github.com/warp/grant-engine/grant"
	"github.com/warp/grant-engine/store/sqlite"
)

const timeLayout = time.RFC3339

// Refresh triggers recorded in the run history.
const (
	TriggerStartup   = "startup"
	TriggerScheduler = "scheduler"
	TriggerAPI       = "api"
)

// RunStore persists refresh history. *sqlite.Store implements it.
type RunStore interface {
	SaveRefreshRun(ctx context.Context, r sqlite.RefreshRun) error
	GetRefreshRuns(ctx context.Context, limit int) ([]sqlite.RefreshRun, error)
}

// Schedule reports when the next automatic refresh runs.
// *RefreshScheduler implements it.
type Schedule interface {
	NextRunTime() time.Time
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *analytics.Service
	Runs     RunStore // optional
	Schedule Schedule // optional
	Logger   *slog.Logger

	mu     sync.RWMutex
	cached *analytics.Result

	// Serializes refreshes so concurrent triggers do not race on the cache.
	refreshMu sync.Mutex
}

// NewHandler creates a new handler. runs may be nil.
func NewHandler(svc *analytics.Service, runs RunStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, Runs: runs, Logger: logger}
}

// Refresh recomputes the portfolio result, records the run and replaces the
// cache. On failure the previous cache is kept.
func (h *Handler) Refresh(ctx context.Context, trigger string) (*analytics.Result, error) {
	h.refreshMu.Lock()
	defer h.refreshMu.Unlock()

	run := sqlite.RefreshRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	h.saveRun(ctx, run)

	res, err := h.Service.Evaluate(ctx, grant.Filter{})
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		h.saveRun(ctx, run)
		return nil, err
	}

	run.Status = "completed"
	run.AsOf = res.AsOf.String()
	run.Grants = len(res.Summaries)
	run.Alerts = len(res.Alerts)
	run.Issues = len(res.Issues)
	if res.Portfolio.Defined {
		run.PortfolioScore = res.Portfolio.Score.StringFixed(analytics.ScorePrecision)
	}
	h.saveRun(ctx, run)

	h.mu.Lock()
	h.cached = res
	h.mu.Unlock()
	return res, nil
}

func (h *Handler) saveRun(ctx context.Context, run sqlite.RefreshRun) {
	if h.Runs == nil {
		return
	}
	if err := h.Runs.SaveRefreshRun(ctx, run); err != nil {
		h.Logger.Warn("failed to record refresh run", "run_id", run.ID, "error", err)
	}
}

// Cached returns the latest cached result, or nil before the first refresh.
func (h *Handler) Cached() *analytics.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cached
}

// result returns the result a request should be served from: an on-demand
// evaluation when as_of is given, otherwise the cache.
func (h *Handler) result(r *http.Request) (*analytics.Result, error) {
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err := grant.ParseDate(raw)
		if err != nil {
			return nil, &requestError{param: "as_of", err: err}
		}
		return h.Service.EvaluateAt(r.Context(), grant.Filter{}, asOf)
	}
	if res := h.Cached(); res != nil {
		return res, nil
	}
	return h.Refresh(r.Context(), TriggerAPI)
}

// requestError marks a malformed query parameter.
type requestError struct {
	param string
	err   error
}

func (e *requestError) Error() string { return "invalid " + e.param + ": " + e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// =============================================================================
// GRANT SUMMARY FEED
// =============================================================================

// ListGrants returns the grant summary feed.
// GET /api/grants
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	dtos := make([]GrantSummaryDTO, len(res.Summaries))
	for i, s := range res.Summaries {
		dtos[i] = toGrantSummaryDTO(s)
		if i < len(res.Scores) && res.Scores[i].GrantID == s.GrantID {
			score := money(res.Scores[i].Score)
			dtos[i].ComplianceScore = &score
		}
	}
	writeJSON(w, http.StatusOK, FeedResponse[GrantSummaryDTO]{AsOf: res.AsOf.String(), Items: dtos})
}

// GetGrant returns one grant with its categories, alerts and outcomes.
// GET /api/grants/{id}
func (h *Handler) GetGrant(w http.ResponseWriter, r *http.Request) {
	id := grant.GrantID(chi.URLParam(r, "id"))

	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	summary, ok := res.Summary(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Grant not found", nil)
		return
	}

	dto := GrantDetailDTO{
		GrantSummaryDTO:  toGrantSummaryDTO(summary),
		Variance:         money(summary.Variance),
		ExcludedExpenses: summary.ExcludedExpenses,
		BurnRate: BurnRateDTO{
			DailyRate:              money(summary.BurnRate.DailyRate),
			DaysElapsed:            summary.BurnRate.DaysElapsed,
			Status:                 string(summary.BurnRate.Status),
			ProjectedDepletionDate: datePtr(summary.BurnRate.ProjectedDepletion),
		},
		Categories:   make([]CategoryDTO, len(summary.Categories)),
		MonthlySpend: toMonthlySpendDTOs(summary.MonthlySpend),
		Alerts:       toAlertDTOs(res.AlertsFor(id)),
		Deliverables: toDeliverableDTOs(res.DeliverablesFor(id)),
		Outcomes:     []OutcomeDTO{},
	}
	for i, c := range summary.Categories {
		dto.Categories[i] = toCategoryDTO(c)
	}
	for _, o := range res.Outcomes {
		if o.GrantID == id {
			dto.Outcomes = append(dto.Outcomes, toOutcomeDTO(o))
		}
	}
	for _, s := range res.Scores {
		if s.GrantID == id {
			score := money(s.Score)
			dto.ComplianceScore = &score
		}
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// ALERT + OUTCOME FEEDS
// =============================================================================

// ListAlerts returns the compliance alert feed in contract order.
// GET /api/alerts?grant_id=
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	alerts := res.Alerts
	if id := grant.GrantID(r.URL.Query().Get("grant_id")); id != "" {
		if _, ok := res.Summary(id); !ok {
			writeError(w, http.StatusNotFound, "Grant not found", nil)
			return
		}
		alerts = res.AlertsFor(id)
	}
	writeJSON(w, http.StatusOK, FeedResponse[AlertDTO]{AsOf: res.AsOf.String(), Items: toAlertDTOs(alerts)})
}

// ListDeliverables returns every deliverable with how late it is or was.
// GET /api/deliverables?grant_id=
func (h *Handler) ListDeliverables(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	ds := res.Deliverables
	if id := grant.GrantID(r.URL.Query().Get("grant_id")); id != "" {
		if _, ok := res.Summary(id); !ok {
			writeError(w, http.StatusNotFound, "Grant not found", nil)
			return
		}
		ds = res.DeliverablesFor(id)
	}
	writeJSON(w, http.StatusOK, FeedResponse[DeliverableDTO]{AsOf: res.AsOf.String(), Items: toDeliverableDTOs(ds)})
}

// ListBudgetAlerts returns overspent categories, largest overspend first.
// GET /api/budget-alerts
func (h *Handler) ListBudgetAlerts(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	dtos := make([]BudgetAlertDTO, len(res.BudgetAlerts))
	for i, a := range res.BudgetAlerts {
		dtos[i] = toBudgetAlertDTO(a)
	}
	writeJSON(w, http.StatusOK, FeedResponse[BudgetAlertDTO]{AsOf: res.AsOf.String(), Items: dtos})
}

// ListOutcomes returns the outcome performance feed.
// GET /api/outcomes?grant_id=
func (h *Handler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	outcomes := res.Outcomes
	if id := grant.GrantID(r.URL.Query().Get("grant_id")); id != "" {
		if _, ok := res.Summary(id); !ok {
			writeError(w, http.StatusNotFound, "Grant not found", nil)
			return
		}
		outcomes = nil
		for _, o := range res.Outcomes {
			if o.GrantID == id {
				outcomes = append(outcomes, o)
			}
		}
	}
	writeJSON(w, http.StatusOK, FeedResponse[OutcomeDTO]{AsOf: res.AsOf.String(), Items: toOutcomeDTOs(outcomes)})
}

// =============================================================================
// COMPLIANCE + DATA QUALITY
// =============================================================================

// GetCompliance returns per-grant scores and the portfolio score.
// GET /api/compliance
func (h *Handler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	resp := ComplianceResponse{
		AsOf:      res.AsOf.String(),
		Portfolio: toPortfolioDTO(res.Portfolio),
		Grants:    make([]ComplianceDTO, len(res.Scores)),
	}
	for i, s := range res.Scores {
		resp.Grants[i] = toComplianceDTO(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDataQuality returns validation issues. Errors excluded the record,
// warnings only flag it.
// GET /api/data-quality
func (h *Handler) ListDataQuality(w http.ResponseWriter, r *http.Request) {
	res, err := h.result(r)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	dtos := make([]IssueDTO, len(res.Issues))
	for i, is := range res.Issues {
		dtos[i] = toIssueDTO(is)
	}
	writeJSON(w, http.StatusOK, FeedResponse[IssueDTO]{AsOf: res.AsOf.String(), Items: dtos})
}

// =============================================================================
// OPERATIONS
// =============================================================================

// TriggerRefresh recomputes the cached result.
// POST /api/refresh
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.Refresh(r.Context(), TriggerAPI)
	if err != nil {
		h.writeResultError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"as_of":     res.AsOf.String(),
		"grants":    len(res.Summaries),
		"alerts":    len(res.Alerts),
		"issues":    len(res.Issues),
		"portfolio": toPortfolioDTO(res.Portfolio),
	})
}

// ListRefreshRuns returns refresh history, newest first, and when the
// scheduler runs next.
// GET /api/refresh/runs?limit=
func (h *Handler) ListRefreshRuns(w http.ResponseWriter, r *http.Request) {
	resp := RefreshRunsResponse{Runs: []RefreshRunDTO{}}
	if h.Schedule != nil {
		if next := h.Schedule.NextRunTime(); !next.IsZero() {
			resp.NextRun = next.UTC().Format(timeLayout)
		}
	}
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Runs.GetRefreshRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get refresh runs", err)
		return
	}

	for _, run := range runs {
		resp.Runs = append(resp.Runs, toRefreshRunDTO(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeResultError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeError(w, http.StatusBadRequest, "Invalid "+reqErr.param, err)
	case grant.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Grant not found", err)
	case errors.Is(err, grant.ErrClockUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Current date unavailable", err)
	case errors.Is(err, grant.ErrSnapshotFetch):
		writeError(w, http.StatusServiceUnavailable, "Grant data unavailable", err)
	default:
		h.Logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute analytics", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: errorCode(status)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}
