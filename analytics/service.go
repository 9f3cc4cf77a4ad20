package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/grant-engine/grant"
)

// DefaultFetchTimeout bounds the snapshot read. The computation itself is
// never subject to a timeout.
const DefaultFetchTimeout = 10 * time.Second

// Service fetches a snapshot through the read contract and runs the engine.
type Service struct {
	Reader       grant.Reader
	Engine       *Engine
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// NewService wires a reader and an engine with default timeout and logger.
func NewService(reader grant.Reader, engine *Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Reader:       reader,
		Engine:       engine,
		FetchTimeout: DefaultFetchTimeout,
		Logger:       logger,
	}
}

// Evaluate runs the engine over the records selected by f, using the
// engine's clock.
func (s *Service) Evaluate(ctx context.Context, f grant.Filter) (*Result, error) {
	return s.evaluate(ctx, f, s.Engine)
}

// EvaluateAt runs the engine as of a fixed date instead of the engine clock.
func (s *Service) EvaluateAt(ctx context.Context, f grant.Filter, asOf grant.Date) (*Result, error) {
	return s.evaluate(ctx, f, s.Engine.WithClock(grant.FixedClock{Date: asOf}))
}

func (s *Service) evaluate(ctx context.Context, f grant.Filter, engine *Engine) (*Result, error) {
	runID := uuid.NewString()
	log := s.Logger.With("run_id", runID)
	if f.GrantID != "" {
		log = log.With("grant_id", f.GrantID)
	}
	started := time.Now()

	snap, err := s.fetch(ctx, f)
	if err != nil {
		log.Error("snapshot fetch failed", "error", err)
		return nil, err
	}
	log.Debug("snapshot fetched",
		"grants", len(snap.Grants),
		"expenses", len(snap.Expenses),
		"deliverables", len(snap.Deliverables),
		"reports", len(snap.Reports),
		"metrics", len(snap.Metrics),
	)

	res, err := engine.Run(ctx, snap)
	if err != nil {
		log.Error("engine run failed", "error", err)
		return nil, err
	}

	log.Info("engine run complete",
		"as_of", res.AsOf.String(),
		"grants", len(res.Summaries),
		"alerts", len(res.Alerts),
		"issues", len(res.Issues),
		"portfolio_score", res.Portfolio.Score.String(),
		"elapsed", time.Since(started),
	)
	return res, nil
}

func (s *Service) fetch(ctx context.Context, f grant.Filter) (grant.Snapshot, error) {
	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snap, err := grant.LoadSnapshot(fetchCtx, s.Reader, f)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, grant.ErrSnapshotFetch) {
			return grant.Snapshot{}, fmt.Errorf("%w: timed out after %s", grant.ErrSnapshotFetch, timeout)
		}
		return grant.Snapshot{}, err
	}
	return snap, nil
}
