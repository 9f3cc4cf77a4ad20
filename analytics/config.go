package analytics

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIG - Every threshold and weight the engine uses
// =============================================================================

// Config holds the engine's tunable parameters. Nothing in the engine is a
// hidden constant: DefaultConfig documents the defaults and factory.Load
// overrides them from TOML or JSON.
type Config struct {
	Financial  FinancialConfig
	Deadlines  DeadlineConfig
	Outcomes   OutcomeConfig
	Compliance ComplianceConfig
}

// OutOfWindowPolicy decides what happens to expenses dated outside the
// grant's [start, end] window.
type OutOfWindowPolicy string

const (
	OutOfWindowFlag    OutOfWindowPolicy = "flag"    // count toward spend, report a warning
	OutOfWindowExclude OutOfWindowPolicy = "exclude" // drop from spend, report a warning
)

type FinancialConfig struct {
	OutOfWindow OutOfWindowPolicy

	// Pending expenses count toward spend unless this is set.
	// Rejected expenses never count.
	ExcludePendingExpenses bool

	// Linear projections further out than this are reported as
	// beyond the horizon instead of as a date.
	MaxProjectionDays int
}

// DeadlineConfig holds the inclusive upper bound of each forward-looking tier.
type DeadlineConfig struct {
	Tier30Days int
	Tier60Days int
	Tier90Days int
}

// OutcomeConfig holds the inclusive OnTrack band for achievement ratios.
type OutcomeConfig struct {
	OnTrackLower decimal.Decimal
	OnTrackUpper decimal.Decimal
}

// AlertWeights is the penalty per alert of each tier.
type AlertWeights struct {
	Overdue decimal.Decimal
	Tier30  decimal.Decimal
	Tier60  decimal.Decimal
	Tier90  decimal.Decimal
}

// ComplianceConfig parameterizes the composite score:
//
//	score = clamp(100 - (alert + variance + outcome), 0, 100)
//	alert    = min(AlertCap, sum(weight(tier) * count(tier)))
//	variance = min(VarianceCap, max(0, |spent_pct - 1| - VarianceTolerance) * VarianceRate)
//	outcome  = min(OutcomeCap, falling_short / scored_metrics * OutcomeWeight)
type ComplianceConfig struct {
	AlertWeights AlertWeights
	AlertCap     decimal.Decimal

	VarianceTolerance decimal.Decimal
	VarianceRate      decimal.Decimal
	VarianceCap       decimal.Decimal

	OutcomeWeight decimal.Decimal
	OutcomeCap    decimal.Decimal
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Financial: FinancialConfig{
			OutOfWindow:       OutOfWindowFlag,
			MaxProjectionDays: 36500,
		},
		Deadlines: DeadlineConfig{
			Tier30Days: 30,
			Tier60Days: 60,
			Tier90Days: 90,
		},
		Outcomes: OutcomeConfig{
			OnTrackLower: decimal.RequireFromString("0.90"),
			OnTrackUpper: decimal.RequireFromString("1.10"),
		},
		Compliance: ComplianceConfig{
			AlertWeights: AlertWeights{
				Overdue: decimal.NewFromInt(10),
				Tier30:  decimal.NewFromInt(5),
				Tier60:  decimal.NewFromInt(2),
				Tier90:  decimal.NewFromInt(1),
			},
			AlertCap:          decimal.NewFromInt(40),
			VarianceTolerance: decimal.RequireFromString("0.10"),
			VarianceRate:      decimal.NewFromInt(100),
			VarianceCap:       decimal.NewFromInt(30),
			OutcomeWeight:     decimal.NewFromInt(30),
			OutcomeCap:        decimal.NewFromInt(30),
		},
	}
}

// ErrInvalidConfig is the root of every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid engine config")

var hundred = decimal.NewFromInt(100)

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch c.Financial.OutOfWindow {
	case OutOfWindowFlag, OutOfWindowExclude:
	default:
		bad("unknown out-of-window policy %q", c.Financial.OutOfWindow)
	}
	if c.Financial.MaxProjectionDays <= 0 {
		bad("max projection days must be positive, got %d", c.Financial.MaxProjectionDays)
	}

	d := c.Deadlines
	if d.Tier30Days < 0 || d.Tier30Days > d.Tier60Days || d.Tier60Days > d.Tier90Days {
		bad("deadline tiers must satisfy 0 <= tier30 <= tier60 <= tier90, got %d/%d/%d",
			d.Tier30Days, d.Tier60Days, d.Tier90Days)
	}

	o := c.Outcomes
	if o.OnTrackLower.IsNegative() || o.OnTrackLower.GreaterThan(o.OnTrackUpper) {
		bad("on-track band must satisfy 0 <= lower <= upper, got %s..%s", o.OnTrackLower, o.OnTrackUpper)
	}

	cc := c.Compliance
	nonNegative := []namedValue{
		{"overdue weight", cc.AlertWeights.Overdue},
		{"tier30 weight", cc.AlertWeights.Tier30},
		{"tier60 weight", cc.AlertWeights.Tier60},
		{"tier90 weight", cc.AlertWeights.Tier90},
		{"variance tolerance", cc.VarianceTolerance},
		{"variance rate", cc.VarianceRate},
		{"outcome weight", cc.OutcomeWeight},
	}
	for _, nv := range nonNegative {
		if nv.value.IsNegative() {
			bad("%s must not be negative, got %s", nv.name, nv.value)
		}
	}
	// A cap above 100 would let one dimension zero the score on its own.
	caps := []namedValue{
		{"alert cap", cc.AlertCap},
		{"variance cap", cc.VarianceCap},
		{"outcome cap", cc.OutcomeCap},
	}
	for _, nv := range caps {
		if nv.value.IsNegative() || nv.value.GreaterThan(hundred) {
			bad("%s must be within [0,100], got %s", nv.name, nv.value)
		}
	}

	return errors.Join(errs...)
}

type namedValue struct {
	name  string
	value decimal.Decimal
}
