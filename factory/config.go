/*
Package factory converts configuration files into engine and server settings.

PURPOSE:
  Turns a TOML or JSON document into an analytics.Config (thresholds,
  weights, expense policies) plus the server settings. Every field is
  optional: anything left out keeps the documented default from
  analytics.DefaultConfig, so a funder-facing deployment can override only
  the weights it disagrees with.

TOML SCHEMA:
  [financial]
  out_of_window = "flag"          # or "exclude"
  exclude_pending_expenses = false
  max_projection_days = 36500

  [deadlines]
  tier30_days = 30
  tier60_days = 60
  tier90_days = 90

  [outcomes]
  on_track_lower = 0.90
  on_track_upper = 1.10

  [compliance]
  alert_cap = 40
  variance_tolerance = 0.10
  variance_rate = 100
  variance_cap = 30
  outcome_weight = 30
  outcome_cap = 30
  [compliance.alert_weights]
  overdue = 10
  tier30 = 5
  tier60 = 2
  tier90 = 1

  [server]
  port = 8080
  db = "grants.db"
  refresh_interval = "15m"
  fetch_timeout = "10s"
  log_level = "info"
  allowed_origins = ["http://localhost:5173"]

  JSON uses the same keys.

USAGE:
  settings, err := factory.Load("grants.toml")
  engine, err := analytics.NewEngine(settings.Engine, grant.SystemClock{})

SEE ALSO:
  - analytics/config.go: Config type, defaults and validation
*/
package factory

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
	"github.com/warp/grant-engine/analytics"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// FileConfig is the on-disk representation. Pointer fields distinguish
// "not set" from an explicit zero.
type FileConfig struct {
	Financial  *FinancialFile  `toml:"financial,omitempty" json:"financial,omitempty"`
	Deadlines  *DeadlinesFile  `toml:"deadlines,omitempty" json:"deadlines,omitempty"`
	Outcomes   *OutcomesFile   `toml:"outcomes,omitempty" json:"outcomes,omitempty"`
	Compliance *ComplianceFile `toml:"compliance,omitempty" json:"compliance,omitempty"`
	Server     *ServerFile     `toml:"server,omitempty" json:"server,omitempty"`
}

type FinancialFile struct {
	OutOfWindow            *string `toml:"out_of_window,omitempty" json:"out_of_window,omitempty"`
	ExcludePendingExpenses *bool   `toml:"exclude_pending_expenses,omitempty" json:"exclude_pending_expenses,omitempty"`
	MaxProjectionDays      *int    `toml:"max_projection_days,omitempty" json:"max_projection_days,omitempty"`
}

type DeadlinesFile struct {
	Tier30Days *int `toml:"tier30_days,omitempty" json:"tier30_days,omitempty"`
	Tier60Days *int `toml:"tier60_days,omitempty" json:"tier60_days,omitempty"`
	Tier90Days *int `toml:"tier90_days,omitempty" json:"tier90_days,omitempty"`
}

type OutcomesFile struct {
	OnTrackLower *float64 `toml:"on_track_lower,omitempty" json:"on_track_lower,omitempty"`
	OnTrackUpper *float64 `toml:"on_track_upper,omitempty" json:"on_track_upper,omitempty"`
}

type AlertWeightsFile struct {
	Overdue *float64 `toml:"overdue,omitempty" json:"overdue,omitempty"`
	Tier30  *float64 `toml:"tier30,omitempty" json:"tier30,omitempty"`
	Tier60  *float64 `toml:"tier60,omitempty" json:"tier60,omitempty"`
	Tier90  *float64 `toml:"tier90,omitempty" json:"tier90,omitempty"`
}

type ComplianceFile struct {
	AlertWeights      *AlertWeightsFile `toml:"alert_weights,omitempty" json:"alert_weights,omitempty"`
	AlertCap          *float64          `toml:"alert_cap,omitempty" json:"alert_cap,omitempty"`
	VarianceTolerance *float64          `toml:"variance_tolerance,omitempty" json:"variance_tolerance,omitempty"`
	VarianceRate      *float64          `toml:"variance_rate,omitempty" json:"variance_rate,omitempty"`
	VarianceCap       *float64          `toml:"variance_cap,omitempty" json:"variance_cap,omitempty"`
	OutcomeWeight     *float64          `toml:"outcome_weight,omitempty" json:"outcome_weight,omitempty"`
	OutcomeCap        *float64          `toml:"outcome_cap,omitempty" json:"outcome_cap,omitempty"`
}

type ServerFile struct {
	Port            *int     `toml:"port,omitempty" json:"port,omitempty"`
	DBPath          *string  `toml:"db,omitempty" json:"db,omitempty"`
	RefreshInterval *string  `toml:"refresh_interval,omitempty" json:"refresh_interval,omitempty"`
	FetchTimeout    *string  `toml:"fetch_timeout,omitempty" json:"fetch_timeout,omitempty"`
	LogLevel        *string  `toml:"log_level,omitempty" json:"log_level,omitempty"`
	AllowedOrigins  []string `toml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// ServerConfig holds process-level settings for cmd/server.
type ServerConfig struct {
	Port            int
	DBPath          string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	LogLevel        slog.Level
	AllowedOrigins  []string
}

// Settings is everything a process needs to start.
type Settings struct {
	Engine analytics.Config
	Server ServerConfig
}

// DefaultSettings returns engine and server defaults.
func DefaultSettings() Settings {
	return Settings{
		Engine: analytics.DefaultConfig(),
		Server: ServerConfig{
			Port:            8080,
			DBPath:          "grants.db",
			RefreshInterval: 15 * time.Minute,
			FetchTimeout:    analytics.DefaultFetchTimeout,
			LogLevel:        slog.LevelInfo,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:8080"},
		},
	}
}

// Format selects the document syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file extension (TOML unless .json).
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatTOML
}

// Load reads path and applies it over the defaults. An empty path returns
// the defaults.
func Load(path string) (Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data, FormatFor(path))
}

// Parse decodes data and applies it over the defaults, then validates the
// resulting engine configuration.
func Parse(data []byte, format Format) (Settings, error) {
	var fc FileConfig
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &fc); err != nil {
			return Settings{}, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Settings{}, fmt.Errorf("parsing TOML config: %w", err)
		}
	}

	s := DefaultSettings()
	if err := fc.apply(&s); err != nil {
		return Settings{}, err
	}
	if err := s.Engine.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (fc FileConfig) apply(s *Settings) error {
	if f := fc.Financial; f != nil {
		setString(&s.Engine.Financial.OutOfWindow, f.OutOfWindow)
		setValue(&s.Engine.Financial.ExcludePendingExpenses, f.ExcludePendingExpenses)
		setValue(&s.Engine.Financial.MaxProjectionDays, f.MaxProjectionDays)
	}
	if d := fc.Deadlines; d != nil {
		setValue(&s.Engine.Deadlines.Tier30Days, d.Tier30Days)
		setValue(&s.Engine.Deadlines.Tier60Days, d.Tier60Days)
		setValue(&s.Engine.Deadlines.Tier90Days, d.Tier90Days)
	}
	if o := fc.Outcomes; o != nil {
		setDecimal(&s.Engine.Outcomes.OnTrackLower, o.OnTrackLower)
		setDecimal(&s.Engine.Outcomes.OnTrackUpper, o.OnTrackUpper)
	}
	if c := fc.Compliance; c != nil {
		cc := &s.Engine.Compliance
		if w := c.AlertWeights; w != nil {
			setDecimal(&cc.AlertWeights.Overdue, w.Overdue)
			setDecimal(&cc.AlertWeights.Tier30, w.Tier30)
			setDecimal(&cc.AlertWeights.Tier60, w.Tier60)
			setDecimal(&cc.AlertWeights.Tier90, w.Tier90)
		}
		setDecimal(&cc.AlertCap, c.AlertCap)
		setDecimal(&cc.VarianceTolerance, c.VarianceTolerance)
		setDecimal(&cc.VarianceRate, c.VarianceRate)
		setDecimal(&cc.VarianceCap, c.VarianceCap)
		setDecimal(&cc.OutcomeWeight, c.OutcomeWeight)
		setDecimal(&cc.OutcomeCap, c.OutcomeCap)
	}
	if sv := fc.Server; sv != nil {
		setValue(&s.Server.Port, sv.Port)
		setValue(&s.Server.DBPath, sv.DBPath)
		if err := setDuration(&s.Server.RefreshInterval, sv.RefreshInterval, "refresh_interval"); err != nil {
			return err
		}
		if err := setDuration(&s.Server.FetchTimeout, sv.FetchTimeout, "fetch_timeout"); err != nil {
			return err
		}
		if sv.LogLevel != nil {
			if err := s.Server.LogLevel.UnmarshalText([]byte(*sv.LogLevel)); err != nil {
				return fmt.Errorf("invalid log_level %q: %w", *sv.LogLevel, err)
			}
		}
		if len(sv.AllowedOrigins) > 0 {
			s.Server.AllowedOrigins = sv.AllowedOrigins
		}
	}
	return nil
}

// =============================================================================
// ENCODING - Effective configuration back to a file
// =============================================================================

// ToFile converts settings into their file representation, every field set.
func ToFile(s Settings) FileConfig {
	e := s.Engine
	f := func(d decimal.Decimal) *float64 { v := d.InexactFloat64(); return &v }
	oow := string(e.Financial.OutOfWindow)
	level := strings.ToLower(s.Server.LogLevel.String())
	refresh := s.Server.RefreshInterval.String()
	fetch := s.Server.FetchTimeout.String()

	return FileConfig{
		Financial: &FinancialFile{
			OutOfWindow:            &oow,
			ExcludePendingExpenses: &e.Financial.ExcludePendingExpenses,
			MaxProjectionDays:      &e.Financial.MaxProjectionDays,
		},
		Deadlines: &DeadlinesFile{
			Tier30Days: &e.Deadlines.Tier30Days,
			Tier60Days: &e.Deadlines.Tier60Days,
			Tier90Days: &e.Deadlines.Tier90Days,
		},
		Outcomes: &OutcomesFile{
			OnTrackLower: f(e.Outcomes.OnTrackLower),
			OnTrackUpper: f(e.Outcomes.OnTrackUpper),
		},
		Compliance: &ComplianceFile{
			AlertWeights: &AlertWeightsFile{
				Overdue: f(e.Compliance.AlertWeights.Overdue),
				Tier30:  f(e.Compliance.AlertWeights.Tier30),
				Tier60:  f(e.Compliance.AlertWeights.Tier60),
				Tier90:  f(e.Compliance.AlertWeights.Tier90),
			},
			AlertCap:          f(e.Compliance.AlertCap),
			VarianceTolerance: f(e.Compliance.VarianceTolerance),
			VarianceRate:      f(e.Compliance.VarianceRate),
			VarianceCap:       f(e.Compliance.VarianceCap),
			OutcomeWeight:     f(e.Compliance.OutcomeWeight),
			OutcomeCap:        f(e.Compliance.OutcomeCap),
		},
		Server: &ServerFile{
			Port:            &s.Server.Port,
			DBPath:          &s.Server.DBPath,
			RefreshInterval: &refresh,
			FetchTimeout:    &fetch,
			LogLevel:        &level,
			AllowedOrigins:  s.Server.AllowedOrigins,
		},
	}
}

// WriteTOML encodes the effective settings as TOML.
func WriteTOML(w io.Writer, s Settings) error {
	return toml.NewEncoder(w).Encode(ToFile(s))
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setString[T ~string](dst *T, src *string) {
	if src != nil {
		*dst = T(*src)
	}
}

func setDecimal(dst *decimal.Decimal, src *float64) {
	if src != nil {
		*dst = decimal.NewFromFloat(*src)
	}
}

func setDuration(dst *time.Duration, src *string, field string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, *src, err)
	}
	*dst = d
	return nil
}
