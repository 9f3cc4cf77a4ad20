/*
deadlines.go - Deadline Alert Engine

PURPOSE:
  Classifies every deliverable and scheduled report into an alert tier or
  Clear. This is a pure function of (due_date - today) and completion state,
  evaluated fresh on every run. Stored "Overdue" / "Late" status flags are
  never trusted; the tier is always re-derived from dates.

CLASSIFICATION (first match wins):
  completed / submitted        -> Clear
  due_date <= today            -> Overdue (days_overdue = today - due_date >= 0)
  due_date - today <= Tier30   -> Tier30
  due_date - today <= Tier60   -> Tier60
  due_date - today <= Tier90   -> Tier90
  otherwise                    -> Clear

  Bounds are inclusive on the nearer tier: exactly 30 days out is Tier30.
  An item due today is Overdue with days_overdue = 0.

ORDERING CONTRACT:
  Overdue first by descending days_overdue, then Tier30, Tier60, Tier90 each by
  ascending days remaining. Ties break on grant ID, item kind, item ID so the
  feed is byte-identical across runs.

DELIVERABLE TIMELINESS:
  Every deliverable, completed or not, with how late it is or was:
    completed  -> max(0, completion_date - due_date)  (0 without a completion date)
    open       -> max(0, today - due_date)
  Ordered by due date descending, then grant ID, then deliverable ID.
*/
package analytics

import (
	"sort"

	"github.com/warp/grant-engine/grant"
)

type AlertType string

const (
	AlertOverdue AlertType = "Overdue"
	AlertTier30  AlertType = "Tier30"
	AlertTier60  AlertType = "Tier60"
	AlertTier90  AlertType = "Tier90"
	AlertClear   AlertType = "Clear"
)

// Rank orders alert types from most to least urgent.
func (t AlertType) Rank() int {
	switch t {
	case AlertOverdue:
		return 0
	case AlertTier30:
		return 1
	case AlertTier60:
		return 2
	case AlertTier90:
		return 3
	default:
		return 4
	}
}

type ItemKind string

const (
	ItemDeliverable ItemKind = "deliverable"
	ItemReport      ItemKind = "report"
)

// ComplianceAlert is one unmet deadline.
//
// DaysOverdue is today - due_date: zero or positive for Overdue items, the
// negative lead time for forward-looking tiers.
type ComplianceAlert struct {
	AlertType   AlertType     `json:"alert_type"`
	ItemKind    ItemKind      `json:"item_kind"`
	GrantID     grant.GrantID `json:"grant_id"`
	GrantName   string        `json:"grant_name"`
	ItemID      string        `json:"item_id"`
	ItemName    string        `json:"item_name"`
	DueDate     grant.Date    `json:"due_date"`
	DaysOverdue int           `json:"days_overdue"`
}

// DaysRemaining is the lead time until the due date (negative when overdue).
func (a ComplianceAlert) DaysRemaining() int { return -a.DaysOverdue }

// Classify returns the alert tier of an item due on due as of today.
func Classify(due, today grant.Date, done bool, cfg DeadlineConfig) AlertType {
	if done {
		return AlertClear
	}
	lead := grant.DaysBetween(today, due)
	switch {
	case lead <= 0:
		return AlertOverdue
	case lead <= cfg.Tier30Days:
		return AlertTier30
	case lead <= cfg.Tier60Days:
		return AlertTier60
	case lead <= cfg.Tier90Days:
		return AlertTier90
	default:
		return AlertClear
	}
}

// ScanDeadlines returns the non-Clear alerts of one grant, in contract order.
func ScanDeadlines(gr grant.GrantRecords, today grant.Date, cfg DeadlineConfig) []ComplianceAlert {
	var alerts []ComplianceAlert
	emit := func(kind ItemKind, id, name string, due grant.Date, done bool) {
		t := Classify(due, today, done, cfg)
		if t == AlertClear {
			return
		}
		alerts = append(alerts, ComplianceAlert{
			AlertType:   t,
			ItemKind:    kind,
			GrantID:     gr.Grant.ID,
			GrantName:   gr.Grant.Name,
			ItemID:      id,
			ItemName:    name,
			DueDate:     due,
			DaysOverdue: grant.DaysBetween(due, today),
		})
	}

	for _, d := range gr.Deliverables {
		emit(ItemDeliverable, string(d.ID), d.Name, d.DueDate, d.IsComplete())
	}
	for _, r := range gr.Reports {
		emit(ItemReport, string(r.ID), r.ReportType, r.DueDate, r.IsSubmitted())
	}

	SortAlerts(alerts)
	return alerts
}

// SortAlerts applies the ordering contract in place.
func SortAlerts(alerts []ComplianceAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.AlertType.Rank() != b.AlertType.Rank() {
			return a.AlertType.Rank() < b.AlertType.Rank()
		}
		// Overdue: larger days_overdue first. Tiers: fewer days remaining
		// first, which is the same as larger (less negative) DaysOverdue.
		if a.DaysOverdue != b.DaysOverdue {
			return a.DaysOverdue > b.DaysOverdue
		}
		if a.GrantID != b.GrantID {
			return a.GrantID < b.GrantID
		}
		if a.ItemKind != b.ItemKind {
			return a.ItemKind < b.ItemKind
		}
		return a.ItemID < b.ItemID
	})
}

// AlertCounts tallies alerts per tier.
type AlertCounts struct {
	Overdue int `json:"overdue"`
	Tier30  int `json:"tier30"`
	Tier60  int `json:"tier60"`
	Tier90  int `json:"tier90"`
}

// CountAlerts tallies alerts per tier.
func CountAlerts(alerts []ComplianceAlert) AlertCounts {
	var c AlertCounts
	for _, a := range alerts {
		switch a.AlertType {
		case AlertOverdue:
			c.Overdue++
		case AlertTier30:
			c.Tier30++
		case AlertTier60:
			c.Tier60++
		case AlertTier90:
			c.Tier90++
		}
	}
	return c
}

// Total is the number of alerts counted.
func (c AlertCounts) Total() int { return c.Overdue + c.Tier30 + c.Tier60 + c.Tier90 }

// =============================================================================
// DELIVERABLE TIMELINESS
// =============================================================================

// DeliverableTimeliness reports how late one deliverable is, or was when it
// was completed.
type DeliverableTimeliness struct {
	GrantID        grant.GrantID           `json:"grant_id"`
	GrantName      string                  `json:"grant_name"`
	DeliverableID  grant.DeliverableID     `json:"deliverable_id"`
	Name           string                  `json:"deliverable_name"`
	DueDate        grant.Date              `json:"due_date"`
	Status         grant.DeliverableStatus `json:"status"`
	CompletionDate grant.Date              `json:"completion_date"`
	Completed      bool                    `json:"completed"`
	DaysLate       int                     `json:"days_late"`
}

// AssessDeliverables returns the timeliness of every deliverable of one grant.
func AssessDeliverables(gr grant.GrantRecords, today grant.Date) []DeliverableTimeliness {
	out := make([]DeliverableTimeliness, 0, len(gr.Deliverables))
	for _, d := range gr.Deliverables {
		dt := DeliverableTimeliness{
			GrantID:        gr.Grant.ID,
			GrantName:      gr.Grant.Name,
			DeliverableID:  d.ID,
			Name:           d.Name,
			DueDate:        d.DueDate,
			Status:         d.Status,
			CompletionDate: d.CompletionDate,
			Completed:      d.IsComplete(),
		}
		switch {
		case !dt.Completed:
			dt.DaysLate = max(0, grant.DaysBetween(d.DueDate, today))
		case !d.CompletionDate.IsZero():
			dt.DaysLate = max(0, grant.DaysBetween(d.DueDate, d.CompletionDate))
		}
		out = append(out, dt)
	}
	SortDeliverables(out)
	return out
}

// SortDeliverables orders by due date descending, then grant and deliverable ID.
func SortDeliverables(ds []DeliverableTimeliness) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.After(b.DueDate)
		}
		if a.GrantID != b.GrantID {
			return a.GrantID < b.GrantID
		}
		return a.DeliverableID < b.DeliverableID
	})
}
