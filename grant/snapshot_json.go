package grant

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// JSON SNAPSHOT - Portfolio exported as one JSON document
// =============================================================================

// DecodeSnapshotJSON reads a portfolio document using the same collection and
// field names as the database. Only a document that is not valid JSON fails
// as a whole. A record whose date or amount does not parse is kept with that
// field zeroed and reported in LoadIssues; a record that cannot be decoded at
// all is dropped and reported. Validate then excludes both.
func DecodeSnapshotJSON(data []byte) (Snapshot, error) {
	var doc struct {
		Grants       []json.RawMessage `json:"grants"`
		Categories   []json.RawMessage `json:"budget_categories"`
		Expenses     []json.RawMessage `json:"expenses"`
		Deliverables []json.RawMessage `json:"deliverables"`
		Metrics      []json.RawMessage `json:"outcome_metrics"`
		Reports      []json.RawMessage `json:"reports"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, err
	}

	var (
		snap Snapshot
		dec  Decoder
	)
	decodeRecords(&dec, KindGrant, "grant_id", doc.Grants, func(w grantJSON) {
		dec.At(KindGrant, string(w.ID), w.ID)
		snap.Grants = append(snap.Grants, Grant{
			ID:                 w.ID,
			Name:               w.Name,
			FunderName:         w.FunderName,
			FunderType:         w.FunderType,
			AwardAmount:        dec.Amount("total_amount", string(w.AwardAmount)),
			StartDate:          dec.Date("start_date", string(w.StartDate)),
			EndDate:            dec.Date("end_date", string(w.EndDate)),
			Status:             w.Status,
			ReportingFrequency: w.ReportingFrequency,
			Purpose:            w.Purpose,
		})
	})
	decodeRecords(&dec, KindCategory, "category_id", doc.Categories, func(w categoryJSON) {
		dec.At(KindCategory, string(w.ID), w.GrantID)
		snap.Categories = append(snap.Categories, BudgetCategory{
			ID:             w.ID,
			GrantID:        w.GrantID,
			Name:           w.Name,
			BudgetedAmount: dec.Amount("budgeted_amount", string(w.BudgetedAmount)),
		})
	})
	decodeRecords(&dec, KindExpense, "expense_id", doc.Expenses, func(w expenseJSON) {
		dec.At(KindExpense, string(w.ID), w.GrantID)
		e := Expense{
			ID:          w.ID,
			GrantID:     w.GrantID,
			CategoryID:  w.CategoryID,
			Date:        dec.Date("expense_date", string(w.Date)),
			Amount:      dec.Amount("amount", string(w.Amount)),
			Approval:    w.Approval,
			Vendor:      w.Vendor,
			Description: w.Description,
		}
		if e.Approval == "" {
			e.Approval = ApprovalApproved
		}
		snap.Expenses = append(snap.Expenses, e)
	})
	decodeRecords(&dec, KindDeliverable, "deliverable_id", doc.Deliverables, func(w deliverableJSON) {
		dec.At(KindDeliverable, string(w.ID), w.GrantID)
		snap.Deliverables = append(snap.Deliverables, Deliverable{
			ID:             w.ID,
			GrantID:        w.GrantID,
			Name:           w.Name,
			DueDate:        dec.Date("due_date", string(w.DueDate)),
			Status:         w.Status,
			CompletionDate: dec.Date("completion_date", string(w.CompletionDate)),
		})
	})
	decodeRecords(&dec, KindMetric, "metric_id", doc.Metrics, func(w metricJSON) {
		dec.At(KindMetric, string(w.ID), w.GrantID)
		snap.Metrics = append(snap.Metrics, OutcomeMetric{
			ID:                w.ID,
			GrantID:           w.GrantID,
			Name:              w.Name,
			TargetValue:       dec.Amount("target_value", string(w.TargetValue)),
			CurrentValue:      dec.Amount("current_value", string(w.CurrentValue)),
			Unit:              w.Unit,
			MeasurementPeriod: w.MeasurementPeriod,
		})
	})
	decodeRecords(&dec, KindReport, "report_id", doc.Reports, func(w reportJSON) {
		dec.At(KindReport, string(w.ID), w.GrantID)
		snap.Reports = append(snap.Reports, Report{
			ID:             w.ID,
			GrantID:        w.GrantID,
			ReportType:     w.ReportType,
			DueDate:        dec.Date("due_date", string(w.DueDate)),
			SubmissionDate: dec.Date("submission_date", string(w.SubmissionDate)),
			Status:         w.Status,
		})
	})

	snap.LoadIssues = dec.Issues()
	SortIssues(snap.LoadIssues)
	return snap, nil
}

// decodeRecords unmarshals each raw record into W and hands it to each.
// A record that does not fit W is reported under whatever identity it carries.
func decodeRecords[W any](dec *Decoder, kind RecordKind, idField string, raws []json.RawMessage, each func(W)) {
	for i, raw := range raws {
		var w W
		if err := json.Unmarshal(raw, &w); err != nil {
			id, gid := recordIdentity(raw, idField)
			if id == "" {
				id = fmt.Sprintf("%s[%d]", kind, i)
			}
			dec.At(kind, id, gid)
			dec.Fail(IssueMalformedRecord, fmt.Sprintf("cannot decode record: %v", err))
			continue
		}
		each(w)
	}
}

func recordIdentity(raw json.RawMessage, idField string) (string, GrantID) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", ""
	}
	var id, gid string
	_ = json.Unmarshal(fields[idField], &id)
	_ = json.Unmarshal(fields["grant_id"], &gid)
	return id, GrantID(gid)
}

// rawText keeps a date or amount field as written: a JSON string is
// unquoted, a number or any other value is kept verbatim, null is empty.
type rawText string

func (t *rawText) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		*t = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = rawText(s)
	default:
		*t = rawText(raw)
	}
	return nil
}

type grantJSON struct {
	ID                 GrantID            `json:"grant_id"`
	Name               string             `json:"grant_name"`
	FunderName         string             `json:"funder_name"`
	FunderType         FunderType         `json:"funder_type"`
	AwardAmount        rawText            `json:"total_amount"`
	StartDate          rawText            `json:"start_date"`
	EndDate            rawText            `json:"end_date"`
	Status             GrantStatus        `json:"status"`
	ReportingFrequency ReportingFrequency `json:"reporting_frequency"`
	Purpose            string             `json:"purpose"`
}

type categoryJSON struct {
	ID             CategoryID `json:"category_id"`
	GrantID        GrantID    `json:"grant_id"`
	Name           string     `json:"category_name"`
	BudgetedAmount rawText    `json:"budgeted_amount"`
}

type expenseJSON struct {
	ID          ExpenseID     `json:"expense_id"`
	GrantID     GrantID       `json:"grant_id"`
	CategoryID  CategoryID    `json:"category_id"`
	Date        rawText       `json:"expense_date"`
	Amount      rawText       `json:"amount"`
	Approval    ApprovalState `json:"approval_state"`
	Vendor      string        `json:"vendor"`
	Description string        `json:"description"`
}

type deliverableJSON struct {
	ID             DeliverableID     `json:"deliverable_id"`
	GrantID        GrantID           `json:"grant_id"`
	Name           string            `json:"deliverable_name"`
	DueDate        rawText           `json:"due_date"`
	Status         DeliverableStatus `json:"status"`
	CompletionDate rawText           `json:"completion_date"`
}

type metricJSON struct {
	ID                MetricID `json:"metric_id"`
	GrantID           GrantID  `json:"grant_id"`
	Name              string   `json:"metric_name"`
	TargetValue       rawText  `json:"target_value"`
	CurrentValue      rawText  `json:"current_value"`
	Unit              string   `json:"unit_of_measure"`
	MeasurementPeriod string   `json:"measurement_period"`
}

type reportJSON struct {
	ID             ReportID     `json:"report_id"`
	GrantID        GrantID      `json:"grant_id"`
	ReportType     string       `json:"report_type"`
	DueDate        rawText      `json:"due_date"`
	SubmissionDate rawText      `json:"submission_date"`
	Status         ReportStatus `json:"status"`
}
