package grant

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FIELD DECODING - Raw text from a store or file into typed values
// =============================================================================

// Decoder turns raw date and amount text into typed values, recording an
// error Issue for each value that does not parse. Empty text decodes to the
// zero value without an issue; missing required values are Validate's concern.
//
// Call At before decoding the fields of each record.
type Decoder struct {
	kind    RecordKind
	id      string
	grantID GrantID
	issues  []Issue
}

// At sets the record the following fields belong to.
func (d *Decoder) At(kind RecordKind, id string, gid GrantID) {
	d.kind, d.id, d.grantID = kind, id, gid
}

// Issues returns every decode failure recorded so far.
func (d *Decoder) Issues() []Issue { return d.issues }

// Fail records a record-level failure against the current record.
func (d *Decoder) Fail(code IssueCode, msg string) {
	d.issues = append(d.issues, Issue{
		Kind:     d.kind,
		RecordID: d.id,
		GrantID:  d.grantID,
		Code:     code,
		Severity: SeverityError,
		Message:  msg,
	})
}

func (d *Decoder) fieldFail(code IssueCode, field, value string) {
	d.Fail(code, fmt.Sprintf("field %s: cannot decode %q", field, value))
}

// Date decodes a YYYY-MM-DD field.
func (d *Decoder) Date(field, raw string) Date {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Date{}
	}
	date, err := ParseDate(raw)
	if err != nil {
		d.fieldFail(IssueMalformedDate, field, raw)
		return Date{}
	}
	return date
}

// Amount decodes a decimal field.
func (d *Decoder) Amount(field, raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		d.fieldFail(IssueMalformedAmount, field, raw)
		return decimal.Zero
	}
	return amount
}
