package grant

import (
	"sort"
)

// =============================================================================
// SNAPSHOT - Immutable input of one engine invocation
// =============================================================================

// Snapshot is every record the engine reads for one run.
// It is fetched once and never mutated afterwards.
type Snapshot struct {
	Grants       []Grant          `json:"grants"`
	Categories   []BudgetCategory `json:"budget_categories"`
	Expenses     []Expense        `json:"expenses"`
	Deliverables []Deliverable    `json:"deliverables"`
	Metrics      []OutcomeMetric  `json:"outcome_metrics"`
	Reports      []Report         `json:"reports"`

	// Decode failures reported by the store, merged into validation output.
	LoadIssues []Issue `json:"-"`
}

// =============================================================================
// GRANT RECORDS - Strict tree: Grant owns Categories owns Expenses
// =============================================================================

// GrantRecords groups one grant with every record that references it.
type GrantRecords struct {
	Grant        Grant
	Categories   []BudgetCategory
	Expenses     []Expense
	Deliverables []Deliverable
	Metrics      []OutcomeMetric
	Reports      []Report
}

// ByGrant groups the snapshot per grant, ordered by grant ID. Records whose
// grant is not in the snapshot are dropped; run Validate first to report them.
// Child slices are sorted by ID so downstream output is deterministic.
func (s Snapshot) ByGrant() []GrantRecords {
	index := make(map[GrantID]*GrantRecords, len(s.Grants))
	out := make([]*GrantRecords, 0, len(s.Grants))
	for _, g := range s.Grants {
		if _, dup := index[g.ID]; dup {
			continue
		}
		gr := &GrantRecords{Grant: g}
		index[g.ID] = gr
		out = append(out, gr)
	}

	for _, c := range s.Categories {
		if gr, ok := index[c.GrantID]; ok {
			gr.Categories = append(gr.Categories, c)
		}
	}
	for _, e := range s.Expenses {
		if gr, ok := index[e.GrantID]; ok {
			gr.Expenses = append(gr.Expenses, e)
		}
	}
	for _, d := range s.Deliverables {
		if gr, ok := index[d.GrantID]; ok {
			gr.Deliverables = append(gr.Deliverables, d)
		}
	}
	for _, m := range s.Metrics {
		if gr, ok := index[m.GrantID]; ok {
			gr.Metrics = append(gr.Metrics, m)
		}
	}
	for _, r := range s.Reports {
		if gr, ok := index[r.GrantID]; ok {
			gr.Reports = append(gr.Reports, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Grant.ID < out[j].Grant.ID })
	result := make([]GrantRecords, len(out))
	for i, gr := range out {
		sort.Slice(gr.Categories, func(a, b int) bool { return gr.Categories[a].ID < gr.Categories[b].ID })
		sort.Slice(gr.Expenses, func(a, b int) bool { return gr.Expenses[a].ID < gr.Expenses[b].ID })
		sort.Slice(gr.Deliverables, func(a, b int) bool { return gr.Deliverables[a].ID < gr.Deliverables[b].ID })
		sort.Slice(gr.Metrics, func(a, b int) bool { return gr.Metrics[a].ID < gr.Metrics[b].ID })
		sort.Slice(gr.Reports, func(a, b int) bool { return gr.Reports[a].ID < gr.Reports[b].ID })
		result[i] = *gr
	}
	return result
}

// WithoutLoadFailures returns a copy of s without the records its LoadIssues
// exclude, the records those own, and the issues themselves. Import uses it
// so a zeroed field never reaches a store as if it were real data.
func (s Snapshot) WithoutLoadFailures() Snapshot {
	failed := make(map[RecordKind]map[string]bool)
	for _, is := range s.LoadIssues {
		if !is.Excludes() {
			continue
		}
		if failed[is.Kind] == nil {
			failed[is.Kind] = make(map[string]bool)
		}
		failed[is.Kind][is.RecordID] = true
	}
	keep := func(kind RecordKind, id string, gid GrantID) bool {
		return !failed[kind][id] && !failed[KindGrant][string(gid)]
	}

	out := Snapshot{}
	for _, g := range s.Grants {
		if keep(KindGrant, string(g.ID), g.ID) {
			out.Grants = append(out.Grants, g)
		}
	}
	for _, c := range s.Categories {
		if keep(KindCategory, string(c.ID), c.GrantID) {
			out.Categories = append(out.Categories, c)
		}
	}
	for _, e := range s.Expenses {
		if keep(KindExpense, string(e.ID), e.GrantID) && !failed[KindCategory][string(e.CategoryID)] {
			out.Expenses = append(out.Expenses, e)
		}
	}
	for _, d := range s.Deliverables {
		if keep(KindDeliverable, string(d.ID), d.GrantID) {
			out.Deliverables = append(out.Deliverables, d)
		}
	}
	for _, m := range s.Metrics {
		if keep(KindMetric, string(m.ID), m.GrantID) {
			out.Metrics = append(out.Metrics, m)
		}
	}
	for _, r := range s.Reports {
		if keep(KindReport, string(r.ID), r.GrantID) {
			out.Reports = append(out.Reports, r)
		}
	}
	return out
}
