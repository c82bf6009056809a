package records

import (
	"math"
	"sort"
	"time"

	"leads-dashboard/internal/analysis"
	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/format"
)

// PageSize is the fixed number of rows per table page.
const PageSize = 20

// Page is one slice of a filtered sequence.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Paginate returns page n (1-based) of items. There is always at least one
// page; n is clamped into range.
func Paginate[T any](items []T, n int) Page[T] {
	pages := int(math.Ceil(float64(len(items)) / PageSize))
	if pages < 1 {
		pages = 1
	}
	if n < 1 {
		n = 1
	}
	if n > pages {
		n = pages
	}
	start := (n - 1) * PageSize
	end := min(start+PageSize, len(items))
	out := make([]T, 0, end-start)
	out = append(out, items[start:end]...)
	return Page[T]{Items: out, Page: n, PerPage: PageSize, Total: len(items), TotalPages: pages}
}

// LeadStats counts over all of the company's leads, ignoring filters.
func LeadStats(leads []Lead, now time.Time, loc *time.Location) analysis.KPIs {
	in := make([]analysis.Lead, len(leads))
	for i, l := range leads {
		in[i] = l.Analysis()
	}
	return analysis.BuildOverview(in, nil, now, loc).Stats
}

// ContactKPIs summarizes the contacts table.
type ContactKPIs struct {
	Total           int     `json:"total"`
	DispatchesToday int     `json:"dispatches_today"`
	MeanDispatches  float64 `json:"mean_dispatches"`
}

// ContactStats counts over all contacts. The mean is rounded to one decimal.
func ContactStats(contacts []Contact, now time.Time, loc *time.Location) ContactKPIs {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Format(fields.DateLayout)
	var k ContactKPIs
	sum := 0
	for _, c := range contacts {
		k.Total++
		sum += c.DispatchCount
		if c.LastDispatchAt != nil && c.LastDispatchAt.In(loc).Format(fields.DateLayout) == today {
			k.DispatchesToday++
		}
	}
	if k.Total > 0 {
		k.MeanDispatches = math.Round(float64(sum)/float64(k.Total)*10) / 10
	}
	return k
}

// Locations returns the distinct non-empty contact locations, sorted.
func Locations(contacts []Contact) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, c := range contacts {
		if c.Location != "" && !seen[c.Location] {
			seen[c.Location] = true
			out = append(out, c.Location)
		}
	}
	sort.Strings(out)
	return out
}

// Column is a dynamic lead table column.
type Column struct {
	Key   string      `json:"field_key"`
	Label string      `json:"field_label"`
	Type  fields.Type `json:"field_type"`
}

// LeadRow is a lead plus its formatted cells.
type LeadRow struct {
	Lead
	CreatedAtText string                    `json:"created_at_text"`
	Cells         map[string]format.Display `json:"cells"`
}

// LeadTable is the leads view for one filter and page.
type LeadTable struct {
	Stats        analysis.KPIs `json:"stats"`
	Columns      []Column      `json:"columns"`
	HasDropdowns bool          `json:"has_dropdowns"`
	Rows         Page[LeadRow] `json:"rows"`
}

// BuildLeadTable filters, paginates and formats leads. defs must already be
// in column order.
func BuildLeadTable(leads []Lead, defs []fields.Definition, m *LeadMatcher, page int, f format.Formatter, now time.Time) LeadTable {
	t := LeadTable{
		Stats:   LeadStats(leads, now, f.Location),
		Columns: make([]Column, len(defs)),
	}
	for i, d := range defs {
		t.Columns[i] = Column{Key: d.Key, Label: d.Label, Type: d.Type}
		if d.Type == fields.TypeDropdown {
			t.HasDropdowns = true
		}
	}

	p := Paginate(FilterLeads(leads, m), page)
	rows := make([]LeadRow, len(p.Items))
	for i, l := range p.Items {
		cells := make(map[string]format.Display, len(defs))
		for j := range defs {
			cells[defs[j].Key] = f.Value(&defs[j], l.Metadata[defs[j].Key])
		}
		rows[i] = LeadRow{Lead: l, CreatedAtText: f.DateTime(l.CreatedAt), Cells: cells}
	}
	t.Rows = Page[LeadRow]{Items: rows, Page: p.Page, PerPage: p.PerPage, Total: p.Total, TotalPages: p.TotalPages}
	return t
}

// ContactTable is the contacts view for one filter and page.
type ContactTable struct {
	Stats     ContactKPIs   `json:"stats"`
	Locations []string      `json:"locations"`
	Rows      Page[Contact] `json:"rows"`
}

func BuildContactTable(contacts []Contact, m *ContactMatcher, page int, now time.Time, loc *time.Location) ContactTable {
	return ContactTable{
		Stats:     ContactStats(contacts, now, loc),
		Locations: Locations(contacts),
		Rows:      Paginate(FilterContacts(contacts, m), page),
	}
}
