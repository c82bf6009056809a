package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"leads-dashboard/internal/fields"
)

// Interest filter values.
const (
	InterestAll = "all"
	InterestYes = "interest"
	InterestNo  = "no_interest"
)

// Reply filter values.
const (
	ReplyAll    = "all"
	ReplyManual = "manual"
	ReplyAuto   = "auto"
)

// LeadFilter is the filter state of the leads table. Empty fields do not
// filter. All predicates must hold.
type LeadFilter struct {
	Search   string
	Interest string
	Reply    string
	// DateFrom and DateTo are calendar dates (yyyy-mm-dd), both inclusive.
	DateFrom string
	DateTo   string
	// Meta filters metadata values by exact match, keyed by field_key.
	Meta map[string]string
	// Where is an optional boolean expression over name, phone, interested,
	// manual_reply, created_at and metadata.
	Where string
}

// LeadMatcher is a compiled LeadFilter.
type LeadMatcher struct {
	search   string
	interest string
	reply    string
	from, to time.Time
	meta     map[string]string
	where    *vm.Program
}

// Compile validates the filter. Dates are read in loc.
func (f LeadFilter) Compile(loc *time.Location) (*LeadMatcher, error) {
	m := &LeadMatcher{
		search:   strings.ToLower(strings.TrimSpace(f.Search)),
		interest: f.Interest,
		reply:    f.Reply,
		meta:     f.Meta,
	}
	switch f.Interest {
	case "", InterestAll, InterestYes, InterestNo:
	default:
		return nil, fmt.Errorf("invalid interest filter %q", f.Interest)
	}
	switch f.Reply {
	case "", ReplyAll, ReplyManual, ReplyAuto:
	default:
		return nil, fmt.Errorf("invalid reply filter %q", f.Reply)
	}
	var err error
	if m.from, m.to, err = dateRange(f.DateFrom, f.DateTo, loc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Where) != "" {
		m.where, err = expr.Compile(f.Where, expr.Env(leadEnv(Lead{})), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile where: %w", err)
		}
	}
	return m, nil
}

func leadEnv(l Lead) map[string]any {
	meta := l.Metadata
	if meta == nil {
		meta = fields.Metadata{}
	}
	return map[string]any{
		"name":         l.Name,
		"phone":        l.Phone,
		"interested":   l.Interested,
		"manual_reply": l.ManualReply,
		"created_at":   l.CreatedAt,
		"metadata":     map[string]any(meta),
	}
}

// Match reports whether l passes every predicate. A where expression that
// fails to evaluate excludes the lead.
func (m *LeadMatcher) Match(l Lead) bool {
	if !matchSearch(m.search, l.Name, l.Phone) {
		return false
	}
	switch m.interest {
	case InterestYes:
		if !l.Interested {
			return false
		}
	case InterestNo:
		if l.Interested {
			return false
		}
	}
	switch m.reply {
	case ReplyManual:
		if !l.ManualReply {
			return false
		}
	case ReplyAuto:
		if l.ManualReply {
			return false
		}
	}
	if !inRange(&l.CreatedAt, m.from, m.to) {
		return false
	}
	for key, want := range m.meta {
		v, ok := l.Metadata[key]
		if !ok || fields.IsEmpty(v) || fmt.Sprint(v) != want {
			return false
		}
	}
	if m.where != nil {
		out, err := expr.Run(m.where, leadEnv(l))
		if err != nil {
			return false
		}
		if ok, _ := out.(bool); !ok {
			return false
		}
	}
	return true
}

// FilterLeads keeps the leads that match, preserving their order.
func FilterLeads(leads []Lead, m *LeadMatcher) []Lead {
	out := make([]Lead, 0, len(leads))
	for _, l := range leads {
		if m.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

// ContactFilter is the filter state of the contacts table.
type ContactFilter struct {
	Search   string
	Location string
	DateFrom string
	DateTo   string
}

// ContactMatcher is a compiled ContactFilter.
type ContactMatcher struct {
	search   string
	location string
	from, to time.Time
}

func (f ContactFilter) Compile(loc *time.Location) (*ContactMatcher, error) {
	from, to, err := dateRange(f.DateFrom, f.DateTo, loc)
	if err != nil {
		return nil, err
	}
	location := f.Location
	if location == "all" {
		location = ""
	}
	return &ContactMatcher{
		search:   strings.ToLower(strings.TrimSpace(f.Search)),
		location: location,
		from:     from,
		to:       to,
	}, nil
}

func (m *ContactMatcher) Match(c Contact) bool {
	if !matchSearch(m.search, c.Name, c.Phone) {
		return false
	}
	if m.location != "" && c.Location != m.location {
		return false
	}
	return inRange(c.CollectedAt, m.from, m.to)
}

// FilterContacts keeps the contacts that match, preserving their order.
func FilterContacts(contacts []Contact, m *ContactMatcher) []Contact {
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if m.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

func matchSearch(q, name, phone string) bool {
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), q) || strings.Contains(strings.ToLower(phone), q)
}

// dateRange turns two calendar dates into [from 00:00:00, to 23:59:59] in loc.
// Zero times mean unbounded.
func dateRange(fromStr, toStr string, loc *time.Location) (from, to time.Time, err error) {
	if loc == nil {
		loc = time.UTC
	}
	if fromStr != "" {
		if from, err = time.ParseInLocation(fields.DateLayout, fromStr, loc); err != nil {
			return from, to, fmt.Errorf("invalid date_from %q", fromStr)
		}
	}
	if toStr != "" {
		if to, err = time.ParseInLocation(fields.DateLayout, toStr, loc); err != nil {
			return from, to, fmt.Errorf("invalid date_to %q", toStr)
		}
		to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, loc)
	}
	return from, to, nil
}

// inRange treats a missing timestamp as outside any bounded range.
func inRange(t *time.Time, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	if t == nil || t.IsZero() {
		return false
	}
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
