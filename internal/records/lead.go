// Package records serves the leads and contacts tables: loading, filtering,
// pagination and lead edits.
package records

import (
	"time"

	"leads-dashboard/internal/analysis"
	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/store"
)

// Lead is one row of the leads table.
type Lead struct {
	ID          string          `json:"id"`
	CompanyID   string          `json:"company_id"`
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Response    string          `json:"response"`
	ManualReply bool            `json:"manual_reply"`
	AIBriefing  string          `json:"ai_briefing"`
	Interested  bool            `json:"interested"`
	Metadata    fields.Metadata `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LeadFromRow reads a leads row.
func LeadFromRow(row map[string]any) Lead {
	l := Lead{
		ID:          store.AsString(row["id"]),
		CompanyID:   store.AsString(row["company_id"]),
		Name:        store.AsString(row["name"]),
		Phone:       store.AsString(row["phone"]),
		Response:    store.AsString(row["response"]),
		ManualReply: store.AsBool(row["manual_reply"]),
		AIBriefing:  store.AsString(row["ai_briefing"]),
		Interested:  store.AsBool(row["interested"]),
		Metadata:    fields.DecodeMetadata(row["metadata"]),
	}
	l.CreatedAt, _ = store.ParseTime(row["created_at"])
	l.UpdatedAt, _ = store.ParseTime(row["updated_at"])
	return l
}

// Analysis returns the subset of the lead the overview needs.
func (l Lead) Analysis() analysis.Lead {
	return analysis.Lead{
		CreatedAt:   l.CreatedAt,
		Interested:  l.Interested,
		ManualReply: l.ManualReply,
		Metadata:    l.Metadata,
	}
}

// LeadPatch holds the editable columns of a lead. An edit always writes all
// of them and nothing else.
type LeadPatch struct {
	Name        string          `json:"name"`
	Phone       string          `json:"phone"`
	Response    string          `json:"response"`
	ManualReply bool            `json:"manual_reply"`
	AIBriefing  string          `json:"ai_briefing"`
	Interested  bool            `json:"interested"`
	Metadata    fields.Metadata `json:"metadata"`
}

// Patch returns a detached, editable copy of the lead.
func (l Lead) Patch() LeadPatch {
	meta := make(fields.Metadata, len(l.Metadata))
	for k, v := range l.Metadata {
		meta[k] = v
	}
	return LeadPatch{
		Name:        l.Name,
		Phone:       l.Phone,
		Response:    l.Response,
		ManualReply: l.ManualReply,
		AIBriefing:  l.AIBriefing,
		Interested:  l.Interested,
		Metadata:    meta,
	}
}

// Row returns the column map written by an edit.
func (p LeadPatch) Row() (map[string]any, error) {
	meta := p.Metadata
	if meta == nil {
		meta = fields.Metadata{}
	}
	encoded, err := meta.Encode()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":         p.Name,
		"phone":        p.Phone,
		"response":     p.Response,
		"manual_reply": p.ManualReply,
		"ai_briefing":  p.AIBriefing,
		"interested":   p.Interested,
		"metadata":     encoded,
	}, nil
}

// Contact is one row of the contacts table.
type Contact struct {
	ID             string     `json:"id"`
	CompanyID      string     `json:"company_id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Location       string     `json:"location"`
	CollectedAt    *time.Time `json:"collected_at"`
	LastDispatchAt *time.Time `json:"last_dispatch_at"`
	DispatchCount  int        `json:"dispatch_count"`
}

// ContactFromRow reads a contacts row.
func ContactFromRow(row map[string]any) Contact {
	c := Contact{
		ID:            store.AsString(row["id"]),
		CompanyID:     store.AsString(row["company_id"]),
		Name:          store.AsString(row["name"]),
		Phone:         store.AsString(row["phone"]),
		Location:      store.AsString(row["location"]),
		DispatchCount: store.AsInt(row["dispatch_count"]),
	}
	if t, ok := store.ParseTime(row["collected_at"]); ok {
		c.CollectedAt = &t
	}
	if t, ok := store.ParseTime(row["last_dispatch_at"]); ok {
		c.LastDispatchAt = &t
	}
	return c
}
