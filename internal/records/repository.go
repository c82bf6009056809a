package records

import (
	"context"
	"fmt"
	"time"

	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/instrument"
	"leads-dashboard/internal/store"
)

// Repository reads and edits company-scoped leads and contacts.
type Repository struct {
	st *store.Store
}

func NewRepository(st *store.Store) *Repository {
	return &Repository{st: st}
}

// ListLeads returns the company's leads, newest first.
func (r *Repository) ListLeads(ctx context.Context, companyID string) ([]Lead, error) {
	rows, err := store.Select(ctx, r.st.DB, r.st.Dialect, "leads",
		[]store.Filter{store.Eq("company_id", companyID)},
		store.Order{Column: "created_at", Desc: true}, store.Order{Column: "id"})
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	leads := make([]Lead, len(rows))
	for i, row := range rows {
		leads[i] = LeadFromRow(row)
	}
	return leads, nil
}

// GetLead returns one lead or store.ErrNotFound.
func (r *Repository) GetLead(ctx context.Context, companyID, id string) (*Lead, error) {
	row, err := store.SelectOne(ctx, r.st.DB, r.st.Dialect, "leads", store.Eq("id", id), store.Eq("company_id", companyID))
	if err != nil {
		return nil, err
	}
	l := LeadFromRow(row)
	return &l, nil
}

// UpdateLead writes the editable columns of a lead and returns the row as
// stored. Metadata is checked against defs; values left as they were are
// accepted even if they no longer convert.
func (r *Repository) UpdateLead(ctx context.Context, companyID, id string, patch LeadPatch, defs []fields.Definition) (*Lead, error) {
	current, err := r.GetLead(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	meta, verrs := fields.ValidateMetadata(defs, patch.Metadata, current.Metadata)
	if len(verrs) > 0 {
		return nil, verrs
	}
	patch.Metadata = meta

	row, err := patch.Row()
	if err != nil {
		return nil, err
	}
	row["updated_at"] = time.Now().UTC()
	rows, err := store.Update(ctx, r.st.DB, r.st.Dialect, "leads", row,
		[]store.Filter{store.Eq("id", id), store.Eq("company_id", companyID)})
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	saved := LeadFromRow(rows[0])

	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "lead.updated", "leads", id, map[string]any{
		"interested":   saved.Interested,
		"manual_reply": saved.ManualReply,
	})
	return &saved, nil
}

// ListContacts returns the company's contacts, most recently collected first.
func (r *Repository) ListContacts(ctx context.Context, companyID string) ([]Contact, error) {
	rows, err := store.Select(ctx, r.st.DB, r.st.Dialect, "contacts",
		[]store.Filter{store.Eq("company_id", companyID)},
		store.Order{Column: "collected_at", Desc: true}, store.Order{Column: "id"})
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	contacts := make([]Contact, len(rows))
	for i, row := range rows {
		contacts[i] = ContactFromRow(row)
	}
	return contacts, nil
}
