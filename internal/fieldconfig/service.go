// Package fieldconfig manages a company's custom lead fields: ordering,
// validation and keeping lead metadata in step with option renames.
package fieldconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/instrument"
	"leads-dashboard/internal/store"
)

const table = "lead_field_config"

var (
	ErrKeyImmutable = errors.New("field_key cannot be changed")
	ErrDuplicateKey = errors.New("field_key already exists for this company")
)

// Service reads and writes field definitions.
type Service struct {
	st *store.Store
}

func New(st *store.Store) *Service {
	return &Service{st: st}
}

// List returns the company's definitions ordered by column_order.
func (s *Service) List(ctx context.Context, companyID string) ([]fields.Definition, error) {
	return list(ctx, s.st.DB, s.st.Dialect, companyID)
}

func list(ctx context.Context, q store.Querier, d store.Dialect, companyID string) ([]fields.Definition, error) {
	rows, err := store.Select(ctx, q, d, table,
		[]store.Filter{store.Eq("company_id", companyID)},
		store.Order{Column: "column_order"}, store.Order{Column: "field_key"})
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defs := make([]fields.Definition, len(rows))
	for i, row := range rows {
		defs[i] = FromRow(row)
	}
	return defs, nil
}

// Get returns one definition or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, companyID, id string) (*fields.Definition, error) {
	return get(ctx, s.st.DB, s.st.Dialect, companyID, id)
}

func get(ctx context.Context, q store.Querier, d store.Dialect, companyID, id string) (*fields.Definition, error) {
	row, err := store.SelectOne(ctx, q, d, table, store.Eq("id", id), store.Eq("company_id", companyID))
	if err != nil {
		return nil, err
	}
	def := FromRow(row)
	return &def, nil
}

// Create stores a new definition. An empty key is derived from the label and
// a missing column_order places the field last.
func (s *Service) Create(ctx context.Context, companyID string, def fields.Definition) (*fields.Definition, error) {
	def.CompanyID = companyID
	if def.Key == "" {
		def.Key = fields.DeriveKey(def.Label)
	}
	def.Normalize()
	if errs := def.Validate(); len(errs) > 0 {
		return nil, errs
	}
	def.ID = uuid.New().String()

	var saved *fields.Definition
	var moved int
	err := s.st.WithTx(ctx, func(tx *sql.Tx) error {
		if def.Order <= 0 {
			existing, err := list(ctx, tx, s.st.Dialect, companyID)
			if err != nil {
				return err
			}
			def.Order = len(existing) + 1
		}
		row, err := def.Row()
		if err != nil {
			return err
		}
		row["id"] = def.ID
		if _, err := store.Insert(ctx, tx, s.st.Dialect, table, row); err != nil {
			if errors.Is(err, store.ErrUniqueViolation) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert field: %w", err)
		}
		if moved, err = renumber(ctx, tx, s.st.Dialect, companyID, def.ID); err != nil {
			return err
		}
		saved, err = get(ctx, tx, s.st.Dialect, companyID, def.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	instrument.RecordRenumbered(moved)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "field.created", table, saved.ID, map[string]any{
		"field_key":    saved.Key,
		"field_type":   string(saved.Type),
		"column_order": saved.Order,
		"renumbered":   moved,
	})
	return saved, nil
}

// UpdateResult reports what an update touched besides the definition.
type UpdateResult struct {
	Definition       *fields.Definition `json:"definition"`
	LeadsRenamed     int                `json:"leads_renamed"`
	FieldsRenumbered int                `json:"fields_renumbered"`
}

// Update replaces the mutable attributes of a definition. Renamed dropdown
// options are propagated to lead metadata before the definition is written,
// and the renumbering pass runs last, all in one transaction.
func (s *Service) Update(ctx context.Context, companyID, id string, patch fields.Definition) (*UpdateResult, error) {
	ctx, span := instrument.Start(ctx, "fieldconfig", "update")
	span.SetEntity(table, id)
	res, err := s.update(ctx, companyID, id, patch)
	if res != nil {
		span.SetMetadata("leads_renamed", res.LeadsRenamed)
		span.SetMetadata("fields_renumbered", res.FieldsRenumbered)
	}
	span.EndWith(err)
	return res, err
}

func (s *Service) update(ctx context.Context, companyID, id string, patch fields.Definition) (*UpdateResult, error) {
	current, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if patch.Key != "" && patch.Key != current.Key {
		return nil, ErrKeyImmutable
	}
	patch.ID = current.ID
	patch.CompanyID = companyID
	patch.Key = current.Key
	if patch.Order <= 0 {
		patch.Order = current.Order
	}
	patch.Normalize()
	if errs := patch.Validate(); len(errs) > 0 {
		return nil, errs
	}

	renames := patch.Renames()
	if current.Type != fields.TypeDropdown {
		renames = nil
	}

	res := &UpdateResult{}
	err = s.st.WithTx(ctx, func(tx *sql.Tx) error {
		pctx, span := instrument.Start(ctx, "fieldconfig", "propagate")
		span.SetEntity(table, id)
		span.SetMetadata("renames", len(renames))
		n, err := PropagateRenames(pctx, tx, s.st.Dialect, companyID, current.Key, renames)
		span.SetMetadata("leads_renamed", n)
		span.EndWith(err)
		if err != nil {
			return fmt.Errorf("propagate option renames: %w", err)
		}
		res.LeadsRenamed = n

		row, err := patch.Row()
		if err != nil {
			return err
		}
		row["updated_at"] = time.Now().UTC()
		if _, err := store.Update(ctx, tx, s.st.Dialect, table, row, []store.Filter{store.Eq("id", id), store.Eq("company_id", companyID)}); err != nil {
			return fmt.Errorf("update field: %w", err)
		}

		if res.FieldsRenumbered, err = renumber(ctx, tx, s.st.Dialect, companyID, id); err != nil {
			return err
		}
		res.Definition, err = get(ctx, tx, s.st.Dialect, companyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	instrument.RecordOptionRenames(res.LeadsRenamed)
	instrument.RecordRenumbered(res.FieldsRenumbered)
	inst := instrument.GetInstrumenter(ctx)
	if len(renames) > 0 {
		inst.EmitBusinessEvent(ctx, "field.options_renamed", table, id, map[string]any{
			"field_key":     current.Key,
			"renames":       renames,
			"leads_updated": res.LeadsRenamed,
		})
	}
	inst.EmitBusinessEvent(ctx, "field.updated", table, id, map[string]any{
		"field_key":    current.Key,
		"column_order": res.Definition.Order,
		"renumbered":   res.FieldsRenumbered,
	})
	return res, nil
}

// Delete removes a definition and closes the gap it leaves in column_order.
// Lead metadata under the field's key is left in place.
func (s *Service) Delete(ctx context.Context, companyID, id string) error {
	var key string
	var moved int
	err := s.st.WithTx(ctx, func(tx *sql.Tx) error {
		def, err := get(ctx, tx, s.st.Dialect, companyID, id)
		if err != nil {
			return err
		}
		key = def.Key
		if _, err := store.Delete(ctx, tx, s.st.Dialect, table, []store.Filter{store.Eq("id", id), store.Eq("company_id", companyID)}); err != nil {
			return fmt.Errorf("delete field: %w", err)
		}
		moved, err = renumber(ctx, tx, s.st.Dialect, companyID, "")
		return err
	})
	if err != nil {
		return err
	}

	instrument.RecordRenumbered(moved)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "field.deleted", table, id, map[string]any{
		"field_key":  key,
		"renumbered": moved,
	})
	return nil
}

// renumber restores the dense 1..N column_order sequence, writing only the
// rows that move.
func renumber(ctx context.Context, tx *sql.Tx, d store.Dialect, companyID, savedID string) (moved int, err error) {
	ctx, span := instrument.Start(ctx, "fieldconfig", "renumber")
	if savedID != "" {
		span.SetEntity(table, savedID)
	}
	defer func() {
		span.SetMetadata("moved", moved)
		span.EndWith(err)
	}()

	defs, err := list(ctx, tx, d, companyID)
	if err != nil {
		return 0, err
	}
	span.SetMetadata("fields", len(defs))
	changes := Renumber(defs, savedID)
	now := time.Now().UTC()
	for _, c := range changes {
		patch := map[string]any{"column_order": c.To, "updated_at": now}
		if _, err := store.Update(ctx, tx, d, table, patch, []store.Filter{store.Eq("id", c.ID)}); err != nil {
			return 0, fmt.Errorf("renumber field %s: %w", c.ID, err)
		}
	}
	return len(changes), nil
}

// FromRow reads a lead_field_config row.
func FromRow(row map[string]any) fields.Definition {
	def := fields.Definition{
		ID:           store.AsString(row["id"]),
		CompanyID:    store.AsString(row["company_id"]),
		Key:          store.AsString(row["field_key"]),
		Label:        store.AsString(row["field_label"]),
		Type:         fields.Type(store.AsString(row["field_type"])),
		Order:        store.AsInt(row["column_order"]),
		Required:     store.AsBool(row["is_required"]),
		NumberFormat: fields.NumberFormat(store.AsString(row["number_format"])),
		Options:      fields.DecodeOptions(row["options"]),
	}
	if t, ok := store.ParseTime(row["created_at"]); ok {
		def.CreatedAt = &t
	}
	if t, ok := store.ParseTime(row["updated_at"]); ok {
		def.UpdatedAt = &t
	}
	return def
}
