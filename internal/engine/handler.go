package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/analysis"
	"leads-dashboard/internal/fieldconfig"
	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/format"
	"leads-dashboard/internal/instrument"
	"leads-dashboard/internal/records"
	"leads-dashboard/internal/store"
)

type Handler struct {
	store     *store.Store
	fields    *fieldconfig.Service
	records   *records.Repository
	snapshots *records.SnapshotLoader
	display   format.Formatter
	now       func() time.Time
}

func NewHandler(s *store.Store, fc *fieldconfig.Service, repo *records.Repository, snaps *records.SnapshotLoader, display format.Formatter) *Handler {
	return &Handler{
		store:     s,
		fields:    fc,
		records:   repo,
		snapshots: snaps,
		display:   display,
		now:       time.Now,
	}
}

func companyID(c *fiber.Ctx) (string, error) {
	id, _ := c.Locals(instrument.LocalCompanyID).(string)
	if id == "" {
		return "", ForbiddenError("No company is linked to this user")
	}
	return id, nil
}

// invalidate runs after a committed write; the write stands even when the
// snapshot generation cannot be bumped.
func (h *Handler) invalidate(ctx context.Context, cid string) {
	if err := h.snapshots.Invalidate(ctx, cid); err != nil {
		log.Printf("ERROR: %v", err)
	}
}

// Overview handles GET /api/overview
func (h *Handler) Overview(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	snap, err := h.snapshots.Load(c.UserContext(), cid)
	if err != nil {
		return fetchFailed("overview", err)
	}

	_, span := instrument.Start(c.UserContext(), "analysis", "overview")
	leads := make([]analysis.Lead, len(snap.Leads))
	for i, l := range snap.Leads {
		leads[i] = l.Analysis()
	}
	ov := analysis.BuildOverview(leads, snap.Fields, h.now(), h.display.Location)
	for _, fc := range ov.Fields {
		instrument.RecordChart(string(fc.Chart.Type))
	}
	span.SetMetadata("leads", len(leads))
	span.SetMetadata("charts", len(ov.Fields))
	span.EndWith(nil)
	if ov.Fields == nil {
		ov.Fields = []analysis.FieldChart{}
	}
	return c.JSON(fiber.Map{"data": ov})
}

// ListLeads handles GET /api/leads
func (h *Handler) ListLeads(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	matcher, err := parseLeadFilter(c).Compile(h.display.Location)
	if err != nil {
		return InvalidPayloadError(err.Error())
	}
	snap, err := h.snapshots.Load(c.UserContext(), cid)
	if err != nil {
		return fetchFailed("leads", err)
	}

	table := records.BuildLeadTable(snap.Leads, snap.Fields, matcher, parsePage(c), h.display, h.now())
	return c.JSON(fiber.Map{"data": table})
}

// GetLead handles GET /api/leads/:id
func (h *Handler) GetLead(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	lead, err := h.records.GetLead(c.UserContext(), cid, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("lead", id)
		}
		return fetchFailed("lead", err)
	}
	defs, err := h.fields.List(c.UserContext(), cid)
	if err != nil {
		return fetchFailed("fields", err)
	}
	return c.JSON(fiber.Map{"data": h.leadRow(*lead, defs)})
}

// UpdateLead handles PUT /api/leads/:id. The response is the row as stored.
func (h *Handler) UpdateLead(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	id := c.Params("id")

	var patch records.LeadPatch
	if err := c.BodyParser(&patch); err != nil {
		return InvalidPayloadError("Invalid request body")
	}

	ctx := c.UserContext()
	defs, err := h.fields.List(ctx, cid)
	if err != nil {
		return fetchFailed("fields", err)
	}
	saved, err := h.records.UpdateLead(ctx, cid, id, patch, defs)
	if err != nil {
		return saveFailed("save lead", "lead", id, err)
	}
	h.invalidate(ctx, cid)
	return c.JSON(fiber.Map{"data": h.leadRow(*saved, defs)})
}

func (h *Handler) leadRow(l records.Lead, defs []fields.Definition) records.LeadRow {
	cells := make(map[string]format.Display, len(defs))
	for i := range defs {
		cells[defs[i].Key] = h.display.Value(&defs[i], l.Metadata[defs[i].Key])
	}
	return records.LeadRow{Lead: l, CreatedAtText: h.display.DateTime(l.CreatedAt), Cells: cells}
}

// ListContacts handles GET /api/contacts
func (h *Handler) ListContacts(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	matcher, err := parseContactFilter(c).Compile(h.display.Location)
	if err != nil {
		return InvalidPayloadError(err.Error())
	}
	contacts, err := h.records.ListContacts(c.UserContext(), cid)
	if err != nil {
		return fetchFailed("contacts", err)
	}
	table := records.BuildContactTable(contacts, matcher, parsePage(c), h.now(), h.display.Location)
	return c.JSON(fiber.Map{"data": table})
}

// ListFields handles GET /api/fields
func (h *Handler) ListFields(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	defs, err := h.fields.List(c.UserContext(), cid)
	if err != nil {
		return fetchFailed("fields", err)
	}
	if defs == nil {
		defs = []fields.Definition{}
	}
	return c.JSON(fiber.Map{"data": defs})
}

// CreateField handles POST /api/fields
func (h *Handler) CreateField(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	var def fields.Definition
	if err := c.BodyParser(&def); err != nil {
		return InvalidPayloadError("Invalid request body")
	}

	ctx := c.UserContext()
	saved, err := h.fields.Create(ctx, cid, def)
	if err != nil {
		return saveFailed("create field", "field", "", err)
	}
	h.invalidate(ctx, cid)
	return c.Status(201).JSON(fiber.Map{"data": saved})
}

// UpdateField handles PUT /api/fields/:id
func (h *Handler) UpdateField(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	var patch fields.Definition
	if err := c.BodyParser(&patch); err != nil {
		return InvalidPayloadError("Invalid request body")
	}

	ctx := c.UserContext()
	res, err := h.fields.Update(ctx, cid, id, patch)
	if err != nil {
		return saveFailed("update field", "field", id, err)
	}
	h.invalidate(ctx, cid)
	return c.JSON(fiber.Map{
		"data": res.Definition,
		"meta": fiber.Map{
			"leads_renamed":     res.LeadsRenamed,
			"fields_renumbered": res.FieldsRenumbered,
		},
	})
}

// DeleteField handles DELETE /api/fields/:id
func (h *Handler) DeleteField(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	ctx := c.UserContext()
	if err := h.fields.Delete(ctx, cid, id); err != nil {
		return saveFailed("delete field", "field", id, err)
	}
	h.invalidate(ctx, cid)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// FieldChart handles GET /api/fields/:id/chart
func (h *Handler) FieldChart(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	snap, err := h.snapshots.Load(c.UserContext(), cid)
	if err != nil {
		return fetchFailed("field chart", err)
	}

	var def *fields.Definition
	for i := range snap.Fields {
		if snap.Fields[i].ID == id {
			def = &snap.Fields[i]
			break
		}
	}
	if def == nil {
		return NotFoundError("field", id)
	}

	_, span := instrument.Start(c.UserContext(), "analysis", "chart")
	span.SetEntity("lead_field_config", id)
	metas := make([]fields.Metadata, len(snap.Leads))
	for i, l := range snap.Leads {
		metas[i] = l.Metadata
	}
	chart := analysis.Analyze(def, metas)
	outcome := string(chart.Type)
	if !chart.Chartable {
		outcome = string(chart.Reason)
	}
	instrument.RecordChart(outcome)
	span.SetMetadata("field_key", def.Key)
	span.SetMetadata("outcome", outcome)
	span.EndWith(nil)
	return c.JSON(fiber.Map{"data": fiber.Map{"field": def, "chart": chart}})
}

// GetCompany handles GET /api/company
func (h *Handler) GetCompany(c *fiber.Ctx) error {
	cid, err := companyID(c)
	if err != nil {
		return err
	}
	row, err := store.SelectOne(c.UserContext(), h.store.DB, h.store.Dialect, "companies", store.Eq("id", cid))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError("company", cid)
		}
		return fetchFailed("company", err)
	}
	row["flow_active"] = store.AsBool(row["flow_active"])
	return c.JSON(fiber.Map{"data": row})
}
