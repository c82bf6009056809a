package instrument

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/store"
)

const eventSelect = "SELECT id, trace_id, span_id, parent_span_id, event_type, source, component, action, entity, record_id, user_id, duration_ms, status, metadata, created_at FROM _events"

// EventHandler exposes the company's activity log.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewEventHandler creates an EventHandler backed by the given db and dialect.
func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

// List handles GET /api/events. Business events are returned unless
// event_type says otherwise.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	companyID, _ := c.Locals(LocalCompanyID).(string)

	pb := h.dialect.NewParamBuilder()
	conditions := []string{"company_id = " + pb.Add(companyID)}
	conditions = append(conditions, "event_type = "+pb.Add(c.Query("event_type", "business")))

	for _, col := range []string{"action", "entity", "record_id", "trace_id", "user_id", "status"} {
		if v := c.Query(col); v != "" {
			conditions = append(conditions, col+" = "+pb.Add(v))
		}
	}
	if v := c.Query("from"); v != "" {
		conditions = append(conditions, "created_at >= "+pb.Add(v))
	}
	if v := c.Query("to"); v != "" {
		conditions = append(conditions, "created_at <= "+pb.Add(v))
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	orderBy := "created_at DESC"
	if c.Query("sort") == "created_at" {
		orderBy = "created_at ASC"
	}

	whereClause := " WHERE " + strings.Join(conditions, " AND ")

	countRow, err := store.QueryRow(ctx, h.db, "SELECT COUNT(*) AS count FROM _events"+whereClause, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	total := store.AsInt(countRow["count"])

	limitPh := pb.Add(perPage)
	offsetPh := pb.Add(offset)
	dataSQL := fmt.Sprintf("%s%s ORDER BY %s LIMIT %s OFFSET %s", eventSelect, whereClause, orderBy, limitPh, offsetPh)
	rows, err := store.QueryRows(ctx, h.db, dataSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	for _, row := range rows {
		row["metadata"] = fields.DecodeMetadata(row["metadata"])
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// GetTrace handles GET /api/events/trace/:traceId and returns the spans of
// one request as a tree.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	ctx := c.UserContext()
	companyID, _ := c.Locals(LocalCompanyID).(string)
	traceID := c.Params("traceId")

	pb := h.dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("%s WHERE trace_id = %s AND company_id = %s ORDER BY created_at ASC", eventSelect, pb.Add(traceID), pb.Add(companyID))
	rows, err := store.QueryRows(ctx, h.db, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Trace not found: " + traceID}})
	}

	children := make(map[string][]map[string]any, len(rows))
	bySpan := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		row["metadata"] = fields.DecodeMetadata(row["metadata"])
		bySpan[store.AsString(row["span_id"])] = row
	}
	var root map[string]any
	for _, row := range rows {
		parentID := store.AsString(row["parent_span_id"])
		if _, ok := bySpan[parentID]; ok {
			children[parentID] = append(children[parentID], row)
			continue
		}
		if root == nil {
			root = row
		}
	}
	for id, row := range bySpan {
		kids := children[id]
		if kids == nil {
			kids = []map[string]any{}
		}
		row["children"] = kids
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"root_span":         root,
			"spans":             rows,
			"total_duration_ms": root["duration_ms"],
		},
	})
}
