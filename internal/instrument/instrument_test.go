package instrument

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/config"
	"leads-dashboard/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "events"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestBusinessEvent_FlushedWithCompany(t *testing.T) {
	s := newTestStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithCompanyID(ctx, "c1")
	ctx = WithUserID(ctx, "u1")
	NewTracer(buf).EmitBusinessEvent(ctx, "field.created", "lead_field_config", "f1", map[string]any{"field_key": "origem"})
	buf.Flush()

	rows, err := store.Select(ctx, s.DB, s.Dialect, "_events", []store.Filter{store.Eq("company_id", "c1")})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 event, got %d", len(rows))
	}
	if rows[0]["action"] != "field.created" || rows[0]["user_id"] != "u1" || rows[0]["trace_id"] != "trace-1" {
		t.Fatalf("unexpected event row: %v", rows[0])
	}
}

func TestGetInstrumenter_DefaultsToNoop(t *testing.T) {
	inst := GetInstrumenter(context.Background())
	if _, ok := inst.(noop); !ok {
		t.Fatalf("expected noop instrumenter, got %T", inst)
	}
	// must not panic
	inst.EmitBusinessEvent(context.Background(), "x", "", "", nil)
}

func TestMiddleware_SetsTraceHeaderAndListsEvents(t *testing.T) {
	s := newTestStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()

	app := fiber.New()
	app.Use(Middleware(config.InstrumentationConfig{Enabled: true, SamplingRate: 1}, buf))
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(LocalCompanyID, "c1")
		c.SetUserContext(WithCompanyID(c.UserContext(), "c1"))
		return c.Next()
	})
	app.Post("/act", func(c *fiber.Ctx) error {
		GetInstrumenter(c.UserContext()).EmitBusinessEvent(c.UserContext(), "lead.updated", "leads", "l1", nil)
		return c.SendStatus(204)
	})
	h := NewEventHandler(s.DB, s.Dialect)
	app.Get("/events", h.List)

	req := httptest.NewRequest("POST", "/act", nil)
	req.Header.Set("X-Trace-ID", "abc")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("X-Trace-ID"); got != "abc" {
		t.Fatalf("expected propagated trace id, got %q", got)
	}
	buf.Flush()

	resp, err = app.Test(httptest.NewRequest("GET", "/events", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Data       []map[string]any `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if out.Pagination.Total != 1 || len(out.Data) != 1 {
		t.Fatalf("expected the single business event, got %s", body)
	}
	if out.Data[0]["action"] != "lead.updated" {
		t.Fatalf("unexpected action %v", out.Data[0]["action"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := fiber.New()
	app.Use(MetricsMiddleware())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/metrics", MetricsHandler())

	RecordChart("donut")
	RecordRenumbered(2)
	if _, err := app.Test(httptest.NewRequest("GET", "/ping", nil), -1); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`dashboard_field_charts_total{outcome="donut"}`,
		"dashboard_field_renumbered_rows_total",
		`dashboard_http_requests_total{method="GET",route="/ping",status="200"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %s in metrics output", want)
		}
	}
}

func TestStart_NestsUnderRequestSpan(t *testing.T) {
	s := newTestStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()

	ctx := WithTraceID(context.Background(), "trace-2")
	ctx = WithCompanyID(ctx, "c1")
	ctx = WithInstrumenter(ctx, NewTracer(buf))

	ctx, parent := Start(ctx, "fieldconfig", "update")
	parent.SetEntity("lead_field_config", "f1")
	_, child := Start(ctx, "fieldconfig", "propagate")
	child.SetMetadata("leads_renamed", 2)
	child.EndWith(errors.New("boom"))
	child.End()
	parent.EndWith(nil)
	buf.Flush()

	rows, err := store.Select(ctx, s.DB, s.Dialect, "_events", []store.Filter{store.Eq("trace_id", "trace-2")})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(rows))
	}
	byAction := map[string]map[string]any{}
	for _, r := range rows {
		byAction[store.AsString(r["action"])] = r
	}
	up, prop := byAction["update"], byAction["propagate"]
	if up == nil || prop == nil {
		t.Fatalf("missing spans: %v", rows)
	}
	if store.AsString(prop["parent_span_id"]) != store.AsString(up["span_id"]) {
		t.Fatalf("propagate span not nested under update: %v", prop)
	}
	if up["entity"] != "lead_field_config" || up["record_id"] != "f1" || up["status"] != StatusOK {
		t.Fatalf("unexpected update span: %v", up)
	}
	if prop["status"] != StatusError || prop["company_id"] != "c1" || prop["source"] != "dashboard" {
		t.Fatalf("unexpected propagate span: %v", prop)
	}
	if !strings.Contains(store.AsString(prop["metadata"]), "boom") {
		t.Fatalf("expected error in metadata, got %v", prop["metadata"])
	}
}

func TestStart_WithoutTracerIsNoop(t *testing.T) {
	ctx, span := Start(context.Background(), "records", "snapshot.fetch")
	if span.SpanID() != "" || GetTraceID(ctx) != "" {
		t.Fatalf("expected untraced span")
	}
	span.EndWith(errors.New("ignored"))
}
