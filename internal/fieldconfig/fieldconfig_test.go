package fieldconfig

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leads-dashboard/internal/config"
	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/instrument"
	"leads-dashboard/internal/store"
)

const company = "c1"

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "fields"})
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Bootstrap(ctx))
	for _, id := range []string{company, "c2"} {
		_, err = store.Insert(ctx, st.DB, st.Dialect, "companies", map[string]any{"id": id, "name": id})
		require.NoError(t, err)
	}
	return New(st), st
}

func insertLead(t *testing.T, st *store.Store, id, companyID string, meta fields.Metadata) {
	t.Helper()
	encoded, err := meta.Encode()
	require.NoError(t, err)
	_, err = store.Insert(context.Background(), st.DB, st.Dialect, "leads", map[string]any{
		"id": id, "company_id": companyID, "name": id, "metadata": encoded,
	})
	require.NoError(t, err)
}

func leadMeta(t *testing.T, st *store.Store, id string) fields.Metadata {
	t.Helper()
	row, err := store.SelectOne(context.Background(), st.DB, st.Dialect, "leads", store.Eq("id", id))
	require.NoError(t, err)
	return fields.DecodeMetadata(row["metadata"])
}

func orders(t *testing.T, svc *Service) map[string]int {
	t.Helper()
	defs, err := svc.List(context.Background(), company)
	require.NoError(t, err)
	out := make(map[string]int, len(defs))
	for i, d := range defs {
		assert.Equal(t, i+1, d.Order, "column_order must be dense")
		out[d.Key] = d.Order
	}
	return out
}

func TestRenumber(t *testing.T) {
	defs := []fields.Definition{
		{ID: "a", Key: "a", Order: 1},
		{ID: "b", Key: "b", Order: 2},
		{ID: "c", Key: "c", Order: 2},
	}
	changes := Renumber(defs, "c")
	assert.Equal(t, []Change{{ID: "b", From: 2, To: 3}}, changes)

	assert.Empty(t, Renumber([]fields.Definition{{ID: "a", Order: 1}, {ID: "b", Order: 2}}, ""))

	gaps := Renumber([]fields.Definition{{ID: "x", Key: "x", Order: 5}, {ID: "y", Key: "y", Order: 9}}, "")
	assert.Equal(t, []Change{{ID: "x", From: 5, To: 1}, {ID: "y", From: 9, To: 2}}, gaps)
}

func TestRenumber_TieWithoutSavedFallsBackToKey(t *testing.T) {
	changes := Renumber([]fields.Definition{
		{ID: "2", Key: "zeta", Order: 1},
		{ID: "1", Key: "alpha", Order: 1},
	}, "")
	assert.Equal(t, []Change{{ID: "2", From: 1, To: 2}}, changes)
}

// assertDenseRenumber applies Renumber to defs and checks the result is
// exactly 1..N, keeps the submitted relative order and puts savedID first
// among equal orders.
func assertDenseRenumber(t *testing.T, defs []fields.Definition, savedID string) {
	t.Helper()
	final := make(map[string]int, len(defs))
	for _, d := range defs {
		final[d.ID] = d.Order
	}
	for _, c := range Renumber(defs, savedID) {
		assert.Equal(t, final[c.ID], c.From, "change for %s starts from the submitted order", c.ID)
		final[c.ID] = c.To
	}

	seen := make(map[int]bool, len(defs))
	for id, o := range final {
		require.True(t, o >= 1 && o <= len(defs), "%s got order %d outside 1..%d", id, o, len(defs))
		require.False(t, seen[o], "order %d assigned twice", o)
		seen[o] = true
	}

	byFinal := make([]fields.Definition, len(defs))
	copy(byFinal, defs)
	sort.Slice(byFinal, func(i, j int) bool { return final[byFinal[i].ID] < final[byFinal[j].ID] })
	for i := 1; i < len(byFinal); i++ {
		prev, cur := byFinal[i-1], byFinal[i]
		require.LessOrEqual(t, prev.Order, cur.Order, "relative order of %s and %s", prev.ID, cur.ID)
		if prev.Order == cur.Order {
			assert.NotEqual(t, savedID, cur.ID, "saved definition must win its tie")
		}
	}
}

func TestRenumber_AnySubmittedOrdersBecomeDense(t *testing.T) {
	cases := map[string][]int{
		"empty":          {},
		"single zero":    {0},
		"already dense":  {1, 2, 3},
		"all equal":      {4, 4, 4, 4},
		"gaps":           {3, 10, 40},
		"zeros and dups": {0, 0, 2, 2, 1},
		"above n":        {99, 1, 50},
		"negative":       {-3, 2, -3, 7},
	}
	for name, submitted := range cases {
		t.Run(name, func(t *testing.T) {
			defs := make([]fields.Definition, len(submitted))
			for i, o := range submitted {
				defs[i] = fields.Definition{ID: fmt.Sprintf("f%d", i), Key: fmt.Sprintf("k%d", i), Order: o}
			}
			assertDenseRenumber(t, defs, "")
			if len(defs) > 0 {
				assertDenseRenumber(t, defs, defs[len(defs)-1].ID)
			}
		})
	}

	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 500; round++ {
		n := rng.IntN(12)
		defs := make([]fields.Definition, n)
		for i := range defs {
			defs[i] = fields.Definition{
				ID:    fmt.Sprintf("f%d", i),
				Key:   fmt.Sprintf("k%02d", rng.IntN(20)),
				Order: rng.IntN(2*n+3) - 1,
			}
		}
		savedID := ""
		if n > 0 && rng.IntN(2) == 0 {
			savedID = defs[rng.IntN(n)].ID
		}
		assertDenseRenumber(t, defs, savedID)
	}
}

func TestCreate_RenumbersArbitraryStoredOrders(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	for i, o := range []int{0, 7, 7, -2, 40} {
		_, err := store.Insert(ctx, st.DB, st.Dialect, table, map[string]any{
			"id": fmt.Sprintf("legacy%d", i), "company_id": company,
			"field_key": fmt.Sprintf("legacy_%d", i), "field_label": fmt.Sprintf("Legacy %d", i),
			"field_type": "text", "column_order": o,
		})
		require.NoError(t, err)
	}

	created, err := svc.Create(ctx, company, fields.Definition{Label: "Novo", Type: fields.TypeText})
	require.NoError(t, err)
	// submitted -2, 0, 6 (new), 7, 7, 40
	assert.Equal(t, 3, created.Order)
	assert.Equal(t, map[string]int{
		"legacy_3": 1, "legacy_0": 2, "novo": 3, "legacy_1": 4, "legacy_2": 5, "legacy_4": 6,
	}, orders(t, svc))
}

func TestCreate_DefaultsOrderAndDerivesKey(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, company, fields.Definition{Label: "Origem", Type: fields.TypeText})
	require.NoError(t, err)
	assert.Equal(t, "origem", a.Key)
	assert.Equal(t, 1, a.Order)

	b, err := svc.Create(ctx, company, fields.Definition{Label: "Valor Estimado", Type: fields.TypeNumber})
	require.NoError(t, err)
	assert.Equal(t, "valor_estimado", b.Key)
	assert.Equal(t, 2, b.Order)
	assert.Equal(t, fields.FormatNumber, b.NumberFormat)
	assert.NotNil(t, b.CreatedAt)
}

func TestCreate_InsertAtTakesPosition(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, l := range []string{"A", "B", "C"} {
		_, err := svc.Create(ctx, company, fields.Definition{Label: l, Type: fields.TypeText})
		require.NoError(t, err)
	}

	_, err := svc.Create(ctx, company, fields.Definition{Label: "New", Type: fields.TypeText, Order: 2})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"a": 1, "new": 2, "b": 3, "c": 4}, orders(t, svc))
}

func TestCreate_DuplicateKey(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, company, fields.Definition{Label: "Origem", Type: fields.TypeText})
	require.NoError(t, err)

	_, err = svc.Create(ctx, company, fields.Definition{Label: "Origem", Type: fields.TypeText})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	// same key in another company is fine
	_, err = svc.Create(ctx, "c2", fields.Definition{Label: "Origem", Type: fields.TypeText})
	assert.NoError(t, err)
}

func TestCreate_Invalid(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), company, fields.Definition{Label: "X", Type: "json"})
	var verrs fields.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "field_type", verrs[0].Field)
}

func TestUpdate_MoveKeepsSequenceDense(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	var ids []string
	for _, l := range []string{"A", "B", "C", "D"} {
		d, err := svc.Create(ctx, company, fields.Definition{Label: l, Type: fields.TypeText})
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}

	// D moves to the position B holds; the saved row wins the tie
	res, err := svc.Update(ctx, company, ids[3], fields.Definition{Label: "D", Type: fields.TypeText, Order: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Definition.Order)
	assert.Equal(t, map[string]int{"a": 1, "d": 2, "b": 3, "c": 4}, orders(t, svc))

	// order beyond the end clamps to the last slot
	res, err = svc.Update(ctx, company, ids[0], fields.Definition{Label: "A", Type: fields.TypeText, Order: 99})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Definition.Order)
	assert.Equal(t, map[string]int{"d": 1, "b": 2, "c": 3, "a": 4}, orders(t, svc))
}

func TestUpdate_KeyImmutable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, company, fields.Definition{Label: "Origem", Type: fields.TypeText})
	require.NoError(t, err)

	_, err = svc.Update(ctx, company, d.ID, fields.Definition{Key: "source", Label: "Origem", Type: fields.TypeText})
	assert.ErrorIs(t, err, ErrKeyImmutable)

	res, err := svc.Update(ctx, company, d.ID, fields.Definition{Label: "Fonte", Type: fields.TypeText})
	require.NoError(t, err)
	assert.Equal(t, "origem", res.Definition.Key)
	assert.Equal(t, "Fonte", res.Definition.Label)
	assert.Equal(t, 1, res.Definition.Order)
}

func TestUpdate_TypeChangeClearsTypeSpecificAttributes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, company, fields.Definition{
		Label: "Status", Type: fields.TypeDropdown,
		Options: []fields.Option{{Label: "Hot"}},
	})
	require.NoError(t, err)
	assert.Equal(t, fields.DefaultOptionColor, d.Options[0].Color)

	res, err := svc.Update(ctx, company, d.ID, fields.Definition{
		Label: "Status", Type: fields.TypeText,
		Options:      []fields.Option{{Label: "Hot"}},
		NumberFormat: fields.FormatPercent,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Definition.Options)
	assert.Empty(t, res.Definition.NumberFormat)
}

func TestUpdate_PropagatesOptionRenames(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, company, fields.Definition{
		Label: "Temperatura", Type: fields.TypeDropdown,
		Options: []fields.Option{{Label: "Hot", Color: "#ef4444"}, {Label: "Cold", Color: "#3b82f6"}},
	})
	require.NoError(t, err)

	insertLead(t, st, "l1", company, fields.Metadata{"temperatura": "Hot", "other": 1.0})
	insertLead(t, st, "l2", company, fields.Metadata{"temperatura": "Cold"})
	insertLead(t, st, "l3", company, fields.Metadata{})
	insertLead(t, st, "l4", "c2", fields.Metadata{"temperatura": "Hot"})

	res, err := svc.Update(ctx, company, d.ID, fields.Definition{
		Label: "Temperatura", Type: fields.TypeDropdown,
		Options: []fields.Option{
			{Label: "Quente", Color: "#ef4444", OriginalLabel: "Hot"},
			{Label: "Cold", Color: "#3b82f6", OriginalLabel: "Cold"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.LeadsRenamed)
	assert.Equal(t, "Quente", res.Definition.Options[0].Label)

	assert.Equal(t, fields.Metadata{"temperatura": "Quente", "other": 1.0}, leadMeta(t, st, "l1"))
	assert.Equal(t, "Cold", leadMeta(t, st, "l2")["temperatura"])
	assert.Empty(t, leadMeta(t, st, "l3"))
	// other companies are untouched
	assert.Equal(t, "Hot", leadMeta(t, st, "l4")["temperatura"])
}

func TestUpdate_SwapLabelsDoesNotChain(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, company, fields.Definition{
		Label: "Temperatura", Type: fields.TypeDropdown,
		Options: []fields.Option{{Label: "A"}, {Label: "B"}},
	})
	require.NoError(t, err)
	insertLead(t, st, "l1", company, fields.Metadata{"temperatura": "A"})
	insertLead(t, st, "l2", company, fields.Metadata{"temperatura": "B"})

	res, err := svc.Update(ctx, company, d.ID, fields.Definition{
		Label: "Temperatura", Type: fields.TypeDropdown,
		Options: []fields.Option{{Label: "B", OriginalLabel: "A"}, {Label: "A", OriginalLabel: "B"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.LeadsRenamed)
	assert.Equal(t, "B", leadMeta(t, st, "l1")["temperatura"])
	assert.Equal(t, "A", leadMeta(t, st, "l2")["temperatura"])
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Update(context.Background(), company, "missing", fields.Definition{Label: "x", Type: fields.TypeText})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_ClosesGapAndKeepsMetadata(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	var ids []string
	for _, l := range []string{"A", "B", "C"} {
		d, err := svc.Create(ctx, company, fields.Definition{Label: l, Type: fields.TypeText})
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}
	insertLead(t, st, "l1", company, fields.Metadata{"b": "kept"})

	require.NoError(t, svc.Delete(ctx, company, ids[1]))
	assert.Equal(t, map[string]int{"a": 1, "c": 2}, orders(t, svc))
	assert.Equal(t, "kept", leadMeta(t, st, "l1")["b"])

	assert.ErrorIs(t, svc.Delete(ctx, company, ids[1]), store.ErrNotFound)
	// scoped to the company
	assert.ErrorIs(t, svc.Delete(ctx, "c2", ids[0]), store.ErrNotFound)
}

func TestImport(t *testing.T) {
	svc, _ := newService(t)
	defs, err := ParseImport(strings.NewReader(`
fields:
  - label: Temperatura
    type: dropdown
    options:
      - {label: Quente, color: "#ef4444"}
      - {label: Frio}
  - label: Valor Estimado
    type: number
    number_format: currency_brl
  - label: Temperatura
    type: text
`))
	require.NoError(t, err)
	require.Len(t, defs, 3)

	results := svc.Import(context.Background(), company, defs)
	require.Len(t, results, 3)
	assert.True(t, results[0].Created)
	assert.Equal(t, "valor_estimado", results[1].Key)
	assert.ErrorIs(t, results[2].Err, ErrDuplicateKey)

	list, err := svc.List(context.Background(), company)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fields.DefaultOptionColor, list[0].Options[1].Color)
	assert.Equal(t, fields.FormatCurrencyBRL, list[1].NumberFormat)
}

func TestParseImport_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseImport(strings.NewReader("fields:\n  - label: X\n    colour: red\n"))
	assert.Error(t, err)
}

func TestUpdate_RecordsSpans(t *testing.T) {
	svc, st := newService(t)
	buf := instrument.NewEventBuffer(st.DB, st.Dialect, 100, 60000)
	defer buf.Stop()

	d, err := svc.Create(context.Background(), company, fields.Definition{
		Label: "Temperatura", Type: fields.TypeDropdown,
		Options: []fields.Option{{Label: "Hot"}, {Label: "Cold"}},
	})
	require.NoError(t, err)
	insertLead(t, st, "l1", company, fields.Metadata{"temperatura": "Hot"})

	ctx := instrument.WithTraceID(context.Background(), "trace-update")
	ctx = instrument.WithCompanyID(ctx, company)
	ctx = instrument.WithInstrumenter(ctx, instrument.NewTracer(buf))
	_, err = svc.Update(ctx, company, d.ID, fields.Definition{
		Label: "Temperatura", Type: fields.TypeDropdown,
		Options: []fields.Option{{Label: "Quente", OriginalLabel: "Hot"}, {Label: "Cold", OriginalLabel: "Cold"}},
	})
	require.NoError(t, err)
	buf.Flush()

	rows, err := store.Select(ctx, st.DB, st.Dialect, "_events", []store.Filter{
		store.Eq("trace_id", "trace-update"), store.Eq("event_type", "system"),
	})
	require.NoError(t, err)
	spans := map[string]map[string]any{}
	for _, r := range rows {
		spans[store.AsString(r["action"])] = r
	}
	require.Contains(t, spans, "update")
	require.Contains(t, spans, "propagate")
	require.Contains(t, spans, "renumber")

	update := spans["update"]
	assert.Equal(t, "fieldconfig", update["component"])
	assert.Equal(t, "lead_field_config", update["entity"])
	assert.Equal(t, d.ID, update["record_id"])
	assert.Equal(t, instrument.StatusOK, update["status"])
	assert.Contains(t, store.AsString(update["metadata"]), `"leads_renamed":1`)
	for _, child := range []string{"propagate", "renumber"} {
		assert.Equal(t, update["span_id"], spans[child]["parent_span_id"], child)
	}
}
