package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leads-dashboard/internal/fields"
)

func metasFor(key string, values ...any) []fields.Metadata {
	out := make([]fields.Metadata, len(values))
	for i, v := range values {
		out[i] = fields.Metadata{key: v}
	}
	return out
}

func names(c Chart) []string {
	out := make([]string, len(c.Data))
	for i, b := range c.Data {
		out[i] = b.Name
	}
	return out
}

func TestAnalyze_InsufficientData(t *testing.T) {
	for _, typ := range []fields.Type{fields.TypeText, fields.TypeNumber, fields.TypeBoolean, fields.TypeDate, fields.TypeDropdown} {
		def := &fields.Definition{Key: "f", Type: typ}
		metas := metasFor("f", "1", nil, "", "2")
		metas = append(metas, fields.Metadata{"other": "x"})
		c := Analyze(def, metas)
		assert.False(t, c.Chartable, typ)
		assert.Equal(t, ReasonInsufficientData, c.Reason)
		assert.Equal(t, 2, c.FilledCount)
		assert.Equal(t, 5, c.TotalCount)
	}
}

func TestAnalyze_Boolean(t *testing.T) {
	def := &fields.Definition{Key: "b", Type: fields.TypeBoolean}
	c := Analyze(def, metasFor("b", true, "true", false, "false", "false"))
	require.True(t, c.Chartable)
	assert.Equal(t, ChartDonut, c.Type)
	assert.Equal(t, []Bucket{{Name: "Sim", Value: 2}, {Name: "Não", Value: 3}}, c.Data)
}

func TestAnalyze_DropdownIncludesUnusedOptions(t *testing.T) {
	def := &fields.Definition{Key: "temp", Type: fields.TypeDropdown, Options: []fields.Option{
		{Label: "Hot", Color: "#f00"}, {Label: "Warm", Color: "#fa0"}, {Label: "Cold", Color: "#00f"},
	}}
	c := Analyze(def, metasFor("temp", "Cold", "Cold", "Hot", "Legacy"))
	require.True(t, c.Chartable)
	assert.Equal(t, ChartDonut, c.Type)
	assert.Equal(t, []string{"Cold", "Hot", "Legacy", "Warm"}, names(c))
	assert.Equal(t, 0.0, c.Data[3].Value)
	assert.Equal(t, "#00f", c.Data[0].Color)
	assert.Equal(t, fields.DefaultOptionColor, c.Data[2].Color)
}

func TestAnalyze_DropdownManyOptionsIsHorizontalBar(t *testing.T) {
	var opts []fields.Option
	for i := 0; i < 6; i++ {
		opts = append(opts, fields.Option{Label: fmt.Sprintf("O%d", i)})
	}
	def := &fields.Definition{Key: "d", Type: fields.TypeDropdown, Options: opts}
	c := Analyze(def, metasFor("d", "O1", "O2", "O3"))
	assert.Equal(t, ChartBarHorizontal, c.Type)
	assert.Len(t, c.Data, 6)
}

func TestAnalyze_TextDistinctThreshold(t *testing.T) {
	def := &fields.Definition{Key: "t", Type: fields.TypeText}

	var eight []any
	for i := 0; i < 8; i++ {
		eight = append(eight, fmt.Sprintf("v%d", i))
	}
	eight = append(eight, "v0")
	c := Analyze(def, metasFor("t", eight...))
	require.True(t, c.Chartable)
	assert.Equal(t, ChartBarHorizontal, c.Type)
	assert.Equal(t, "v0", c.Data[0].Name)
	assert.Equal(t, 2.0, c.Data[0].Value)

	nine := append(eight, "v8")
	c = Analyze(def, metasFor("t", nine...))
	assert.False(t, c.Chartable)
	assert.Equal(t, ReasonTooManyDistinct, c.Reason)
}

func TestAnalyze_NumberRadial(t *testing.T) {
	def := &fields.Definition{Key: "score", Type: fields.TypeNumber}
	c := Analyze(def, metasFor("score", 10, 50, "90", "abc"))
	require.True(t, c.Chartable)
	assert.Equal(t, ChartRadial, c.Type)
	assert.Equal(t, "Média", c.Data[0].Name)
	assert.Equal(t, 50.0, c.Data[0].Value)
	assert.Equal(t, 10.0, c.Stats.Min)
	assert.Equal(t, 90.0, c.Stats.Max)
}

func TestAnalyze_NumberZeroSpreadIsNotRadial(t *testing.T) {
	def := &fields.Definition{Key: "n", Type: fields.TypeNumber, NumberFormat: fields.FormatPercent}
	c := Analyze(def, metasFor("n", 10, 10, 10, 10))
	require.True(t, c.Chartable)
	assert.Equal(t, ChartBarVertical, c.Type)
	require.Len(t, c.Data, 1)
	assert.Equal(t, "10%", c.Data[0].Name)
	assert.Equal(t, 4.0, c.Data[0].Value)
}

func TestAnalyze_NumberDiscreteSortedAscending(t *testing.T) {
	def := &fields.Definition{Key: "n", Type: fields.TypeNumber}
	c := Analyze(def, metasFor("n", 300, 200, 300, 1000))
	require.Equal(t, ChartBarVertical, c.Type)
	assert.Equal(t, []string{"200", "300", "1.000"}, names(c))
	assert.Equal(t, 200.0, *c.Data[0].Key)
}

func TestAnalyze_NumberIgnoresNonFiniteValues(t *testing.T) {
	def := &fields.Definition{Key: "score", Type: fields.TypeNumber}
	c := Analyze(def, metasFor("score", "NaN", "Inf", "-Infinity", 200, 300, 400))
	require.Equal(t, ChartBarVertical, c.Type)
	assert.Equal(t, []string{"200", "300", "400"}, names(c))
	require.NotNil(t, c.Stats)
	assert.Equal(t, 300.0, c.Stats.Mean)
	assert.False(t, math.IsNaN(c.Stats.StdDev))

	c = Analyze(def, metasFor("score", "NaN", "NaN", "NaN", 1))
	assert.False(t, c.Chartable)
	assert.Equal(t, ReasonInsufficientData, c.Reason)
}

func TestAnalyze_Histogram(t *testing.T) {
	def := &fields.Definition{Key: "n", Type: fields.TypeNumber}
	var vals []any
	// 0..100 step 10
	for i := 0; i <= 100; i += 10 {
		vals = append(vals, float64(i))
	}
	vals = append(vals, 100.0, 100.0)
	c := Analyze(def, metasFor("n", vals...))
	require.True(t, c.Chartable)
	// stdDev > 5 within [0,100] selects radial; a value past 100 forces a histogram
	assert.Equal(t, ChartRadial, c.Type)

	vals = append(vals, 150.0)
	c = Analyze(def, metasFor("n", vals...))
	require.Equal(t, ChartHistogram, c.Type)
	require.Len(t, c.Data, 5)
	var total float64
	for _, b := range c.Data {
		total += b.Value
	}
	assert.Equal(t, float64(len(vals)), total)
	assert.Equal(t, 0.0, *c.Data[0].Lower)
	assert.Equal(t, 150.0, *c.Data[4].Upper)
	assert.Equal(t, 1.0, c.Data[4].Value)
	assert.Equal(t, "120 – 150", c.Data[4].Name)
}

func TestAnalyze_HistogramCoversClosedRange(t *testing.T) {
	def := &fields.Definition{Key: "n", Type: fields.TypeNumber}
	// eleven distinct values in [0,100] with tiny spread so radial is skipped
	vals := []any{0.0, 100.0}
	for i := 0; i < 9; i++ {
		for j := 0; j < 30; j++ {
			vals = append(vals, 50.0+float64(i)*0.1)
		}
	}
	c := Analyze(def, metasFor("n", vals...))
	require.Equal(t, ChartHistogram, c.Type)
	require.Len(t, c.Data, 5)
	assert.Equal(t, 1.0, c.Data[0].Value)
	assert.Equal(t, 1.0, c.Data[4].Value, "max lands in the last bucket")
	assert.Equal(t, 100.0, *c.Data[4].Upper)
}

func TestAnalyze_DateMonthly(t *testing.T) {
	def := &fields.Definition{Key: "d", Type: fields.TypeDate}
	c := Analyze(def, metasFor("d", "2024-01-15", "2024-01-20", "2024-04-02", "not a date"))
	require.True(t, c.Chartable)
	assert.Equal(t, ChartLine, c.Type)
	assert.Equal(t, []string{"jan 2024", "fev 2024", "mar 2024", "abr 2024"}, names(c))
	assert.Equal(t, []float64{2, 0, 0, 1}, []float64{c.Data[0].Value, c.Data[1].Value, c.Data[2].Value, c.Data[3].Value})
}

func TestAnalyze_DateWeekly(t *testing.T) {
	def := &fields.Definition{Key: "d", Type: fields.TypeDate}
	// 2024-03-11 is ISO week 11, 2024-03-04 is week 10
	c := Analyze(def, metasFor("d", "2024-03-11", "2024-03-04", "2024-03-12", "2024-04-01"))
	require.True(t, c.Chartable)
	assert.Equal(t, ChartLine, c.Type)
	assert.Equal(t, []string{"Sem. 11", "Sem. 10", "Sem. 14"}, names(c))
	assert.Equal(t, 2.0, c.Data[0].Value)
}

func TestAnalyze_Deterministic(t *testing.T) {
	def := &fields.Definition{Key: "t", Type: fields.TypeText}
	metas := metasFor("t", "b", "a", "c", "a", "b")
	first := Analyze(def, metas)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Analyze(def, metas))
	}
	assert.Equal(t, []string{"b", "a", "c"}, names(first))
}

func TestAnalyze_UnsupportedType(t *testing.T) {
	def := &fields.Definition{Key: "x", Type: "json"}
	c := Analyze(def, metasFor("x", "1", "2", "3"))
	assert.False(t, c.Chartable)
	assert.Equal(t, ReasonUnsupportedType, c.Reason)
}

func TestBuildOverview(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, loc)
	leads := []Lead{
		{CreatedAt: now.Add(-time.Hour), Interested: true, Metadata: fields.Metadata{"b": true}},
		{CreatedAt: now.Add(-2 * time.Hour), Interested: false, ManualReply: true, Metadata: fields.Metadata{"b": false}},
		{CreatedAt: now.AddDate(0, 0, -1), Interested: true, Metadata: fields.Metadata{"b": true}},
		{CreatedAt: now.AddDate(0, 0, -40)},
	}
	defs := []fields.Definition{
		{Key: "b", Type: fields.TypeBoolean},
		{Key: "empty", Type: fields.TypeText},
	}

	ov := BuildOverview(leads, defs, now, loc)
	assert.Equal(t, KPIs{Total: 4, Interested: 2, Manual: 1, Today: 2}, ov.Stats)

	require.Len(t, ov.Volume, 30)
	last := ov.Volume[29]
	assert.Equal(t, "2024-03-10", last.Date)
	assert.Equal(t, "10 mar", last.Name)
	assert.Equal(t, 2, last.Total)
	assert.Equal(t, 1, last.Interested)
	assert.Equal(t, 1, ov.Volume[28].Total)
	assert.Equal(t, "2024-02-10", ov.Volume[0].Date)

	assert.Equal(t, "dom.", ov.Weekdays[0].Name)
	assert.Equal(t, 2.0, ov.Weekdays[time.Sunday].Value)
	assert.Equal(t, "12h", ov.Hours[4].Name)
	assert.Equal(t, 2.0, ov.Hours[4].Value)

	require.Len(t, ov.Fields, 1)
	assert.Equal(t, "b", ov.Fields[0].Field.Key)
}

func TestBuildOverview_ThreeLeadsScenario(t *testing.T) {
	now := time.Now()
	leads := []Lead{
		{CreatedAt: now, Interested: true},
		{CreatedAt: now, Interested: false},
		{CreatedAt: now.AddDate(0, 0, -1), Interested: true},
	}
	ov := BuildOverview(leads, nil, now, time.Local)
	assert.Equal(t, 3, ov.Stats.Total)
	assert.Equal(t, 2, ov.Stats.Interested)
	assert.Equal(t, 2, ov.Stats.Today)
}

func TestBuildOverview_EncodesWithNonFiniteMetadata(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	var leads []Lead
	for i, v := range []any{"NaN", "Infinity", 5.0, 7.0, 9.0} {
		leads = append(leads, Lead{CreatedAt: now.Add(-time.Duration(i) * time.Hour), Metadata: fields.Metadata{"score": v}})
	}
	ov := BuildOverview(leads, []fields.Definition{{Key: "score", Type: fields.TypeNumber}}, now, time.UTC)

	_, err := json.Marshal(ov)
	require.NoError(t, err)
}
