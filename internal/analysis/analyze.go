// Package analysis inspects the values stored under a custom field across
// all leads and picks a chart shape for them.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/format"
)

type ChartType string

const (
	ChartDonut         ChartType = "donut"
	ChartBarHorizontal ChartType = "bar_horizontal"
	ChartBarVertical   ChartType = "bar_vertical"
	ChartHistogram     ChartType = "histogram"
	ChartRadial        ChartType = "radial"
	ChartLine          ChartType = "line"
)

// Reason explains why a field was not charted.
type Reason string

const (
	ReasonInsufficientData Reason = "insufficient_data"
	ReasonTooManyDistinct  Reason = "too_many_distinct"
	ReasonUnsupportedType  Reason = "unsupported_type"
)

const (
	// MinFilled is the fewest non-empty values a field needs to be charted.
	MinFilled = 3

	maxDonutOptions   = 5
	maxTextDistinct   = 8
	maxDiscreteValues = 10
	histogramBuckets  = 5
	radialMinStdDev   = 5
	radialColor       = "#3b82f6"
)

// Bucket is one data point of a chart.
type Bucket struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	Key   *float64 `json:"key,omitempty"`
	Color string   `json:"color,omitempty"`
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
}

// Stats summarizes numeric fields.
type Stats struct {
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// Chart is the derived chart descriptor for one field.
type Chart struct {
	Chartable   bool      `json:"chartable"`
	Type        ChartType `json:"type,omitempty"`
	Data        []Bucket  `json:"data,omitempty"`
	FilledCount int       `json:"filled_count"`
	TotalCount  int       `json:"total_count"`
	Stats       *Stats    `json:"stats,omitempty"`
	Reason      Reason    `json:"reason,omitempty"`
}

func notChartable(r Reason, filled, total int) Chart {
	return Chart{Reason: r, FilledCount: filled, TotalCount: total}
}

// Analyze decides whether def has enough signal across metas to be charted
// and, if so, builds the chart data. The result depends only on its inputs.
func Analyze(def *fields.Definition, metas []fields.Metadata) Chart {
	var values []any
	for _, m := range metas {
		v, ok := m[def.Key]
		if !ok || fields.IsEmpty(v) {
			continue
		}
		values = append(values, v)
	}
	filled, total := len(values), len(metas)
	if filled < MinFilled {
		return notChartable(ReasonInsufficientData, filled, total)
	}

	var c Chart
	switch def.Type {
	case fields.TypeBoolean:
		c = analyzeBoolean(values)
	case fields.TypeDropdown:
		c = analyzeDropdown(def, values)
	case fields.TypeText:
		c = analyzeText(values)
	case fields.TypeNumber:
		c = analyzeNumber(def, values)
	case fields.TypeDate:
		c = analyzeDate(values)
	default:
		c = Chart{Reason: ReasonUnsupportedType}
	}
	c.FilledCount, c.TotalCount = filled, total
	return c
}

func analyzeBoolean(values []any) Chart {
	var yes, no float64
	for _, v := range values {
		b, ok := fields.ParseBool(v)
		if !ok {
			continue
		}
		if b {
			yes++
		} else {
			no++
		}
	}
	return Chart{Chartable: true, Type: ChartDonut, Data: []Bucket{
		{Name: "Sim", Value: yes},
		{Name: "Não", Value: no},
	}}
}

// tally counts values under their string form, keeping first-seen order.
type tally struct {
	order  []string
	counts map[string]float64
}

func newTally() *tally { return &tally{counts: map[string]float64{}} }

func (t *tally) seed(name string) {
	if _, ok := t.counts[name]; !ok {
		t.order = append(t.order, name)
		t.counts[name] = 0
	}
}

func (t *tally) add(name string) {
	t.seed(name)
	t.counts[name]++
}

// buckets returns the tallies sorted by descending count; ties keep
// first-seen order.
func (t *tally) buckets() []Bucket {
	out := make([]Bucket, len(t.order))
	for i, name := range t.order {
		out[i] = Bucket{Name: name, Value: t.counts[name]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

func analyzeDropdown(def *fields.Definition, values []any) Chart {
	t := newTally()
	for _, o := range def.Options {
		t.seed(o.Label)
	}
	for _, v := range values {
		t.add(fmt.Sprint(v))
	}
	data := t.buckets()
	for i := range data {
		data[i].Color = def.OptionColor(data[i].Name)
	}
	typ := ChartBarHorizontal
	if len(def.Options) <= maxDonutOptions {
		typ = ChartDonut
	}
	return Chart{Chartable: true, Type: typ, Data: data}
}

func analyzeText(values []any) Chart {
	t := newTally()
	for _, v := range values {
		t.add(fmt.Sprint(v))
	}
	if len(t.order) > maxTextDistinct {
		return Chart{Reason: ReasonTooManyDistinct}
	}
	return Chart{Chartable: true, Type: ChartBarHorizontal, Data: t.buckets()}
}

func analyzeNumber(def *fields.Definition, values []any) Chart {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if n, ok := fields.ParseNumber(v); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) < MinFilled {
		return Chart{Reason: ReasonInsufficientData}
	}

	st := summarize(nums)
	distinct := map[float64]float64{}
	for _, n := range nums {
		distinct[n]++
	}

	switch {
	case st.Min >= 0 && st.Max <= 100 && st.StdDev > radialMinStdDev:
		return Chart{Chartable: true, Type: ChartRadial, Stats: &st, Data: []Bucket{
			{Name: "Média", Value: round1(st.Mean), Color: radialColor},
		}}
	case len(distinct) <= maxDiscreteValues:
		keys := make([]float64, 0, len(distinct))
		for k := range distinct {
			keys = append(keys, k)
		}
		sort.Float64s(keys)
		data := make([]Bucket, len(keys))
		for i, k := range keys {
			data[i] = Bucket{Name: format.NumberValue(k, def.NumberFormat), Value: distinct[k], Key: &k}
		}
		return Chart{Chartable: true, Type: ChartBarVertical, Stats: &st, Data: data}
	default:
		return Chart{Chartable: true, Type: ChartHistogram, Stats: &st, Data: histogram(nums, st, def.NumberFormat)}
	}
}

// histogram splits [min, max] into equal-width buckets. The last bucket
// includes max.
func histogram(nums []float64, st Stats, nf fields.NumberFormat) []Bucket {
	size := (st.Max - st.Min) / histogramBuckets
	counts := make([]float64, histogramBuckets)
	for _, n := range nums {
		i := histogramBuckets - 1
		if size > 0 {
			i = int((n - st.Min) / size)
		}
		if i >= histogramBuckets {
			i = histogramBuckets - 1
		}
		if i < 0 {
			i = 0
		}
		counts[i]++
	}
	data := make([]Bucket, histogramBuckets)
	for i := range data {
		lower := st.Min + float64(i)*size
		upper := st.Min + float64(i+1)*size
		if i == histogramBuckets-1 {
			upper = st.Max
		}
		data[i] = Bucket{
			Name:  format.NumberValue(lower, nf) + " – " + format.NumberValue(upper, nf),
			Value: counts[i],
			Lower: &lower,
			Upper: &upper,
		}
	}
	return data
}

func summarize(nums []float64) Stats {
	st := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, n := range nums {
		sum += n
		st.Min = math.Min(st.Min, n)
		st.Max = math.Max(st.Max, n)
	}
	st.Mean = sum / float64(len(nums))
	var sq float64
	for _, n := range nums {
		sq += (n - st.Mean) * (n - st.Mean)
	}
	st.StdDev = math.Sqrt(sq / float64(len(nums)))
	return st
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

func analyzeDate(values []any) Chart {
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		if t, ok := fields.ParseDate(v); ok {
			dates = append(dates, t)
		}
	}
	if len(dates) < MinFilled {
		return Chart{Reason: ReasonInsufficientData}
	}

	minD, maxD := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(minD) {
			minD = d
		}
		if d.After(maxD) {
			maxD = d
		}
	}
	span := (maxD.Year()-minD.Year())*12 + int(maxD.Month()-minD.Month())

	if span > 1 {
		counts := map[string]float64{}
		for _, d := range dates {
			counts[format.MonthYear(d)]++
		}
		var data []Bucket
		end := time.Date(maxD.Year(), maxD.Month(), 1, 0, 0, 0, 0, time.UTC)
		for cur := time.Date(minD.Year(), minD.Month(), 1, 0, 0, 0, 0, time.UTC); !cur.After(end); cur = cur.AddDate(0, 1, 0) {
			name := format.MonthYear(cur)
			data = append(data, Bucket{Name: name, Value: counts[name]})
		}
		return Chart{Chartable: true, Type: ChartLine, Data: data}
	}

	t := newTally()
	for _, d := range dates {
		_, week := d.ISOWeek()
		t.add(format.Week(week))
	}
	data := make([]Bucket, len(t.order))
	for i, name := range t.order {
		data[i] = Bucket{Name: name, Value: t.counts[name]}
	}
	return Chart{Chartable: true, Type: ChartLine, Data: data}
}
