// Package format renders raw field values as display strings for the
// dashboard (pt-BR conventions).
package format

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"leads-dashboard/internal/fields"
)

// Empty is shown for missing values.
const Empty = "-"

var (
	ptBR = message.NewPrinter(language.BrazilianPortuguese)
	enUS = message.NewPrinter(language.AmericanEnglish)
)

// NumberValue formats a raw number according to nf. Values that do not
// parse as numbers are returned unchanged.
func NumberValue(v any, nf fields.NumberFormat) string {
	if fields.IsEmpty(v) {
		return Empty
	}
	n, ok := fields.ParseNumber(v)
	if !ok {
		return fmt.Sprint(v)
	}
	switch nf {
	case fields.FormatPercent:
		return strconv.FormatFloat(n, 'f', -1, 64) + "%"
	case fields.FormatCurrencyBRL:
		return currency(ptBR, "R$ ", n)
	case fields.FormatCurrencyUSD:
		return currency(enUS, "$", n)
	default:
		return ptBR.Sprint(number.Decimal(n, number.MaxFractionDigits(3)))
	}
}

func currency(p *message.Printer, symbol string, n float64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = math.Abs(n)
	}
	return sign + symbol + p.Sprint(number.Decimal(n, number.Scale(2)))
}

// Formatter formats dates in a display timezone.
type Formatter struct {
	Location *time.Location
}

// New returns a Formatter for loc. A nil loc means UTC.
func New(loc *time.Location) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{Location: loc}
}

// Date renders v as dd/mm/yyyy. Date-only strings are calendar dates and are
// not shifted into the display timezone.
func (f Formatter) Date(v any) string {
	if fields.IsEmpty(v) {
		return Empty
	}
	if s, ok := v.(string); ok {
		if d, err := time.Parse(fields.DateLayout, s); err == nil {
			return d.Format("02/01/2006")
		}
	}
	t, ok := fields.ParseDate(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return t.In(f.Location).Format("02/01/2006")
}

// DateTime renders a timestamp as dd/mm/yyyy hh:mm in the display timezone.
func (f Formatter) DateTime(t time.Time) string {
	if t.IsZero() {
		return Empty
	}
	return t.In(f.Location).Format("02/01/2006 15:04")
}

// Display kinds.
const (
	KindEmpty = "empty"
	KindText  = "text"
	KindBadge = "badge"
)

const (
	colorYes = "#16a34a"
	colorNo  = "#9ca3af"
)

// Display is a formatted cell value.
type Display struct {
	Text  string `json:"text"`
	Kind  string `json:"kind"`
	Color string `json:"color,omitempty"`
}

// Value formats a metadata value according to its field definition.
func (f Formatter) Value(def *fields.Definition, v any) Display {
	if fields.IsEmpty(v) {
		return Display{Text: Empty, Kind: KindEmpty}
	}
	switch def.Type {
	case fields.TypeBoolean:
		if truthy(v) {
			return Display{Text: "Sim", Kind: KindBadge, Color: colorYes}
		}
		return Display{Text: "Não", Kind: KindBadge, Color: colorNo}
	case fields.TypeDate:
		return Display{Text: f.Date(v), Kind: KindText}
	case fields.TypeNumber:
		return Display{Text: NumberValue(v, def.NumberFormat), Kind: KindText}
	case fields.TypeDropdown:
		label := fmt.Sprint(v)
		return Display{Text: label, Kind: KindBadge, Color: def.OptionColor(label)}
	default:
		return Display{Text: fmt.Sprint(v), Kind: KindText}
	}
}

func truthy(v any) bool {
	if b, ok := fields.ParseBool(v); ok {
		return b
	}
	if n, ok := fields.ParseNumber(v); ok {
		return n != 0
	}
	return true
}
