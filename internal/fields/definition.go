package fields

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is the declared type of a custom lead field.
type Type string

const (
	TypeText     Type = "text"
	TypeNumber   Type = "number"
	TypeBoolean  Type = "boolean"
	TypeDate     Type = "date"
	TypeDropdown Type = "dropdown"
)

// Valid reports whether t is one of the supported field types.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeBoolean, TypeDate, TypeDropdown:
		return true
	}
	return false
}

// NumberFormat selects how number fields are displayed.
type NumberFormat string

const (
	FormatNumber      NumberFormat = "number"
	FormatPercent     NumberFormat = "percent"
	FormatCurrencyBRL NumberFormat = "currency_brl"
	FormatCurrencyUSD NumberFormat = "currency_usd"
)

func (f NumberFormat) Valid() bool {
	switch f {
	case FormatNumber, FormatPercent, FormatCurrencyBRL, FormatCurrencyUSD:
		return true
	}
	return false
}

// DefaultOptionColor is used for dropdown values without a configured color.
const DefaultOptionColor = "#d1d5db"

// Option is one choice of a dropdown field. OriginalLabel is only set on
// update payloads and records the label the option had before editing.
type Option struct {
	Label         string `json:"label" yaml:"label"`
	Color         string `json:"color" yaml:"color"`
	OriginalLabel string `json:"original_label,omitempty" yaml:"-"`
}

// Definition is a company-scoped custom field for lead records.
type Definition struct {
	ID           string       `json:"id" yaml:"-"`
	CompanyID    string       `json:"company_id" yaml:"-"`
	Key          string       `json:"field_key" yaml:"key"`
	Label        string       `json:"field_label" yaml:"label"`
	Type         Type         `json:"field_type" yaml:"type"`
	Order        int          `json:"column_order" yaml:"order"`
	Required     bool         `json:"is_required" yaml:"required"`
	NumberFormat NumberFormat `json:"number_format,omitempty" yaml:"number_format"`
	Options      []Option     `json:"options,omitempty" yaml:"options"`
	CreatedAt    *time.Time   `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt    *time.Time   `json:"updated_at,omitempty" yaml:"-"`
}

// Option looks up a dropdown option by label.
func (d *Definition) Option(label string) (Option, bool) {
	for _, o := range d.Options {
		if o.Label == label {
			return o, true
		}
	}
	return Option{}, false
}

// OptionColor returns the color configured for label or DefaultOptionColor.
func (d *Definition) OptionColor(label string) string {
	if o, ok := d.Option(label); ok && o.Color != "" {
		return o.Color
	}
	return DefaultOptionColor
}

// Renames returns the option label changes carried by an update payload,
// keyed by the original label.
func (d *Definition) Renames() map[string]string {
	out := map[string]string{}
	if d.Type != TypeDropdown {
		return out
	}
	for _, o := range d.Options {
		if o.OriginalLabel != "" && o.OriginalLabel != o.Label {
			out[o.OriginalLabel] = o.Label
		}
	}
	return out
}

// Normalize drops attributes that are meaningless for the field type and
// fills defaults.
func (d *Definition) Normalize() {
	if d.Type == TypeNumber {
		if d.NumberFormat == "" {
			d.NumberFormat = FormatNumber
		}
	} else {
		d.NumberFormat = ""
	}
	if d.Type != TypeDropdown {
		d.Options = nil
		return
	}
	for i := range d.Options {
		if d.Options[i].Color == "" {
			d.Options[i].Color = DefaultOptionColor
		}
	}
}

// Validate checks the definition and returns every problem found.
func (d *Definition) Validate() ValidationErrors {
	var errs ValidationErrors
	if d.Label == "" {
		errs = append(errs, ValidationError{Field: "field_label", Rule: "required", Message: "field_label is required"})
	}
	if !ValidKey(d.Key) {
		errs = append(errs, ValidationError{Field: "field_key", Rule: "pattern", Message: "field_key must be snake_case and start with a letter"})
	}
	if !d.Type.Valid() {
		errs = append(errs, ValidationError{Field: "field_type", Rule: "enum", Message: fmt.Sprintf("unsupported field_type %q", d.Type)})
	}
	if d.Order < 0 {
		errs = append(errs, ValidationError{Field: "column_order", Rule: "min", Message: "column_order must be positive"})
	}
	if d.Type == TypeNumber && d.NumberFormat != "" && !d.NumberFormat.Valid() {
		errs = append(errs, ValidationError{Field: "number_format", Rule: "enum", Message: fmt.Sprintf("unsupported number_format %q", d.NumberFormat)})
	}
	if d.Type == TypeDropdown {
		seen := make(map[string]bool, len(d.Options))
		for i, o := range d.Options {
			field := fmt.Sprintf("options[%d].label", i)
			if o.Label == "" {
				errs = append(errs, ValidationError{Field: field, Rule: "required", Message: "option label is required"})
				continue
			}
			if seen[o.Label] {
				errs = append(errs, ValidationError{Field: field, Rule: "unique", Message: fmt.Sprintf("duplicate option label %q", o.Label)})
			}
			seen[o.Label] = true
		}
	}
	return errs
}

// Row returns the lead_field_config columns for d. Options are stored as JSON.
func (d *Definition) Row() (map[string]any, error) {
	row := map[string]any{
		"company_id":   d.CompanyID,
		"field_key":    d.Key,
		"field_label":  d.Label,
		"field_type":   string(d.Type),
		"column_order": d.Order,
		"is_required":  d.Required,
	}
	if d.NumberFormat != "" {
		row["number_format"] = string(d.NumberFormat)
	} else {
		row["number_format"] = nil
	}
	if len(d.Options) > 0 {
		stored := make([]Option, len(d.Options))
		for i, o := range d.Options {
			stored[i] = Option{Label: o.Label, Color: o.Color}
		}
		b, err := json.Marshal(stored)
		if err != nil {
			return nil, fmt.Errorf("encode options: %w", err)
		}
		row["options"] = string(b)
	} else {
		row["options"] = nil
	}
	return row, nil
}

// DecodeOptions reads the options column, which arrives as JSON text or as
// already-decoded values depending on the driver.
func DecodeOptions(raw any) []Option {
	var b []byte
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			return nil
		}
	}
	var opts []Option
	if err := json.Unmarshal(b, &opts); err != nil {
		return nil
	}
	return opts
}
