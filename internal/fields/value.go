package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the storage form of date values.
const DateLayout = "2006-01-02"

// Value is a metadata value tagged with the field type it was converted for.
type Value struct {
	typ  Type
	text string
	num  float64
	flag bool
	date time.Time
}

func Text(s string) Value         { return Value{typ: TypeText, text: s} }
func Number(n float64) Value      { return Value{typ: TypeNumber, num: n} }
func Boolean(b bool) Value        { return Value{typ: TypeBoolean, flag: b} }
func Date(t time.Time) Value      { return Value{typ: TypeDate, date: t} }
func Dropdown(label string) Value { return Value{typ: TypeDropdown, text: label} }

func (v Value) Type() Type      { return v.typ }
func (v Value) String() string  { return v.text }
func (v Value) Float() float64  { return v.num }
func (v Value) Bool() bool      { return v.flag }
func (v Value) Time() time.Time { return v.date }

// Raw returns the JSON-friendly form stored in a record's metadata.
func (v Value) Raw() any {
	switch v.typ {
	case TypeNumber:
		return v.num
	case TypeBoolean:
		return v.flag
	case TypeDate:
		return v.date.Format(DateLayout)
	default:
		return v.text
	}
}

// IsEmpty reports whether a raw metadata value counts as unfilled.
func IsEmpty(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && s == ""
}

// ParseNumber reads a raw metadata value as a finite float. Strings are
// trimmed; NaN and infinities are not numbers here.
func ParseNumber(raw any) (float64, bool) {
	f, ok := parseFloat(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// ParseBool accepts native booleans and the strings "true" and "false".
func ParseBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch v {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

var dateLayouts = []string{DateLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// ParseDate reads a calendar date from a raw metadata value.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Convert turns a raw metadata value into a Value of the definition's type.
func Convert(def *Definition, raw any) (Value, error) {
	switch def.Type {
	case TypeText:
		switch v := raw.(type) {
		case string:
			return Text(v), nil
		case float64, int, int64, bool:
			return Text(fmt.Sprint(v)), nil
		}
	case TypeNumber:
		if n, ok := ParseNumber(raw); ok {
			return Number(n), nil
		}
	case TypeBoolean:
		if b, ok := ParseBool(raw); ok {
			return Boolean(b), nil
		}
	case TypeDate:
		if t, ok := ParseDate(raw); ok {
			return Date(t), nil
		}
	case TypeDropdown:
		s, ok := raw.(string)
		if !ok {
			break
		}
		if _, found := def.Option(s); !found {
			return Value{}, fmt.Errorf("%q is not an option of %s", s, def.Key)
		}
		return Dropdown(s), nil
	default:
		return Value{}, fmt.Errorf("unsupported field type %q", def.Type)
	}
	return Value{}, fmt.Errorf("value %v is not a valid %s", raw, def.Type)
}

// ValidateMetadata converts every defined key present in m and enforces
// required fields. Keys without a definition are kept as they are, and so
// are values unchanged from prev.
func ValidateMetadata(defs []Definition, m, prev Metadata) (Metadata, ValidationErrors) {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	var errs ValidationErrors
	for i := range defs {
		def := &defs[i]
		raw, present := m[def.Key]
		if !present || IsEmpty(raw) {
			if def.Required {
				errs = append(errs, ValidationError{
					Field:   "metadata." + def.Key,
					Rule:    "required",
					Message: fmt.Sprintf("%s is required", def.Label),
				})
			}
			continue
		}
		if old, ok := prev[def.Key]; ok && reflect.DeepEqual(old, raw) {
			continue
		}
		val, err := Convert(def, raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: "metadata." + def.Key, Rule: "type", Message: err.Error()})
			continue
		}
		out[def.Key] = val.Raw()
	}
	return out, errs
}
