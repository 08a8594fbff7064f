package row

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which field of a Value is set.
type Kind int

const (
	// KindString is a verbatim text cell.
	KindString Kind = iota
	// KindInt is a base-10 integer cell.
	KindInt
	// KindFloat is a floating point cell rendered with the builder precision.
	KindFloat
	// KindBool is a true/false cell.
	KindBool
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a single cell of a logged row.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

// Row is one logged record.
type Row []Value

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Of converts a Go value into a Value. Unknown types fall back to their
// fmt.Sprint form as a string.
func Of(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case string:
		return String(x)
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return unsigned(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case nil:
		return String("")
	default:
		return String(fmt.Sprint(x))
	}
}

// unsigned keeps values above MaxInt64 exact by rendering them as text.
func unsigned(x uint64) Value {
	if x > math.MaxInt64 {
		return String(strconv.FormatUint(x, 10))
	}
	return Int(int64(x))
}

// Values converts a list of Go values into a Row.
func Values(vs ...any) Row {
	r := make(Row, len(vs))
	for i, v := range vs {
		r[i] = Of(v)
	}
	return r
}

// Kind returns the tag of the value.
func (v Value) Kind() Kind { return v.kind }

// Text renders the value with the given float precision.
func (v Value) Text(precision int) string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		if precision < 0 {
			return strconv.FormatFloat(v.f, 'f', -1, 64)
		}
		return strconv.FormatFloat(v.f, 'f', precision, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

// String implements fmt.Stringer using the shortest float form.
func (v Value) String() string { return v.Text(-1) }

// Any returns the value as a plain Go value (string, int64, float64 or bool).
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return v.s
	}
}

// MarshalJSON encodes the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes strings, numbers and booleans.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			*v = Int(i)
			return nil
		}
		f, err := x.Float64()
		if err != nil {
			return err
		}
		*v = Float(f)
	case bool:
		*v = Bool(x)
	case string:
		*v = String(x)
	case nil:
		*v = String("")
	default:
		return fmt.Errorf("unsupported cell type %T", raw)
	}
	return nil
}

// Parse re-tags a rendered cell. Booleans and numbers are recognized;
// anything else stays a string.
func Parse(cell string) Value {
	switch cell {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil && !strings.ContainsAny(cell, "xXnN") {
		return Float(f)
	}
	return String(cell)
}

// ParseCells re-tags every cell of a split line.
func ParseCells(cells []string) Row {
	r := make(Row, len(cells))
	for i, c := range cells {
		r[i] = Parse(c)
	}
	return r
}

// ParseExact is Parse restricted to cells that render back to the same
// text, so "007", "1e3" or "1.0" stay strings. Floats are compared in
// their shortest form; they are still written with the builder precision.
func ParseExact(cell string) Value {
	v := Parse(cell)
	switch v.kind {
	case KindInt:
		if strconv.FormatInt(v.i, 10) != cell {
			return String(cell)
		}
	case KindFloat:
		if strconv.FormatFloat(v.f, 'f', -1, 64) != cell {
			return String(cell)
		}
	}
	return v
}

// ParseExactCells applies ParseExact to every cell.
func ParseExactCells(cells []string) Row {
	r := make(Row, len(cells))
	for i, c := range cells {
		r[i] = ParseExact(c)
	}
	return r
}

// Texts wraps already rendered cells as string values, so they are sent
// exactly as written to the log file.
func Texts(cells []string) Row {
	r := make(Row, len(cells))
	for i, c := range cells {
		r[i] = String(c)
	}
	return r
}
