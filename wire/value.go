package wire

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Constructors for the wire value shapes. Int64, decimal and reltime
// values are carried as strings to preserve precision across JSON-typed
// transports.

// Field is a named record field.
type Field struct {
	Name  string
	Value *structpb.Value
}

// Record builds a record value from ordered fields.
func Record(fields ...Field) *structpb.Value {
	m := make(map[string]*structpb.Value, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Value
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: m})
}

// Variant builds a tagged union value: {"tag": tag, "value": value}.
func Variant(tag string, value *structpb.Value) *structpb.Value {
	return Record(Field{"tag", Text(tag)}, Field{"value", value})
}

// List builds a list value.
func List(items ...*structpb.Value) *structpb.Value {
	return structpb.NewListValue(&structpb.ListValue{Values: items})
}

// Text builds a text value. Party and contract-id values share the text
// representation; the typed constructors exist for call-site clarity.
func Text(s string) *structpb.Value       { return structpb.NewStringValue(s) }
func Party(p string) *structpb.Value      { return structpb.NewStringValue(p) }
func ContractID(c string) *structpb.Value { return structpb.NewStringValue(c) }

// Int64 builds an int64 value (string-encoded).
func Int64(n int64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatInt(n, 10))
}

// Decimal builds a numeric value from its canonical decimal string.
func Decimal(s string) *structpb.Value { return structpb.NewStringValue(s) }

// Bool builds a boolean value.
func Bool(b bool) *structpb.Value { return structpb.NewBoolValue(b) }

// Timestamp builds a timestamp value in RFC 3339 UTC form.
func Timestamp(t time.Time) *structpb.Value {
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

// RelTimeMicros builds a relative-time value from microseconds.
func RelTimeMicros(us int64) *structpb.Value {
	return Record(Field{"microseconds", Int64(us)})
}

// None is the absent optional.
func None() *structpb.Value { return structpb.NewNullValue() }

// Some wraps a present optional.
func Some(v *structpb.Value) *structpb.Value { return v }

// RecordFields returns the field map of a record value, or a
// SchemaMismatch error when the value is not a record.
func RecordFields(v *structpb.Value) (map[string]*structpb.Value, error) {
	s := v.GetStructValue()
	if s == nil {
		return nil, newError(KindSchemaMismatch, fmt.Sprintf("expected record, got %T", v.GetKind()))
	}
	return s.GetFields(), nil
}

// GetField extracts a named field from a record value. A missing field is
// a SchemaMismatch: the registered schema and the wire payload disagree.
func GetField(v *structpb.Value, name string) (*structpb.Value, error) {
	fields, err := RecordFields(v)
	if err != nil {
		return nil, err
	}
	f, ok := fields[name]
	if !ok {
		return nil, newError(KindSchemaMismatch, fmt.Sprintf("record is missing field %q", name))
	}
	return f, nil
}

// AsText reads a text (or party, or contract-id) value.
func AsText(v *structpb.Value) (string, error) {
	if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok {
		return "", newError(KindSchemaMismatch, fmt.Sprintf("expected text, got %T", v.GetKind()))
	}
	return v.GetStringValue(), nil
}

// AsInt64 reads a string-encoded int64 value.
func AsInt64(v *structpb.Value) (int64, error) {
	s, err := AsText(v)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, wrapError(KindDecode, fmt.Sprintf("invalid int64 %q", s), err)
	}
	return n, nil
}

// AsBool reads a boolean value.
func AsBool(v *structpb.Value) (bool, error) {
	if _, ok := v.GetKind().(*structpb.Value_BoolValue); !ok {
		return false, newError(KindSchemaMismatch, fmt.Sprintf("expected bool, got %T", v.GetKind()))
	}
	return v.GetBoolValue(), nil
}

// AsTimestamp reads an RFC 3339 timestamp value.
func AsTimestamp(v *structpb.Value) (time.Time, error) {
	s, err := AsText(v)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, wrapError(KindDecode, fmt.Sprintf("invalid timestamp %q", s), err)
	}
	return t, nil
}

// AsList reads a list value.
func AsList(v *structpb.Value) ([]*structpb.Value, error) {
	l := v.GetListValue()
	if l == nil {
		return nil, newError(KindSchemaMismatch, fmt.Sprintf("expected list, got %T", v.GetKind()))
	}
	return l.GetValues(), nil
}

// AsVariant reads a tagged union value and returns its tag and payload.
func AsVariant(v *structpb.Value) (string, *structpb.Value, error) {
	tagV, err := GetField(v, "tag")
	if err != nil {
		return "", nil, err
	}
	tag, err := AsText(tagV)
	if err != nil {
		return "", nil, err
	}
	val, err := GetField(v, "value")
	if err != nil {
		return "", nil, err
	}
	return tag, val, nil
}

// AsRelTimeMicros reads a relative-time value as microseconds.
func AsRelTimeMicros(v *structpb.Value) (int64, error) {
	f, err := GetField(v, "microseconds")
	if err != nil {
		return 0, err
	}
	return AsInt64(f)
}

// IsNone reports whether an optional value is absent.
func IsNone(v *structpb.Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok
}
