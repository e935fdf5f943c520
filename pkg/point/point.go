// Package point defines the flat, tagged, timestamped measurement record
// written to time-series databases, and its line-protocol encoding.
//
// A Point has a measurement name, string tags used for indexing, typed
// fields carrying the values, and a timestamp. Field values are one of
// four kinds: integer, float, boolean, or string. The kind decides the
// wire form, so a float is always written with a decimal point even when
// it holds a whole number.
package point

import (
	"fmt"
	"time"
)

// Kind is the type of a field Value.
type Kind int

const (
	// KindInt is a 64-bit signed integer.
	KindInt Kind = iota + 1
	// KindFloat is a 64-bit float.
	KindFloat
	// KindBool is a boolean.
	KindBool
	// KindString is a string.
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is a typed field value. The zero Value is invalid.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
}

// Int returns an integer Value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a float Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// AsInt returns the integer and whether v is an integer.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float and whether v is a float.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsBool returns the boolean and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Interface returns the underlying Go value, or nil for the zero Value.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Tag is an indexed string key/value.
type Tag struct {
	Key   string
	Value string
}

// Field is a typed key/value.
type Field struct {
	Key   string
	Value Value
}

// Point is one measurement record.
type Point struct {
	Measurement string
	Tags        []Tag
	Fields      []Field
	Time        time.Time
}

// New returns a Point for measurement at t with no tags or fields.
func New(measurement string, t time.Time) Point {
	return Point{Measurement: measurement, Time: t}
}

// AddTag sets the tag key to value, replacing an existing tag in place.
func (p *Point) AddTag(key, value string) {
	for i := range p.Tags {
		if p.Tags[i].Key == key {
			p.Tags[i].Value = value
			return
		}
	}
	p.Tags = append(p.Tags, Tag{Key: key, Value: value})
}

// AddField sets the field key to v, replacing an existing field in place.
func (p *Point) AddField(key string, v Value) {
	for i := range p.Fields {
		if p.Fields[i].Key == key {
			p.Fields[i].Value = v
			return
		}
	}
	p.Fields = append(p.Fields, Field{Key: key, Value: v})
}

// Tag returns the value of the tag key and whether it is set.
func (p Point) Tag(key string) (string, bool) {
	for _, t := range p.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Field returns the value of the field key and whether it is set.
func (p Point) Field(key string) (Value, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}
