// Package valcodec round-trips SQLite column values through the engine's
// wire representation. A Value always carries its own type tag; the
// declared type of the user column is advisory only (SQLite is
// dynamically typed per-cell), so the tag is derived from what
// database/sql actually handed back for a row, not from schema metadata.
package valcodec

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Tag identifies which of the five SQLite storage classes a Value holds.
type Tag uint8

const (
	Null Tag = iota
	Integer
	Real
	Text
	Blob
)

// String renders the tag the way SQLite itself names its storage classes.
func (t Tag) String() string {
	switch t {
	case Null:
		return "NULL"
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Value is a tagged union over SQLite's five storage classes. Only the
// field matching Tag is meaningful; the others are zero.
type Value struct {
	Tag Tag
	I   int64
	R   float64
	S   string
	B   []byte
}

// NullValue is the shared NULL value.
var NullValue = Value{Tag: Null}

func IntegerValue(i int64) Value { return Value{Tag: Integer, I: i} }
func RealValue(r float64) Value  { return Value{Tag: Real, R: r} }

// TextValue NFC-normalizes s before storing it. Two replicas that write
// Unicode-equivalent but byte-distinct text for the same cell (composed
// vs. decomposed accents being the classic case) would otherwise never
// compare equal, which defeats the point of a value that is supposed to
// converge across replicas.
func TextValue(s string) Value {
	return Value{Tag: Text, S: norm.NFC.String(s)}
}

func BlobValue(b []byte) Value { return Value{Tag: Blob, B: append([]byte(nil), b...)} }

// FromDriverValue builds a Value from whatever database/sql handed back
// for a column read. SQLite's Go drivers surface NULL as nil, INTEGER as
// int64, REAL as float64, TEXT as string, and BLOB as []byte; anything
// else is an internal_error-shaped bug in the caller's driver.
func FromDriverValue(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return NullValue, nil
	case int64:
		return IntegerValue(t), nil
	case float64:
		return RealValue(t), nil
	case string:
		return TextValue(t), nil
	case []byte:
		return BlobValue(t), nil
	case bool:
		// Some drivers surface BOOLEAN-affinity columns as bool; SQLite
		// itself has no boolean storage class, so normalize to INTEGER.
		if t {
			return IntegerValue(1), nil
		}
		return IntegerValue(0), nil
	default:
		return Value{}, fmt.Errorf("valcodec: unsupported driver value type %T", v)
	}
}

// DriverValue returns the value in the shape database/sql expects for a
// bound parameter (the mirror of FromDriverValue).
func (v Value) DriverValue() interface{} {
	switch v.Tag {
	case Null:
		return nil
	case Integer:
		return v.I
	case Real:
		return v.R
	case Text:
		return v.S
	case Blob:
		return v.B
	default:
		panic(fmt.Sprintf("valcodec: invalid tag %d", v.Tag))
	}
}

// Equal compares two values by tag and payload. BLOB comparison is
// byte-for-byte; TEXT comparison relies on both sides already being
// NFC-normalized by TextValue/FromDriverValue.
func (v Value) Equal(o Value) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch v.Tag {
	case Null:
		return true
	case Integer:
		return v.I == o.I
	case Real:
		return v.R == o.R
	case Text:
		return v.S == o.S
	case Blob:
		if len(v.B) != len(o.B) {
			return false
		}
		for i := range v.B {
			if v.B[i] != o.B[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Tag {
	case Null:
		return "NULL"
	case Integer:
		return fmt.Sprintf("INTEGER(%d)", v.I)
	case Real:
		return fmt.Sprintf("REAL(%v)", v.R)
	case Text:
		return fmt.Sprintf("TEXT(%q)", v.S)
	case Blob:
		return fmt.Sprintf("BLOB(%d bytes)", len(v.B))
	default:
		return "Value(invalid)"
	}
}
