// Package recordid represents the two record-identifier shapes the
// engine supports: a 64-bit signed integer stored in a table's rowid,
// or a 16-byte opaque blob stored in a column named "id". The shape is
// fixed once per engine instance; this package models it as an
// explicit tagged sum rather than leaning on interface{} so every
// bind/read call site is forced to handle both shapes.
package recordid

import (
	"encoding/hex"
	"fmt"
)

// Kind distinguishes the two record-id representations.
type Kind uint8

const (
	IntegerKind Kind = iota
	BlobKind
)

func (k Kind) String() string {
	if k == IntegerKind {
		return "integer"
	}
	return "blob"
}

// BlobLen is the fixed width of the opaque blob id shape.
const BlobLen = 16

// ID is a tagged union: exactly one of Int (IntegerKind) or Blob
// (BlobKind, always BlobLen bytes) is meaningful.
type ID struct {
	Kind Kind
	Int  int64
	Blob [BlobLen]byte
}

// Int64 builds an integer-shaped record id.
func Int64(i int64) ID {
	return ID{Kind: IntegerKind, Int: i}
}

// NewBlob builds a blob-shaped record id from exactly BlobLen bytes.
func NewBlob(b []byte) (ID, error) {
	if len(b) != BlobLen {
		return ID{}, fmt.Errorf("recordid: blob id must be %d bytes, got %d", BlobLen, len(b))
	}
	var id ID
	id.Kind = BlobKind
	copy(id.Blob[:], b)
	return id, nil
}

// DriverValue returns the value in the shape database/sql expects for a
// bound "id"/"rowid" parameter.
func (id ID) DriverValue() interface{} {
	if id.Kind == IntegerKind {
		return id.Int
	}
	return id.Blob[:]
}

// FromDriverValue builds an ID of the given Kind from a value read back
// from the id/rowid column.
func FromDriverValue(kind Kind, v interface{}) (ID, error) {
	switch kind {
	case IntegerKind:
		i, ok := v.(int64)
		if !ok {
			return ID{}, fmt.Errorf("recordid: expected int64 rowid, got %T", v)
		}
		return Int64(i), nil
	case BlobKind:
		b, ok := v.([]byte)
		if !ok {
			return ID{}, fmt.Errorf("recordid: expected []byte id, got %T", v)
		}
		return NewBlob(b)
	default:
		return ID{}, fmt.Errorf("recordid: invalid kind %d", kind)
	}
}

// Equal reports whether two ids of the same kind refer to the same
// record. Ids of differing kind are never equal.
func (id ID) Equal(o ID) bool {
	if id.Kind != o.Kind {
		return false
	}
	if id.Kind == IntegerKind {
		return id.Int == o.Int
	}
	return id.Blob == o.Blob
}

// Less provides a total order over ids of the same kind, used only to
// make test output and iteration order deterministic; it has no bearing
// on LWW conflict resolution.
func (id ID) Less(o ID) bool {
	if id.Kind == IntegerKind {
		return id.Int < o.Int
	}
	for i := 0; i < BlobLen; i++ {
		if id.Blob[i] != o.Blob[i] {
			return id.Blob[i] < o.Blob[i]
		}
	}
	return false
}

func (id ID) String() string {
	if id.Kind == IntegerKind {
		return fmt.Sprintf("%d", id.Int)
	}
	return hex.EncodeToString(id.Blob[:])
}
