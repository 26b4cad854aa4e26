// Package wire defines the Change type, the unit exchanged between
// replicas, and its JSON codec. The format is deliberately structural
// rather than byte-exact: any self-describing encoding both sides
// agree on works, so this package documents the required fields and
// leaves the concrete bytes as an implementation choice (here,
// goccy/go-json).
package wire

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/cellarsync/sqlitecrdt/internal/recordid"
	"github.com/cellarsync/sqlitecrdt/internal/valcodec"
)

// Flags are transient: never persisted and never written to the wire.
// Neither ChangesSince nor Merge sets or reads them.
type Flags uint32

// Change is one (record, column) edit or one record tombstone.
//
//   - ColumnName == nil            -> this Change is a record tombstone.
//   - ColumnName != nil, Value nil -> the named column was set to NULL.
//   - ColumnName != nil, Value set -> the named column was set to *Value.
type Change struct {
	RecordID    recordid.ID    `json:"record_id"`
	ColumnName  *string        `json:"column_name,omitempty"`
	Value       *valcodec.Value `json:"value,omitempty"`
	ColumnVersion uint64       `json:"column_version"`
	DBVersion     uint64       `json:"db_version"`
	NodeID        uint64       `json:"node_id"`
	LocalDBVersion uint64      `json:"local_db_version"`

	// Flags is transient and is deliberately excluded from the JSON
	// encoding below.
	Flags Flags `json:"-"`
}

// IsTombstone reports whether this Change deletes the whole record.
func (c Change) IsTombstone() bool {
	return c.ColumnName == nil
}

// IsColumnNull reports whether this Change sets its column to NULL,
// either through a nil Value or a NULL-tagged one. Only meaningful when
// !IsTombstone().
func (c Change) IsColumnNull() bool {
	return c.Value == nil || c.Value.Tag == valcodec.Null
}

// ColumnTuple returns the LWW comparison key for a column change:
// (column_version, db_version, node_id), compared lexicographically.
func (c Change) ColumnTuple() [3]uint64 {
	return [3]uint64{c.ColumnVersion, c.DBVersion, c.NodeID}
}

// TombstoneTuple returns the LWW comparison key for a record tombstone:
// (db_version, node_id).
func (c Change) TombstoneTuple() [2]uint64 {
	return [2]uint64{c.DBVersion, c.NodeID}
}

func (c Change) String() string {
	if c.IsTombstone() {
		return fmt.Sprintf("tombstone(record=%s, db_v=%d, node=%d)", c.RecordID, c.DBVersion, c.NodeID)
	}
	val := "NULL"
	if c.Value != nil {
		val = c.Value.String()
	}
	return fmt.Sprintf("column(record=%s, col=%q, val=%s, col_v=%d, db_v=%d, node=%d)",
		c.RecordID, *c.ColumnName, val, c.ColumnVersion, c.DBVersion, c.NodeID)
}

// Marshal encodes a Change to its wire form.
func Marshal(c Change) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal change: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a Change from its wire form.
func Unmarshal(data []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, fmt.Errorf("wire: unmarshal change: %w", err)
	}
	return c, nil
}

// MarshalBatch and UnmarshalBatch encode/decode the ordered sequence of
// Changes returned by ChangesSince and accepted by Merge.
func MarshalBatch(cs []Change) ([]byte, error) {
	data, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal batch: %w", err)
	}
	return data, nil
}

func UnmarshalBatch(data []byte) ([]Change, error) {
	var cs []Change
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("wire: unmarshal batch: %w", err)
	}
	return cs, nil
}
