package wire

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarsync/sqlitecrdt/internal/recordid"
	"github.com/cellarsync/sqlitecrdt/internal/valcodec"
)

func strPtr(s string) *string { return &s }
func valPtr(v valcodec.Value) *valcodec.Value { return &v }

// TestChange_WireFormatGolden pins the exact bytes produced for each of
// the three Change shapes (column write, tombstone, column-set-to-NULL)
// so a change to field order or tag spelling is caught explicitly rather
// than silently breaking wire compatibility between replicas.
//
// Regenerate with: go test ./internal/wire -update
func TestChange_WireFormatGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	t.Run("column_change", func(t *testing.T) {
		c := Change{
			RecordID:       recordid.Int64(7),
			ColumnName:     strPtr("name"),
			Value:          valPtr(valcodec.TextValue("Alice")),
			ColumnVersion:  1,
			DBVersion:      2,
			NodeID:         100,
			LocalDBVersion: 2,
		}
		data, err := Marshal(c)
		require.NoError(t, err)
		g.Assert(t, "column_change", data)
	})

	t.Run("tombstone", func(t *testing.T) {
		c := Change{
			RecordID:       recordid.Int64(3),
			DBVersion:      5,
			NodeID:         7,
			LocalDBVersion: 9,
		}
		data, err := Marshal(c)
		require.NoError(t, err)
		g.Assert(t, "tombstone", data)
	})

	t.Run("null_column", func(t *testing.T) {
		blob, err := recordid.NewBlob([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
		require.NoError(t, err)
		c := Change{
			RecordID:       blob,
			ColumnName:     strPtr("age"),
			Value:          nil,
			ColumnVersion:  2,
			DBVersion:      3,
			NodeID:         1,
			LocalDBVersion: 4,
		}
		data, err := Marshal(c)
		require.NoError(t, err)
		g.Assert(t, "null_column", data)
	})
}

func TestChange_RoundTrip(t *testing.T) {
	orig := Change{
		RecordID:       recordid.Int64(1),
		ColumnName:     strPtr("email"),
		Value:          valPtr(valcodec.TextValue("a@x.com")),
		ColumnVersion:  4,
		DBVersion:      9,
		NodeID:         2,
		LocalDBVersion: 9,
	}
	data, err := Marshal(orig)
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)

	assert.True(t, orig.RecordID.Equal(back.RecordID))
	require.NotNil(t, back.ColumnName)
	assert.Equal(t, *orig.ColumnName, *back.ColumnName)
	require.NotNil(t, back.Value)
	assert.True(t, orig.Value.Equal(*back.Value))
	assert.Equal(t, orig.ColumnVersion, back.ColumnVersion)
	assert.Equal(t, orig.DBVersion, back.DBVersion)
	assert.Equal(t, orig.NodeID, back.NodeID)
	assert.Equal(t, orig.LocalDBVersion, back.LocalDBVersion)
}

func TestChange_IsTombstoneAndIsColumnNull(t *testing.T) {
	tomb := Change{RecordID: recordid.Int64(1)}
	assert.True(t, tomb.IsTombstone())

	nullCol := Change{RecordID: recordid.Int64(1), ColumnName: strPtr("c")}
	assert.False(t, nullCol.IsTombstone())
	assert.True(t, nullCol.IsColumnNull())

	set := Change{RecordID: recordid.Int64(1), ColumnName: strPtr("c"), Value: valPtr(valcodec.IntegerValue(1))}
	assert.False(t, set.IsColumnNull())
}

func TestChange_Tuples(t *testing.T) {
	c := Change{ColumnVersion: 1, DBVersion: 2, NodeID: 3}
	assert.Equal(t, [3]uint64{1, 2, 3}, c.ColumnTuple())
	assert.Equal(t, [2]uint64{2, 3}, c.TombstoneTuple())
}

func TestMarshalBatch_RoundTrip(t *testing.T) {
	cs := []Change{
		{RecordID: recordid.Int64(1), ColumnName: strPtr("a"), Value: valPtr(valcodec.IntegerValue(1)), ColumnVersion: 1, DBVersion: 1, NodeID: 1, LocalDBVersion: 1},
		{RecordID: recordid.Int64(2)},
	}
	data, err := MarshalBatch(cs)
	require.NoError(t, err)

	back, err := UnmarshalBatch(data)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.True(t, cs[0].RecordID.Equal(back[0].RecordID))
	assert.True(t, back[1].IsTombstone())
}

func TestChange_String(t *testing.T) {
	tomb := Change{RecordID: recordid.Int64(1), DBVersion: 1, NodeID: 1}
	assert.Contains(t, tomb.String(), "tombstone")

	col := Change{RecordID: recordid.Int64(1), ColumnName: strPtr("c"), Value: valPtr(valcodec.IntegerValue(5))}
	assert.Contains(t, col.String(), "column")
}
