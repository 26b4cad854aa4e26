package valcodec

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// wireValue is the on-the-wire shape of a Value. Tag is spelled out
// (rather than the numeric Tag) so a captured change log stays readable
// and stable if the Tag enum's ordinal values ever shift. Only one of
// I/R/S/B is populated, matching whichever Tag names.
type wireValue struct {
	Tag string `json:"tag"`
	I   int64  `json:"i,omitempty"`
	R   float64 `json:"r,omitempty"`
	S   string  `json:"s,omitempty"`
	B   []byte  `json:"b,omitempty"`
}

// MarshalJSON implements json.Marshaler so a Value round-trips through
// the wire.Change codec without the caller having to know about tags.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Tag: v.Tag.String()}
	switch v.Tag {
	case Integer:
		w.I = v.I
	case Real:
		w.R = v.R
	case Text:
		w.S = v.S
	case Blob:
		w.B = v.B
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("valcodec: unmarshal value: %w", err)
	}
	switch w.Tag {
	case "NULL", "":
		*v = NullValue
	case "INTEGER":
		*v = IntegerValue(w.I)
	case "REAL":
		*v = RealValue(w.R)
	case "TEXT":
		*v = TextValue(w.S)
	case "BLOB":
		*v = BlobValue(w.B)
	default:
		return fmt.Errorf("valcodec: unknown value tag %q", w.Tag)
	}
	return nil
}
