package recordid

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type wireID struct {
	Kind string `json:"kind"`
	Int  int64  `json:"int,omitempty"`
	Blob []byte `json:"blob,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	w := wireID{Kind: id.Kind.String()}
	if id.Kind == IntegerKind {
		w.Int = id.Int
	} else {
		w.Blob = id.Blob[:]
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var w wireID
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("recordid: unmarshal: %w", err)
	}
	switch w.Kind {
	case "integer":
		*id = Int64(w.Int)
	case "blob":
		parsed, err := NewBlob(w.Blob)
		if err != nil {
			return fmt.Errorf("recordid: unmarshal: %w", err)
		}
		*id = parsed
	default:
		return fmt.Errorf("recordid: unknown kind %q", w.Kind)
	}
	return nil
}
