package cycling

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Reading is a measured value that may be missing.
type Reading struct {
	Value float64
	Valid bool
}

// Of returns a present reading. NaN and infinities are treated as missing.
func Of(v float64) Reading {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Value: v, Valid: true}
}

// Missing returns an absent reading.
func Missing() Reading { return Reading{} }

// Get returns the value and whether it is present.
func (r Reading) Get() (float64, bool) {
	return r.Value, r.Valid
}

// Within reports whether the reading is present and inside [lo, hi].
func (r Reading) Within(lo, hi float64) bool {
	return r.Valid && r.Value >= lo && r.Value <= hi
}

func (r Reading) String() string {
	if !r.Valid {
		return "null"
	}
	return strconv.FormatFloat(r.Value, 'g', -1, 64)
}

// MarshalJSON encodes a missing reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Reading{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Of(v)
	return nil
}
