package booking

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Suggestions is the validated form of the interpreter's "fields" object.
// Every field is optional; unknown keys in the wire object are ignored.
//
// Decoding is deliberately tolerant of the kinds of type drift language
// models produce: numbers and booleans are coerced to their string form
// (passengers 2 becomes "2"), and the confirmed flag accepts both a JSON
// boolean and the string "true". Structured values (objects, arrays) are
// discarded rather than guessed at.
type Suggestions struct {
	Name           string
	Passengers     string
	Luggage        string
	ChildSeats     string
	Wheelchair     string
	PickupPostcode string
	Pickup         string
	Dropoff        string

	// Confirmed reports whether the interpreter marked the booking as
	// confirmed by the caller.
	Confirmed bool
}

// Empty reports whether s carries no field values and no confirmation.
func (s Suggestions) Empty() bool {
	return s == Suggestions{}
}

// UnmarshalJSON implements json.Unmarshaler with per-key tolerant coercion.
func (s *Suggestions) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, val := range raw {
		switch key {
		case "name":
			s.Name = coerceString(val)
		case "passengers":
			s.Passengers = coerceString(val)
		case "luggage":
			s.Luggage = coerceString(val)
		case "child_seats":
			s.ChildSeats = coerceString(val)
		case "wheelchair":
			s.Wheelchair = coerceString(val)
		case "pickup_postcode":
			s.PickupPostcode = coerceString(val)
		case "pickup":
			s.Pickup = coerceString(val)
		case "dropoff":
			s.Dropoff = coerceString(val)
		case "confirmed":
			s.Confirmed = coerceBool(val)
		}
		// Unknown keys (including "phone") are dropped on purpose.
	}
	return nil
}

// coerceString converts a scalar JSON value to its string form. JSON null,
// objects, and arrays yield "".
func coerceString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return ""
		}
		return strings.TrimSpace(v)
	case '{', '[':
		return ""
	default:
		// Number or boolean literal.
		return string(raw)
	}
}

// coerceBool converts a JSON boolean, or the strings "true"/"false", to a Go
// bool. Anything else is false.
func coerceBool(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if b, err := strconv.ParseBool(string(raw)); err == nil {
		return b
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(v)))
	return err == nil && b
}
