// Package booking defines the ride-booking record assembled over the course
// of a call and the merge policy applied to interpreter field suggestions.
//
// The merge policy is monotonic fill: a non-empty suggested value overwrites
// the current value (corrections are allowed), while empty or absent
// suggestions never erase data already collected. The caller's phone number
// is set once at session creation from the transport and is never writable
// through suggestions.
package booking

// FieldNames is the canonical column order for persisted bookings.
// It is a durable contract with the booking store: changing the order or
// inserting fields requires a migration of previously persisted data.
var FieldNames = []string{
	"name",
	"passengers",
	"luggage",
	"child_seats",
	"wheelchair",
	"pickup_postcode",
	"pickup",
	"dropoff",
	"phone",
}

// Record holds the booking details collected during one call. All fields are
// free-text strings as spoken by the caller and normalised by the
// interpreter (e.g. luggage as "20 kg").
type Record struct {
	Name           string `json:"name"`
	Passengers     string `json:"passengers"`
	Luggage        string `json:"luggage"`
	ChildSeats     string `json:"child_seats"`
	Wheelchair     string `json:"wheelchair"`
	PickupPostcode string `json:"pickup_postcode"`
	Pickup         string `json:"pickup"`
	Dropoff        string `json:"dropoff"`

	// Phone is the caller's originating number, supplied by the call
	// transport when the session is created. Interpreter suggestions cannot
	// modify it.
	Phone string `json:"phone"`
}

// Apply merges s into r following the monotonic fill policy and returns the
// names of the fields that changed, in [FieldNames] order. The Confirmed
// flag on s is not part of the record and is ignored here.
func (r *Record) Apply(s Suggestions) []string {
	var changed []string
	merge := func(name string, dst *string, v string) {
		if v != "" && v != *dst {
			*dst = v
			changed = append(changed, name)
		}
	}
	merge("name", &r.Name, s.Name)
	merge("passengers", &r.Passengers, s.Passengers)
	merge("luggage", &r.Luggage, s.Luggage)
	merge("child_seats", &r.ChildSeats, s.ChildSeats)
	merge("wheelchair", &r.Wheelchair, s.Wheelchair)
	merge("pickup_postcode", &r.PickupPostcode, s.PickupPostcode)
	merge("pickup", &r.Pickup, s.Pickup)
	merge("dropoff", &r.Dropoff, s.Dropoff)
	return changed
}

// Values returns the record's field values in [FieldNames] order.
func (r *Record) Values() []string {
	return []string{
		r.Name,
		r.Passengers,
		r.Luggage,
		r.ChildSeats,
		r.Wheelchair,
		r.PickupPostcode,
		r.Pickup,
		r.Dropoff,
		r.Phone,
	}
}
