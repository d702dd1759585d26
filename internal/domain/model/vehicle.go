package model

// Vehicle is a fleet directory entry.
type Vehicle struct {
	ID       string  `json:"id"        db:"id"`
	Name     string  `json:"name"      db:"name"`
	VendorID string  `json:"vendor_id" db:"vendor_id"`
	OnDuty   bool    `json:"on_duty"   db:"on_duty"`
	BoundTo  *string `json:"bound_to,omitempty" db:"bound_to"`
}

// Available returns true when the vehicle is on duty and not bound to an actor.
func (v *Vehicle) Available() bool {
	return v.OnDuty && (v.BoundTo == nil || *v.BoundTo == "")
}

// BoundActorID returns the id of the actor the vehicle is bound to, or "".
func (v *Vehicle) BoundActorID() string {
	if v.BoundTo == nil {
		return ""
	}
	return *v.BoundTo
}
