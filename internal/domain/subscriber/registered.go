package subscriber

import (
	"fmt"
	"time"
)

// Registered is the runtime state of an attached subscriber.
type Registered struct {
	IMSI     string    `json:"imsi"`
	TMSI     string    `json:"tmsi,omitempty"`
	IMEI     string    `json:"imei,omitempty"`
	Number   string    `json:"number"`
	Location string    `json:"location,omitempty"`
	Expires  time.Time `json:"expires"`
}

// Validate enforces that a reachable subscriber always carries a temporary identity.
func (r *Registered) Validate() error {
	if r.IMSI == "" {
		return fmt.Errorf("registration without imsi")
	}
	if r.Location != "" && r.TMSI == "" {
		return fmt.Errorf("registration %s has location %q but no tmsi", r.IMSI, r.Location)
	}
	return nil
}

// Online reports whether the subscriber can currently be reached.
func (r *Registered) Online() bool {
	return r.Location != ""
}

// Expired reports whether the registration lapsed at or before now.
func (r *Registered) Expired(now time.Time) bool {
	return !r.Expires.After(now)
}

// Equal compares every field.
func (r *Registered) Equal(other *Registered) bool {
	if other == nil {
		return false
	}
	return r.IMSI == other.IMSI &&
		r.TMSI == other.TMSI &&
		r.IMEI == other.IMEI &&
		r.Number == other.Number &&
		r.Location == other.Location &&
		r.Expires.Equal(other.Expires)
}

// Clone returns a copy safe to hand out of the store.
func (r *Registered) Clone() *Registered {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
