package draft

// Capacity is the cold-chain capacity reported for an activity. Either value
// may be missing.
type Capacity struct {
	Confirmed   *float64 `json:"confirmed,omitempty"`
	Unconfirmed *float64 `json:"unconfirmed,omitempty"`
}

// Effective returns the confirmed capacity when present and falls back to
// the unconfirmed one. ok is false when neither is known.
func (c Capacity) Effective() (value float64, confirmed bool, ok bool) {
	if c.Confirmed != nil {
		return *c.Confirmed, true, true
	}
	if c.Unconfirmed != nil {
		return *c.Unconfirmed, false, true
	}
	return 0, false, false
}
