package reconcile

// Annotated pairs a base list entry with its alert entry
type Annotated[T, A any] struct {
	Item     T    `json:"item"`
	Alert    A    `json:"alert"`
	HasAlert bool `json:"has_alert"`
}

// Overlay joins alerts onto a base list by id. Order and length of base are
// preserved; entries without an alert get the zero value.
func Overlay[T, A any](base []T, idOf func(T) string, alerts map[string]A) []Annotated[T, A] {
	out := make([]Annotated[T, A], len(base))
	for i, item := range base {
		alert, ok := alerts[idOf(item)]
		out[i] = Annotated[T, A]{Item: item, Alert: alert, HasAlert: ok}
	}
	return out
}
