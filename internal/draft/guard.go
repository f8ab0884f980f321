package draft

// Decision is the outcome of selecting an activity or entity
type Decision string

const (
	// DecisionProceed means the selection became the active context
	DecisionProceed Decision = "proceed"
	// DecisionConfirmRequired means the selection conflicts with an
	// in-progress draft and nothing was changed
	DecisionConfirmRequired Decision = "confirm_required"
)

// State of the guard
type State string

const (
	StateEmpty  State = "empty"
	StateActive State = "active"
)

// Guard prevents silently clobbering an in-progress draft when a different
// activity or entity is picked.
type Guard struct {
	active  Context
	pending *Context
}

// State derives the guard state from the number of items in the store
func (g *Guard) State(itemCount int) State {
	if itemCount == 0 {
		return StateEmpty
	}
	return StateActive
}

// Active returns the active context
func (g *Guard) Active() Context {
	return g.active
}

// Pending returns the context waiting for confirmation, if any
func (g *Guard) Pending() (Context, bool) {
	if g.pending == nil {
		return Context{}, false
	}
	return *g.pending, true
}

// Select evaluates a new selection against the active context. With no items,
// or with the same scope, the selection becomes active. Otherwise it is kept
// as pending and the caller must confirm or cancel.
func (g *Guard) Select(next Context, itemCount int) Decision {
	if g.State(itemCount) == StateEmpty || g.active.SameScope(next) {
		g.active = next
		g.pending = nil
		return DecisionProceed
	}

	g.pending = &next
	return DecisionConfirmRequired
}

// confirm activates the pending context. The caller clears the store.
func (g *Guard) confirm() (Context, bool) {
	if g.pending == nil {
		return Context{}, false
	}
	g.active = *g.pending
	g.pending = nil
	return g.active, true
}

// Cancel drops the pending selection and keeps the active context
func (g *Guard) Cancel() {
	g.pending = nil
}

// reset returns the guard to its initial state
func (g *Guard) reset(active Context) {
	g.active = active
	g.pending = nil
}
