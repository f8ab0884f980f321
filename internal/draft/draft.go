package draft

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Errors returned by Draft operations
var (
	ErrNoActiveContext    = errors.New("no activity selected for draft")
	ErrNoPendingSwitch    = errors.New("no context switch awaiting confirmation")
	ErrContextMismatch    = errors.New("context does not belong to this draft")
	ErrEntityRequired     = errors.New("draft type requires an entity")
	ErrEmptyDraft         = errors.New("draft has no items")
	ErrSubmissionRejected = errors.New("submission rejected")
)

// Result is the outcome of running the validation schema on an item
type Result struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Validator executes the validation schema for an item of a draft type
type Validator interface {
	Validate(t Type, item Item) Result
}

// ValidationError carries field-level messages. It never escapes to the user
// as a generic failure; callers render the fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Snapshot is the persisted form of a draft
type Snapshot struct {
	Context Context   `json:"context"`
	Items   []Item    `json:"items"`
	SavedAt time.Time `json:"saved_at"`
}

// Persister saves and removes snapshots. Implementations are best effort and
// must not fail the caller.
type Persister interface {
	Save(ctx context.Context, programID int64, snap Snapshot)
	Remove(ctx context.Context, programID int64)
}

// Receipt is the response of the remote submission API
type Receipt struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// Submitter sends a flattened draft to the remote submission API
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (Receipt, error)
}

type nopPersister struct{}

func (nopPersister) Save(context.Context, int64, Snapshot) {}
func (nopPersister) Remove(context.Context, int64)         {}

// Option configures a Draft
type Option func(*Draft)

// WithValidator sets the validation schema executor
func WithValidator(v Validator) Option {
	return func(d *Draft) { d.validator = v }
}

// WithPersister sets the persistence bridge
func WithPersister(p Persister) Option {
	return func(d *Draft) { d.persister = p }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(d *Draft) { d.logger = l }
}

// Draft is the state container of one (draft type, program) pair. It owns
// the keyed record store and the context guard.
//
// Draft is not safe for concurrent use.
type Draft struct {
	typ       Type
	programID int64
	store     *Store
	guard     Guard
	validator Validator
	persister Persister
	logger    zerolog.Logger
}

// New creates an empty draft
func New(t Type, programID int64, opts ...Option) *Draft {
	d := &Draft{
		typ:       t,
		programID: programID,
		store:     NewStore(),
		persister: nopPersister{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().
		Str("draft_type", string(t)).
		Int64("program_id", programID).
		Logger()
	return d
}

// Type returns the draft type
func (d *Draft) Type() Type { return d.typ }

// ProgramID returns the program the draft is scoped to
func (d *Draft) ProgramID() int64 { return d.programID }

// Context returns the active context
func (d *Draft) Context() Context { return d.guard.Active() }

// Pending returns the context awaiting confirmation
func (d *Draft) Pending() (Context, bool) { return d.guard.Pending() }

// State returns the guard state
func (d *Draft) State() State { return d.guard.State(d.store.Len()) }

// Items returns the stored items in insertion order
func (d *Draft) Items() []Item { return d.store.All() }

// Get returns one item
func (d *Draft) Get(key Key) (Item, bool) { return d.store.Get(key) }

// Len returns the number of items
func (d *Draft) Len() int { return d.store.Len() }

// Dirty reports whether there are changes not yet handed to the persister
func (d *Draft) Dirty() bool { return d.store.Dirty() }

// Select runs the context guard for a newly picked activity or entity
func (d *Draft) Select(next Context) (Decision, error) {
	next, err := d.scope(next)
	if err != nil {
		return "", err
	}

	decision := d.guard.Select(next, d.store.Len())
	if decision == DecisionConfirmRequired {
		d.logger.Debug().
			Str("active", d.guard.Active().String()).
			Str("requested", next.String()).
			Msg("context switch needs confirmation")
	}
	return decision, nil
}

// ConfirmSwitch discards the current items and activates the pending context
func (d *Draft) ConfirmSwitch(ctx context.Context) (Context, error) {
	if _, ok := d.guard.Pending(); !ok {
		return Context{}, ErrNoPendingSwitch
	}

	d.store.Clear()
	d.store.MarkClean()
	d.persister.Remove(ctx, d.programID)

	active, _ := d.guard.confirm()
	d.logger.Info().Str("context", active.String()).Msg("draft discarded for new context")
	return active, nil
}

// CancelSwitch keeps the current draft and drops the pending selection
func (d *Draft) CancelSwitch() {
	d.guard.Cancel()
}

// SaveItem validates an item and upserts it into the store
func (d *Draft) SaveItem(ctx context.Context, item Item) error {
	if d.guard.Active().IsZero() {
		return ErrNoActiveContext
	}

	// Disposal quantities are derived from the reason allocations.
	if item.Payload.Disposal != nil {
		item.Quantity = item.Payload.Disposal.Total()
	}

	if d.validator != nil {
		if res := d.validator.Validate(d.typ, item); !res.Valid {
			return &ValidationError{Fields: res.Errors}
		}
	}

	d.store.Upsert(item)
	d.logger.Debug().Str("key", string(item.Key)).Float64("quantity", item.Quantity).Msg("draft item saved")
	d.persist(ctx)
	return nil
}

// RemoveItem deletes one item; removing an absent key is not an error
func (d *Draft) RemoveItem(ctx context.Context, key Key) bool {
	removed := d.store.Remove(key)
	if removed {
		d.persist(ctx)
	}
	return removed
}

// RemoveChildren deletes every item under a parent material
func (d *Draft) RemoveChildren(ctx context.Context, parentMaterialID int64) int {
	n := d.store.RemoveAllByParent(parentMaterialID)
	if n > 0 {
		d.logger.Debug().Int64("parent_material_id", parentMaterialID).Int("removed", n).Msg("draft children removed")
		d.persist(ctx)
	}
	return n
}

// DeleteAll empties the draft, forgets the context and removes the
// persisted copy.
func (d *Draft) DeleteAll(ctx context.Context) {
	d.store.Clear()
	d.store.MarkClean()
	d.guard.reset(Context{})
	d.persister.Remove(ctx, d.programID)
}

// Review composes the derived tree for review screens
func (d *Draft) Review(defs []HierarchyDef) Tree {
	return Compose(d.store.All(), defs)
}

// Validate re-runs the validator over every stored item
func (d *Draft) Validate() error {
	if d.validator == nil {
		return nil
	}

	fields := make(map[string]string)
	for _, item := range d.store.All() {
		res := d.validator.Validate(d.typ, item)
		if res.Valid {
			continue
		}
		for field, msg := range res.Errors {
			fields[string(item.Key)+"."+field] = msg
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Submit flattens the draft and hands it to the submitter. On success the
// draft is cleared; on any failure it is left intact for a retry.
func (d *Draft) Submit(ctx context.Context, submitter Submitter, defs []HierarchyDef) (Receipt, error) {
	active := d.guard.Active()
	if active.IsZero() {
		return Receipt{}, ErrNoActiveContext
	}
	// a snapshot written before the entity rule could still lack one
	if active.Type.RequiresEntity() && active.EntityID == 0 {
		return Receipt{}, errors.Wrapf(ErrEntityRequired, "%s", active)
	}
	if d.store.Len() == 0 {
		return Receipt{}, ErrEmptyDraft
	}
	if err := d.Validate(); err != nil {
		return Receipt{}, err
	}

	sub := d.Review(defs).Flatten(active)
	receipt, err := submitter.Submit(ctx, sub)
	if err != nil {
		d.logger.Error().Err(err).Msg("draft submission failed")
		return Receipt{}, errors.Wrap(err, "failed to submit draft")
	}
	if !receipt.Success {
		d.logger.Warn().Str("message", receipt.Message).Msg("draft submission rejected")
		return receipt, errors.Wrap(ErrSubmissionRejected, receipt.Message)
	}

	d.logger.Info().Str("submission_id", receipt.ID).Int("lines", len(sub.Lines)).Msg("draft submitted")
	d.DeleteAll(ctx)
	return receipt, nil
}

// Snapshot captures the draft for persistence
func (d *Draft) Snapshot() Snapshot {
	return Snapshot{
		Context: d.guard.Active(),
		Items:   d.store.All(),
		SavedAt: time.Now().UTC(),
	}
}

// Restore rehydrates the draft from a persisted snapshot
func (d *Draft) Restore(snap Snapshot) error {
	if snap.Context.Type != d.typ || snap.Context.ProgramID != d.programID {
		return errors.Wrapf(ErrContextMismatch, "snapshot %s", snap.Context)
	}
	d.store.replace(snap.Items)
	d.guard.reset(snap.Context)
	return nil
}

func (d *Draft) persist(ctx context.Context) {
	if !d.store.Dirty() {
		return
	}
	if d.store.Len() == 0 {
		d.persister.Remove(ctx, d.programID)
	} else {
		d.persister.Save(ctx, d.programID, d.Snapshot())
	}
	d.store.MarkClean()
}

// scope fills the draft type and program of a selection and rejects
// selections meant for another draft.
func (d *Draft) scope(c Context) (Context, error) {
	if c.Type == "" {
		c.Type = d.typ
	}
	if c.ProgramID == 0 {
		c.ProgramID = d.programID
	}
	if c.Type != d.typ || c.ProgramID != d.programID {
		return Context{}, errors.Wrapf(ErrContextMismatch, "%s", c)
	}
	if c.ActivityID == 0 {
		return Context{}, errors.Wrap(ErrNoActiveContext, "activity is required")
	}
	if c.Type.RequiresEntity() && c.EntityID == 0 {
		return Context{}, errors.Wrapf(ErrEntityRequired, "%s", c.Type)
	}
	return c, nil
}
