package services

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"example.com/backstage/services/drafts/internal/draft"
	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/persistence"
	"example.com/backstage/services/drafts/internal/tracing"
)

// HierarchySource provides the parent/child material definitions of a program
type HierarchySource interface {
	Hierarchies(ctx context.Context, programID int64) ([]draft.HierarchyDef, error)
}

// CapacitySource reports the cold-chain capacity of an activity
type CapacitySource interface {
	Capacity(ctx context.Context, programID, activityID int64) (draft.Capacity, error)
}

// DraftState is the externally visible state of one draft
type DraftState struct {
	Type      draft.Type     `json:"drafttype"`
	ProgramID int64          `json:"program_id"`
	State     draft.State    `json:"state"`
	Context   draft.Context  `json:"context"`
	Pending   *draft.Context `json:"pending,omitempty"`
	Items     []draft.Item   `json:"items"`
	Dirty     bool           `json:"dirty"`
}

// Review is the composed view of a draft
type Review struct {
	Tree              draft.Tree `json:"tree"`
	HasChildHierarchy bool       `json:"has_child_hierarchy"`
	TotalQty          float64    `json:"total_qty"`
	ColdChain         *ColdChain `json:"cold_chain,omitempty"`
}

// ColdChain compares the temperature-sensitive quantity of an order with the
// capacity of its activity
type ColdChain struct {
	Capacity  float64 `json:"capacity"`
	Confirmed bool    `json:"confirmed"`
	Required  float64 `json:"required"`
	Exceeded  bool    `json:"exceeded"`
}

type draftKey struct {
	typ       draft.Type
	programID int64
}

// entry guards one draft. A closed entry is no longer in the map and must not
// be used; callers fetch a fresh one.
type entry struct {
	mu     sync.Mutex
	d      *draft.Draft
	bridge *persistence.Bridge
	loaded bool
	closed bool
}

// DraftService owns exactly one draft per (draft type, program) and
// serializes access to it.
type DraftService struct {
	mu     sync.Mutex
	drafts map[draftKey]*entry

	kv        persistence.KV
	validator draft.Validator
	submitter draft.Submitter
	hierarchy HierarchySource
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewDraftService creates a new draft service
func NewDraftService(
	kv persistence.KV,
	validator draft.Validator,
	submitter draft.Submitter,
	hierarchy HierarchySource,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *DraftService {
	return &DraftService{
		drafts:    make(map[draftKey]*entry),
		kv:        kv,
		validator: validator,
		submitter: submitter,
		hierarchy: hierarchy,
		metrics:   metricsCollector,
		logger:    logger.With().Str("component", "drafts").Logger(),
	}
}

// Open returns the draft, rehydrating it from storage on first access
func (s *DraftService) Open(ctx context.Context, t draft.Type, programID int64) (DraftState, error) {
	var state DraftState
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		state = stateOf(d)
		return nil
	})
	return state, err
}

// Select runs the context guard for a new activity/entity selection
func (s *DraftService) Select(ctx context.Context, t draft.Type, programID int64, next draft.Context) (draft.Decision, DraftState, error) {
	start := time.Now()
	var (
		decision draft.Decision
		state    DraftState
	)
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		var err error
		decision, err = d.Select(next)
		if err != nil {
			return err
		}
		if decision == draft.DecisionConfirmRequired {
			s.metrics.IncrementCounter(metrics.OpConflict)
		}
		state = stateOf(d)
		return nil
	})
	s.metrics.Observe(metrics.OpSelect, start, err)
	return decision, state, err
}

// ConfirmSwitch discards the draft in favour of the pending context
func (s *DraftService) ConfirmSwitch(ctx context.Context, t draft.Type, programID int64) (DraftState, error) {
	var state DraftState
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		if _, err := d.ConfirmSwitch(ctx); err != nil {
			return err
		}
		state = stateOf(d)
		return nil
	})
	return state, err
}

// CancelSwitch keeps the draft and drops the pending context
func (s *DraftService) CancelSwitch(ctx context.Context, t draft.Type, programID int64) (DraftState, error) {
	var state DraftState
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		d.CancelSwitch()
		state = stateOf(d)
		return nil
	})
	return state, err
}

// SaveItem validates and stores an item
func (s *DraftService) SaveItem(ctx context.Context, t draft.Type, programID int64, item draft.Item) (DraftState, error) {
	start := time.Now()
	var state DraftState
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		if err := d.SaveItem(ctx, item); err != nil {
			return err
		}
		state = stateOf(d)
		return nil
	})
	s.metrics.Observe(metrics.OpSaveItem, start, err)
	return state, err
}

// RemoveItem deletes one item
func (s *DraftService) RemoveItem(ctx context.Context, t draft.Type, programID int64, key draft.Key) (bool, DraftState, error) {
	var (
		removed bool
		state   DraftState
	)
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		removed = d.RemoveItem(ctx, key)
		state = stateOf(d)
		return nil
	})
	if err == nil {
		s.metrics.IncrementCounter(metrics.OpRemoveItem)
	}
	return removed, state, err
}

// RemoveChildren deletes every item under a parent material
func (s *DraftService) RemoveChildren(ctx context.Context, t draft.Type, programID, parentMaterialID int64) (int, DraftState, error) {
	var (
		n     int
		state DraftState
	)
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		n = d.RemoveChildren(ctx, parentMaterialID)
		state = stateOf(d)
		return nil
	})
	if err == nil {
		s.metrics.IncrementCounter(metrics.OpRemoveParent)
	}
	return n, state, err
}

// DeleteAll empties the draft and removes the persisted copy
func (s *DraftService) DeleteAll(ctx context.Context, t draft.Type, programID int64) (DraftState, error) {
	var state DraftState
	err := s.with(ctx, t, programID, func(d *draft.Draft) error {
		d.DeleteAll(ctx)
		state = stateOf(d)
		return nil
	})
	if err == nil {
		s.metrics.IncrementCounter(metrics.OpDeleteAll)
	}
	return state, err
}

// Review composes the draft against the program hierarchy
func (s *DraftService) Review(ctx context.Context, t draft.Type, programID int64) (Review, error) {
	defs, err := s.hierarchies(ctx, programID)
	if err != nil {
		return Review{}, err
	}

	var (
		review   Review
		active   draft.Context
		required float64
	)
	err = s.with(ctx, t, programID, func(d *draft.Draft) error {
		tree := d.Review(defs)
		review = Review{
			Tree:              tree,
			HasChildHierarchy: tree.HasChildHierarchy(),
			TotalQty:          tree.TotalQty(),
		}
		active = d.Context()
		for _, item := range d.Items() {
			if item.TemperatureSensitive {
				required += item.Quantity
			}
		}
		return nil
	})
	if err != nil {
		return Review{}, err
	}

	if t == draft.TypeRegularOrder && !active.IsZero() {
		review.ColdChain = s.coldChain(ctx, active, required)
	}
	return review, nil
}

// coldChain is best effort: a review without capacity is still usable
func (s *DraftService) coldChain(ctx context.Context, active draft.Context, required float64) *ColdChain {
	source, ok := s.hierarchy.(CapacitySource)
	if !ok {
		return nil
	}

	capacity, err := source.Capacity(ctx, active.ProgramID, active.ActivityID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("activity_id", active.ActivityID).Msg("continuing without cold-chain capacity")
		return nil
	}

	value, confirmed, known := capacity.Effective()
	if !known {
		return nil
	}
	return &ColdChain{
		Capacity:  value,
		Confirmed: confirmed,
		Required:  required,
		Exceeded:  required > value,
	}
}

// Submit flattens the draft and hands it to the submitter
func (s *DraftService) Submit(ctx context.Context, t draft.Type, programID int64) (draft.Receipt, error) {
	defer tracing.Segment(ctx, "drafts.submit").End()
	start := time.Now()

	defs, err := s.hierarchies(ctx, programID)
	if err != nil {
		return draft.Receipt{}, err
	}

	var receipt draft.Receipt
	err = s.with(ctx, t, programID, func(d *draft.Draft) error {
		var err error
		receipt, err = d.Submit(ctx, s.submitter, defs)
		return err
	})
	s.metrics.Observe(metrics.OpSubmit, start, err)
	return receipt, err
}

// Close drops the in-memory draft, for instance when the user switches
// program or logs out. With discard the persisted copy is removed as well.
// Requests already waiting on the draft start over on a fresh one, which only
// reads storage once the removal is done.
func (s *DraftService) Close(ctx context.Context, t draft.Type, programID int64, discard bool) {
	k := draftKey{typ: t, programID: programID}

	for {
		e := s.entry(t, programID)
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			continue
		}
		e.closed = true
		if discard {
			e.d.DeleteAll(ctx)
		}

		s.mu.Lock()
		delete(s.drafts, k)
		s.metrics.SetGauge("open_drafts", float64(len(s.drafts)))
		s.mu.Unlock()
		e.mu.Unlock()
		return
	}
}

// OpenDrafts returns how many drafts are held in memory
func (s *DraftService) OpenDrafts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

func (s *DraftService) with(ctx context.Context, t draft.Type, programID int64, fn func(d *draft.Draft) error) error {
	if programID <= 0 {
		return errors.Errorf("invalid program id %d", programID)
	}

	for {
		e := s.entry(t, programID)
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			continue
		}
		if !e.loaded {
			s.restore(ctx, e)
		}
		err := fn(e.d)
		e.mu.Unlock()
		return err
	}
}

// entry returns the live entry for the pair, creating an empty one. Storage is
// read later under the entry's own lock.
func (s *DraftService) entry(t draft.Type, programID int64) *entry {
	k := draftKey{typ: t, programID: programID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.drafts[k]; ok {
		return e
	}

	bridge := persistence.NewBridge(s.kv, t, s.logger)
	e := &entry{
		bridge: bridge,
		d: draft.New(t, programID,
			draft.WithValidator(s.validator),
			draft.WithPersister(bridge),
			draft.WithLogger(s.logger),
		),
	}
	s.drafts[k] = e
	s.metrics.SetGauge("open_drafts", float64(len(s.drafts)))
	return e
}

// restore rehydrates e from storage. Callers hold e.mu.
func (s *DraftService) restore(ctx context.Context, e *entry) {
	e.loaded = true
	t, programID := e.d.Type(), e.d.ProgramID()

	snap, ok := e.bridge.Load(ctx, programID)
	if !ok {
		return
	}
	if err := e.d.Restore(snap); err != nil {
		s.logger.Warn().Err(err).Str("draft_type", string(t)).Int64("program_id", programID).Msg("ignoring persisted draft")
		return
	}
	s.logger.Info().Str("draft_type", string(t)).Int64("program_id", programID).Int("items", e.d.Len()).Msg("draft restored")
}

func (s *DraftService) hierarchies(ctx context.Context, programID int64) ([]draft.HierarchyDef, error) {
	if s.hierarchy == nil {
		return nil, nil
	}
	defs, err := s.hierarchy.Hierarchies(ctx, programID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load material hierarchy")
	}
	return defs, nil
}

func stateOf(d *draft.Draft) DraftState {
	state := DraftState{
		Type:      d.Type(),
		ProgramID: d.ProgramID(),
		State:     d.State(),
		Context:   d.Context(),
		Items:     d.Items(),
		Dirty:     d.Dirty(),
	}
	if pending, ok := d.Pending(); ok {
		state.Pending = &pending
	}
	return state
}
