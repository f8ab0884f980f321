// Package persistence saves draft snapshots to a key-value store so an
// interrupted flow can be resumed.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"example.com/backstage/services/drafts/internal/draft"
)

// ErrNotFound is returned by a KV when the key has no value
var ErrNotFound = errors.New("key not found")

// KV is the local key-value storage used for snapshots
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// StorageKey returns the key a draft snapshot is stored under. It is unique
// per (draft type, program) pair.
func StorageKey(t draft.Type, programID int64) string {
	return fmt.Sprintf("draft:%s:%d", t, programID)
}

// Bridge persists snapshots of one draft type. Storage failures are logged
// and never returned: a lost save must not block the user.
type Bridge struct {
	kv     KV
	typ    draft.Type
	logger zerolog.Logger
}

// NewBridge creates a bridge for a draft type
func NewBridge(kv KV, t draft.Type, logger zerolog.Logger) *Bridge {
	return &Bridge{
		kv:     kv,
		typ:    t,
		logger: logger.With().Str("component", "persistence").Str("draft_type", string(t)).Logger(),
	}
}

// Save writes the snapshot
func (b *Bridge) Save(ctx context.Context, programID int64, snap draft.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		b.logger.Error().Err(err).Int64("program_id", programID).Msg("failed to encode draft snapshot")
		return
	}

	if err := b.kv.Set(ctx, StorageKey(b.typ, programID), data); err != nil {
		b.logger.Error().Err(err).Int64("program_id", programID).Msg("failed to save draft snapshot")
	}
}

// Load reads the snapshot. A missing or unreadable snapshot is reported as
// absent.
func (b *Bridge) Load(ctx context.Context, programID int64) (draft.Snapshot, bool) {
	data, err := b.kv.Get(ctx, StorageKey(b.typ, programID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.Error().Err(err).Int64("program_id", programID).Msg("failed to load draft snapshot")
		}
		return draft.Snapshot{}, false
	}

	var snap draft.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		b.logger.Warn().Err(err).Int64("program_id", programID).Msg("discarding unreadable draft snapshot")
		return draft.Snapshot{}, false
	}
	return snap, true
}

// Remove deletes the snapshot
func (b *Bridge) Remove(ctx context.Context, programID int64) {
	if err := b.kv.Remove(ctx, StorageKey(b.typ, programID)); err != nil && !errors.Is(err, ErrNotFound) {
		b.logger.Error().Err(err).Int64("program_id", programID).Msg("failed to remove draft snapshot")
	}
}
