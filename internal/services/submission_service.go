package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/drafts/internal/draft"
	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/models"
	"example.com/backstage/services/drafts/internal/tracing"
)

// SubmissionStore records submissions
type SubmissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
}

// SnapshotSweeper purges persisted drafts
type SnapshotSweeper interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubmissionService handles the worker side of submitted drafts
type SubmissionService struct {
	store     SubmissionStore
	sweeper   SnapshotSweeper
	retention time.Duration
	tracer    tracing.Tracer
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewSubmissionService creates a new submission service. sweeper may be nil
// when snapshots are not kept in Postgres.
func NewSubmissionService(
	store SubmissionStore,
	sweeper SnapshotSweeper,
	retention time.Duration,
	tracer tracing.Tracer,
	metricsCollector *metrics.Metrics,
) *SubmissionService {
	return &SubmissionService{
		store:     store,
		sweeper:   sweeper,
		retention: retention,
		tracer:    tracer,
		metrics:   metricsCollector,
		now:       time.Now,
	}
}

// Record stores a submission received from the queue
func (s *SubmissionService) Record(ctx context.Context, msg models.SubmissionMessage) error {
	txn := s.tracer.StartTransaction("record-submission")
	defer s.tracer.EndTransaction(txn)
	start := time.Now()

	sub, err := toSubmission(msg)
	if err == nil {
		s.tracer.AddAttribute(txn, "draft_type", sub.DraftType)
		s.tracer.AddAttribute(txn, "program_id", sub.ProgramID)
		err = s.store.Create(ctx, sub)
	}

	s.metrics.Observe(metrics.OpRecord, start, err)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to record submission")
	}

	log.Info().
		Str("submission_id", sub.ID.String()).
		Str("draft_type", sub.DraftType).
		Int64("program_id", sub.ProgramID).
		Int("lines", sub.LineCount).
		Msg("Submission recorded")
	return nil
}

// SweepSnapshots removes persisted drafts older than the retention period
func (s *SubmissionService) SweepSnapshots(ctx context.Context) (int64, error) {
	if s.sweeper == nil {
		return 0, nil
	}
	start := time.Now()

	n, err := s.sweeper.DeleteOlderThan(ctx, s.now().Add(-s.retention))
	s.metrics.Observe(metrics.OpSnapshotSweep, start, err)
	if err != nil {
		return 0, err
	}

	log.Info().Int64("removed", n).Dur("retention", s.retention).Msg("Stale draft snapshots swept")
	return n, nil
}

func toSubmission(msg models.SubmissionMessage) (*models.Submission, error) {
	c := msg.Submission.Context
	if _, err := draft.ParseType(string(c.Type)); err != nil {
		return nil, errors.Wrapf(models.ErrInvalidSubmission, "submission %s: %v", msg.ID, err)
	}
	if c.ProgramID <= 0 || c.ActivityID <= 0 || (c.Type.RequiresEntity() && c.EntityID <= 0) {
		return nil, errors.Wrapf(models.ErrInvalidSubmission, "submission %s has an incomplete context %s", msg.ID, c)
	}

	payload, err := json.Marshal(msg.Submission)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal submission payload")
	}

	var total float64
	for _, line := range msg.Submission.Lines {
		total += line.Quantity
	}

	sub := &models.Submission{
		ID:          msg.ID,
		DraftType:   string(c.Type),
		ProgramID:   c.ProgramID,
		ActivityID:  c.ActivityID,
		LineCount:   len(msg.Submission.Lines),
		TotalQty:    total,
		Payload:     payload,
		Status:      models.SubmissionRecorded,
		SubmittedAt: msg.SubmittedAt,
	}
	if c.EntityID != 0 {
		entity := c.EntityID
		sub.EntityID = &entity
	}
	return sub, nil
}
