package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/drafts/config"
	"example.com/backstage/services/drafts/internal/draft"
	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/models"
	"example.com/backstage/services/drafts/internal/tracing"
)

type MockSubmissionStore struct {
	mock.Mock
}

func (m *MockSubmissionStore) Create(ctx context.Context, sub *models.Submission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

type MockSnapshotSweeper struct {
	mock.Mock
}

func (m *MockSnapshotSweeper) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func newSubmissionService(t *testing.T, store SubmissionStore, sweeper SnapshotSweeper) *SubmissionService {
	t.Helper()
	tracer, err := tracing.NewTracer(config.TracingConfig{})
	require.NoError(t, err)
	return NewSubmissionService(store, sweeper, 24*time.Hour, tracer, metrics.NewMetrics())
}

func submissionMessage() models.SubmissionMessage {
	return models.SubmissionMessage{
		ID:          uuid.New(),
		SubmittedAt: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
		Submission: draft.Submission{
			Context: draft.Context{Type: draft.TypeDisposal, ProgramID: 2, ActivityID: 3},
			Lines: []draft.Line{
				{MaterialID: 10, Quantity: 4},
				{MaterialID: 11, Quantity: 1.5},
			},
		},
	}
}

func TestRecordSubmission(t *testing.T) {
	store := new(MockSubmissionStore)
	store.On("Create", mock.Anything, mock.AnythingOfType("*models.Submission")).Return(nil)
	svc := newSubmissionService(t, store, nil)
	msg := submissionMessage()

	require.NoError(t, svc.Record(context.Background(), msg))

	recorded := store.Calls[0].Arguments.Get(1).(*models.Submission)
	assert.Equal(t, msg.ID, recorded.ID)
	assert.Equal(t, "disposal", recorded.DraftType)
	assert.Equal(t, int64(2), recorded.ProgramID)
	assert.Nil(t, recorded.EntityID)
	assert.Equal(t, 2, recorded.LineCount)
	assert.Equal(t, 5.5, recorded.TotalQty)
	assert.Equal(t, models.SubmissionRecorded, recorded.Status)

	var payload draft.Submission
	require.NoError(t, json.Unmarshal(recorded.Payload, &payload))
	assert.Equal(t, msg.Submission, payload)
}

func TestRecordSubmissionRejectsIncompleteContext(t *testing.T) {
	store := new(MockSubmissionStore)
	svc := newSubmissionService(t, store, nil)

	msg := submissionMessage()
	msg.Submission.Context.Type = "barter"
	err := svc.Record(context.Background(), msg)
	assert.ErrorIs(t, err, models.ErrInvalidSubmission)
	assert.Contains(t, err.Error(), "unknown draft type")

	msg = submissionMessage()
	msg.Submission.Context.ActivityID = 0
	assert.ErrorIs(t, svc.Record(context.Background(), msg), models.ErrInvalidSubmission)

	msg = submissionMessage()
	msg.Submission.Context.Type = draft.TypeRegularOrder
	assert.ErrorIs(t, svc.Record(context.Background(), msg), models.ErrInvalidSubmission, "orders need a customer")

	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRecordSubmissionStoreFailure(t *testing.T) {
	store := new(MockSubmissionStore)
	store.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	svc := newSubmissionService(t, store, nil)

	err := svc.Record(context.Background(), submissionMessage())
	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, models.ErrInvalidSubmission, "store failures are retried")
}

func TestSweepSnapshots(t *testing.T) {
	now := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	sweeper := new(MockSnapshotSweeper)
	sweeper.On("DeleteOlderThan", mock.Anything, now.Add(-24*time.Hour)).Return(int64(4), nil)
	svc := newSubmissionService(t, new(MockSubmissionStore), sweeper)
	svc.now = func() time.Time { return now }

	n, err := svc.SweepSnapshots(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	sweeper.AssertExpectations(t)
}

func TestSweepSnapshotsWithoutSweeper(t *testing.T) {
	svc := newSubmissionService(t, new(MockSubmissionStore), nil)

	n, err := svc.SweepSnapshots(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
