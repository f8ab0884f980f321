package repositories

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/drafts/internal/models"
	"example.com/backstage/services/drafts/internal/persistence"
)

// SnapshotRepository stores draft snapshots in Postgres. It satisfies
// persistence.KV.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new repository
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Get reads a snapshot
func (r *SnapshotRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var snap models.DraftSnapshot
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, persistence.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get draft snapshot")
	}
	return snap.Data, nil
}

// Set inserts or replaces a snapshot
func (r *SnapshotRepository) Set(ctx context.Context, key string, value []byte) error {
	snap := models.DraftSnapshot{Key: key, Data: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&snap).Error
	if err != nil {
		return errors.Wrap(err, "failed to save draft snapshot")
	}
	return nil
}

// Remove deletes a snapshot
func (r *SnapshotRepository) Remove(ctx context.Context, key string) error {
	err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.DraftSnapshot{}).Error
	if err != nil {
		return errors.Wrap(err, "failed to delete draft snapshot")
	}
	return nil
}

// DeleteOlderThan purges snapshots not updated since the cutoff and returns
// how many were removed
func (r *SnapshotRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.DraftSnapshot{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to purge draft snapshots")
	}
	return result.RowsAffected, nil
}

// SubmissionRepository provides access to recorded submissions
type SubmissionRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewSubmissionRepository creates a new repository
func NewSubmissionRepository(db *gorm.DB, readOnlyDB *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create records a submission. Redelivered messages with a known id are
// ignored.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sub).Error
	if err != nil {
		return errors.Wrap(err, "failed to create submission")
	}
	return nil
}

// ListByProgram returns the latest submissions of a program
func (r *SubmissionRepository) ListByProgram(ctx context.Context, programID int64, limit int) ([]models.Submission, error) {
	var subs []models.Submission
	err := r.readOnlyDB.WithContext(ctx).
		Where("program_id = ?", programID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list submissions")
	}
	return subs, nil
}

// AlertSummary counts the open alerts of one target
type AlertSummary struct {
	Open     int `json:"open"`
	Critical int `json:"critical"`
}

// AlertRepository reads open alerts
type AlertRepository struct {
	readOnlyDB *gorm.DB
}

// NewAlertRepository creates a new repository
func NewAlertRepository(readOnlyDB *gorm.DB) *AlertRepository {
	return &AlertRepository{readOnlyDB: readOnlyDB}
}

// OpenByTarget returns open alert counts keyed by target id
func (r *AlertRepository) OpenByTarget(ctx context.Context, programID int64, scope string) (map[string]AlertSummary, error) {
	var rows []struct {
		TargetID int64
		Open     int
		Critical int
	}
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Alert{}).
		Select("target_id, COUNT(*) AS open, COUNT(*) FILTER (WHERE critical) AS critical").
		Where("program_id = ? AND scope = ? AND resolved_at IS NULL", programID, scope).
		Group("target_id").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to count open alerts")
	}

	out := make(map[string]AlertSummary, len(rows))
	for _, row := range rows {
		out[strconv.FormatInt(row.TargetID, 10)] = AlertSummary{Open: row.Open, Critical: row.Critical}
	}
	return out, nil
}
