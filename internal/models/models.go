package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/backstage/services/drafts/internal/draft"
)

// SubmissionRecorded is the status of a submission stored by the worker
const SubmissionRecorded = "recorded"

// AlertScopeMaterial selects alerts raised against a single material
const AlertScopeMaterial = "material"

// ErrInvalidSubmission marks a submission message that can never be recorded.
// Redelivering it does not help.
var ErrInvalidSubmission = errors.New("invalid submission")

// DraftSnapshot is a persisted draft when snapshots are kept in Postgres
type DraftSnapshot struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
	Data      []byte    `gorm:"type:jsonb;not null" json:"data"`
}

// Submission is a draft handed to the submission queue
type Submission struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	DraftType   string         `gorm:"not null;index" json:"draft_type"`
	ProgramID   int64          `gorm:"not null;index" json:"program_id"`
	ActivityID  int64          `gorm:"not null" json:"activity_id"`
	EntityID    *int64         `json:"entity_id"`
	LineCount   int            `gorm:"not null" json:"line_count"`
	TotalQty    float64        `gorm:"not null" json:"total_qty"`
	Payload     []byte         `gorm:"type:jsonb;not null" json:"payload"`
	Status      string         `gorm:"not null;default:received" json:"status"`
	SubmittedAt time.Time      `gorm:"not null" json:"submitted_at"`
}

// Alert is an open notification attached to an activity or material
type Alert struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ProgramID  int64      `gorm:"not null;index:idx_alert_target" json:"program_id"`
	Scope      string     `gorm:"not null;index:idx_alert_target" json:"scope"`
	TargetID   int64      `gorm:"not null;index:idx_alert_target" json:"target_id"`
	Critical   bool       `gorm:"not null;default:false" json:"critical"`
	Message    string     `json:"message"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// SubmissionMessage is the queue payload of a submitted draft
type SubmissionMessage struct {
	ID          uuid.UUID        `json:"id"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Submission  draft.Submission `json:"submission"`
}

// SetupModels runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&DraftSnapshot{},
		&Submission{},
		&Alert{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
