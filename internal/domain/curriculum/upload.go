package curriculum

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UploadRecord is the durable state of one curriculum ingestion.
type UploadRecord struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	SourceFilename      string         `gorm:"column:source_filename" json:"source_filename"`
	SourceContentType   string         `gorm:"column:source_content_type" json:"source_content_type,omitempty"`
	SourceStorageKey    string         `gorm:"column:source_storage_key" json:"-"`
	Status              Status         `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	CurrentStage        int            `gorm:"column:current_stage;not null" json:"current_stage"`
	ProgressPercent     int            `gorm:"column:progress_percent;not null" json:"progress_percent"`
	StatusMessage       string         `gorm:"column:status_message" json:"status_message,omitempty"`
	Stage1Checkpoint    datatypes.JSON `gorm:"column:stage_1_checkpoint" json:"-"`
	Stage2Checkpoint    datatypes.JSON `gorm:"column:stage_2_checkpoint" json:"-"`
	Stage3Checkpoint    datatypes.JSON `gorm:"column:stage_3_checkpoint" json:"-"`
	Stage4Checkpoint    datatypes.JSON `gorm:"column:stage_4_checkpoint" json:"-"`
	StageData           datatypes.JSON `gorm:"column:stage_data" json:"stage_data,omitempty"`
	HumanStructureEdits datatypes.JSON `gorm:"column:human_structure_edits" json:"human_structure_edits,omitempty"`
	ErrorMessage        string         `gorm:"column:error_message" json:"error_message,omitempty"`
	Config              datatypes.JSON `gorm:"column:config" json:"config,omitempty"`
	ResumeFromStage     int            `gorm:"column:resume_from_stage" json:"resume_from_stage,omitempty"`
	CanResume           bool           `gorm:"column:can_resume" json:"can_resume"`
	CourseID            *uuid.UUID     `gorm:"type:uuid;column:course_id" json:"course_id,omitempty"`
	ReviewReadyAt       *time.Time     `gorm:"column:review_ready_at" json:"review_ready_at,omitempty"`
	ApprovedAt          *time.Time     `gorm:"column:approved_at" json:"approved_at,omitempty"`
	RejectedAt          *time.Time     `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	CompletedAt         *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`
}

func (UploadRecord) TableName() string { return "curriculum_uploads" }

func (u *UploadRecord) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = StatusProcessing
	}
	if u.CurrentStage == 0 {
		u.CurrentStage = StageParse
	}
	return nil
}

// CheckpointColumn is the column holding a stage's output.
func CheckpointColumn(stage int) (string, bool) {
	switch stage {
	case StageParse:
		return "stage_1_checkpoint", true
	case StageStructure:
		return "stage_2_checkpoint", true
	case StageAlign:
		return "stage_3_checkpoint", true
	case StageGenerate:
		return "stage_4_checkpoint", true
	default:
		return "", false
	}
}

// Checkpoint returns the raw stored output for stage, nil when absent.
func (u *UploadRecord) Checkpoint(stage int) datatypes.JSON {
	var raw datatypes.JSON
	switch stage {
	case StageParse:
		raw = u.Stage1Checkpoint
	case StageStructure:
		raw = u.Stage2Checkpoint
	case StageAlign:
		raw = u.Stage3Checkpoint
	case StageGenerate:
		raw = u.Stage4Checkpoint
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// DecodeCheckpoint unmarshals the stage output into out. ok is false when
// the stage has no checkpoint.
func (u *UploadRecord) DecodeCheckpoint(stage int, out any) (bool, error) {
	raw := u.Checkpoint(stage)
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// UploadConfig is the per-upload configuration supplied at submission.
type UploadConfig struct {
	TransformationLevel TransformationLevel `json:"transformation_level"`
	PreserveStructure   bool                `json:"preserve_structure"`
	ContentTypes        map[string]bool     `json:"content_types,omitempty"`
	LearningObjectives  []string            `json:"learning_objectives,omitempty"`
}

func (u *UploadRecord) DecodeConfig() (UploadConfig, error) {
	var cfg UploadConfig
	if len(u.Config) == 0 {
		cfg.TransformationLevel = TransformModerate
		return cfg, nil
	}
	if err := json.Unmarshal(u.Config, &cfg); err != nil {
		return cfg, err
	}
	cfg.TransformationLevel = cfg.TransformationLevel.Normalize()
	return cfg, nil
}

type TransformationLevel string

const (
	TransformLight    TransformationLevel = "light"
	TransformModerate TransformationLevel = "moderate"
	TransformFull     TransformationLevel = "full"
)

// Normalize maps unknown or empty levels to moderate.
func (l TransformationLevel) Normalize() TransformationLevel {
	switch l {
	case TransformLight, TransformModerate, TransformFull:
		return l
	default:
		return TransformModerate
	}
}

func (l TransformationLevel) Valid() bool {
	return l == TransformLight || l == TransformModerate || l == TransformFull
}
