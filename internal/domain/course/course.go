package course

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"

	SourceUpload = "upload"
	SourceTopic  = "topic"
)

// Course is the published container of quests produced by ingestion or
// topic generation.
type Course struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	UploadID    *uuid.UUID     `gorm:"type:uuid;column:upload_id;uniqueIndex" json:"upload_id,omitempty"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	Status      string         `gorm:"column:status;type:varchar(16);not null" json:"status"`
	Source      string         `gorm:"column:source;type:varchar(16);not null" json:"source"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`

	Quests []Quest `gorm:"foreignKey:CourseID" json:"quests,omitempty"`
}

func (Course) TableName() string { return "courses" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	return nil
}

// Quest is a standalone project inside a course.
type Quest struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_id"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	Description     string         `gorm:"column:description" json:"description"`
	BigIdea         string         `gorm:"column:big_idea" json:"big_idea,omitempty"`
	OrderIndex      int            `gorm:"column:order_index;not null" json:"order_index"`
	SourceObjective string         `gorm:"column:source_objective" json:"source_objective,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`

	Lessons []Lesson `gorm:"foreignKey:QuestID" json:"lessons,omitempty"`
}

func (Quest) TableName() string { return "quests" }

func (q *Quest) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// Lesson holds ordered content steps as JSON.
type Lesson struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	QuestID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"quest_id"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description,omitempty"`
	OrderIndex  int            `gorm:"column:order_index;not null" json:"order_index"`
	Steps       datatypes.JSON `gorm:"column:steps" json:"steps"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Lesson) TableName() string { return "lessons" }

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
