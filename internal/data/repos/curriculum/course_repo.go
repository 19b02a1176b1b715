package curriculum

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/optio-learning/optio-backend/internal/domain/course"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type CourseRepo interface {
	// CreateTree inserts the course, its quests and their lessons.
	CreateTree(dbc dbctx.Context, c *course.Course) error
	GetTree(dbc dbctx.Context, id uuid.UUID) (*course.Course, error)
	GetByUploadID(dbc dbctx.Context, uploadID uuid.UUID) (*course.Course, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) CreateTree(dbc dbctx.Context, c *course.Course) error {
	if c == nil {
		return nil
	}
	return dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
			return err
		}
		for i := range c.Quests {
			q := &c.Quests[i]
			q.CourseID = c.ID
			if err := tx.Omit(clause.Associations).Create(q).Error; err != nil {
				return err
			}
			for j := range q.Lessons {
				l := &q.Lessons[j]
				l.QuestID = q.ID
				if err := tx.Create(l).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *courseRepo) GetTree(dbc dbctx.Context, id uuid.UUID) (*course.Course, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var c course.Course
	err := dbc.DB(r.db).
		Preload("Quests", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Preload("Quests.Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("order_index ASC") }).
		Where("id = ?", id).
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}

func (r *courseRepo) GetByUploadID(dbc dbctx.Context, uploadID uuid.UUID) (*course.Course, error) {
	if uploadID == uuid.Nil {
		return nil, nil
	}
	var c course.Course
	if err := dbc.DB(r.db).Where("upload_id = ?", uploadID).Limit(1).Find(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == uuid.Nil {
		return nil, nil
	}
	return &c, nil
}
