package db

import (
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/domain/course"
	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/domain/jobs"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// ingestion
		&curriculum.UploadRecord{},

		// published content
		&course.Course{},
		&course.Quest{},
		&course.Lesson{},

		// background work
		&jobs.JobRun{},
	)
}
