package app

import (
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/data/repos/curriculum"
	jobrepo "github.com/optio-learning/optio-backend/internal/data/repos/jobs"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

type Repos struct {
	Uploads curriculum.UploadRepo
	Courses curriculum.CourseRepo
	JobRuns jobrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Uploads: curriculum.NewUploadRepo(db, log),
		Courses: curriculum.NewCourseRepo(db, log),
		JobRuns: jobrepo.NewJobRunRepo(db, log),
	}
}
