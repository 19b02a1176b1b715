package curriculum

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/platform/dbctx"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
)

// UploadGuard restricts a conditional update. Statuses empty means any
// status; MaxStage zero means no stage condition.
type UploadGuard struct {
	Statuses []curriculum.Status
	MaxStage int
}

type UploadRepo interface {
	Create(dbc dbctx.Context, rec *curriculum.UploadRecord) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*curriculum.UploadRecord, error)
	GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*curriculum.UploadRecord, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*curriculum.UploadRecord, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsWhere applies updates only when the row satisfies guard and
	// reports whether a row changed.
	UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, guard UploadGuard, updates map[string]interface{}) (bool, error)
}

type uploadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadRepo(db *gorm.DB, baseLog *logger.Logger) UploadRepo {
	return &uploadRepo{db: db, log: baseLog.With("repo", "UploadRepo")}
}

func (r *uploadRepo) Create(dbc dbctx.Context, rec *curriculum.UploadRecord) error {
	return dbc.DB(r.db).Create(rec).Error
}

func (r *uploadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*curriculum.UploadRecord, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var rec curriculum.UploadRecord
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rec).Error; err != nil {
		return nil, err
	}
	if rec.ID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

func (r *uploadRepo) GetForOwner(dbc dbctx.Context, ownerUserID, id uuid.UUID) (*curriculum.UploadRecord, error) {
	if id == uuid.Nil || ownerUserID == uuid.Nil {
		return nil, nil
	}
	var rec curriculum.UploadRecord
	err := dbc.DB(r.db).
		Where("id = ? AND owner_user_id = ?", id, ownerUserID).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

func (r *uploadRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID, limit int) ([]*curriculum.UploadRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*curriculum.UploadRecord
	err := dbc.DB(r.db).
		Omit("stage_1_checkpoint", "stage_3_checkpoint", "stage_4_checkpoint").
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *uploadRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).
		Model(&curriculum.UploadRecord{}).
		Where("id = ?", id).
		Updates(stamp(updates)).Error
}

func (r *uploadRepo) UpdateFieldsWhere(dbc dbctx.Context, id uuid.UUID, guard UploadGuard, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	q := dbc.DB(r.db).Model(&curriculum.UploadRecord{}).Where("id = ?", id)
	switch len(guard.Statuses) {
	case 0:
	case 1:
		q = q.Where("status = ?", guard.Statuses[0])
	default:
		q = q.Where("status IN ?", guard.Statuses)
	}
	if guard.MaxStage > 0 {
		q = q.Where("current_stage <= ?", guard.MaxStage)
	}
	res := q.Updates(stamp(updates))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func stamp(updates map[string]interface{}) map[string]interface{} {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return updates
}
