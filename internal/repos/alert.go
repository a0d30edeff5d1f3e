package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type AlertFilter struct {
	FarmID   *uuid.UUID
	Type     *types.AlertType
	Severity *types.Severity
	Status   *types.AlertStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

type AlertRepo interface {
	Create(ctx context.Context, tx *gorm.DB, alert *types.Alert) (*types.Alert, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Alert, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	List(ctx context.Context, tx *gorm.DB, filter AlertFilter) ([]*types.Alert, error)
	ListByStatuses(ctx context.Context, tx *gorm.DB, statuses []types.AlertStatus) ([]*types.Alert, error)
}

type alertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{
		db:  db,
		log: baseLog.With("repo", "AlertRepo"),
	}
}

func (r *alertRepo) Create(ctx context.Context, tx *gorm.DB, alert *types.Alert) (*types.Alert, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if alert == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(alert).Error; err != nil {
		return nil, err
	}
	return alert, nil
}

func (r *alertRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Alert, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var alert types.Alert
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&alert).Error
	if err != nil {
		return nil, err
	}
	if alert.ID == uuid.Nil {
		return nil, nil
	}
	return &alert, nil
}

func (r *alertRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.Alert{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *alertRepo) List(ctx context.Context, tx *gorm.DB, filter AlertFilter) ([]*types.Alert, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&types.Alert{})
	if filter.FarmID != nil {
		q = q.Where("farm_id = ?", *filter.FarmID)
	}
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.Severity != nil {
		q = q.Where("severity = ?", *filter.Severity)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", *filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.Alert
	err := q.Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *alertRepo) ListByStatuses(ctx context.Context, tx *gorm.DB, statuses []types.AlertStatus) ([]*types.Alert, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Alert
	if len(statuses) == 0 {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("status IN ?", statuses).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
