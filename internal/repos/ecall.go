package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type ECallRepo interface {
	Create(ctx context.Context, tx *gorm.DB, ecall *types.ECall) (*types.ECall, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ECall, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ListByFarm(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, limit, offset int) ([]*types.ECall, error)
}

type ecallRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewECallRepo(db *gorm.DB, baseLog *logger.Logger) ECallRepo {
	return &ecallRepo{
		db:  db,
		log: baseLog.With("repo", "ECallRepo"),
	}
}

func (r *ecallRepo) Create(ctx context.Context, tx *gorm.DB, ecall *types.ECall) (*types.ECall, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ecall == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(ecall).Error; err != nil {
		return nil, err
	}
	return ecall, nil
}

func (r *ecallRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ECall, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var ecall types.ECall
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&ecall).Error
	if err != nil {
		return nil, err
	}
	if ecall.ID == uuid.Nil {
		return nil, nil
	}
	return &ecall, nil
}

func (r *ecallRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.ECall{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *ecallRepo) ListByFarm(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, limit, offset int) ([]*types.ECall, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if farmID == uuid.Nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.ECall
	err := transaction.WithContext(ctx).
		Where("farm_id = ?", farmID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
