package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type AlertRuleRepo interface {
	GetActive(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, severity types.Severity) (*types.AlertRule, error)
}

type alertRuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRuleRepo(db *gorm.DB, baseLog *logger.Logger) AlertRuleRepo {
	return &alertRuleRepo{
		db:  db,
		log: baseLog.With("repo", "AlertRuleRepo"),
	}
}

func (r *alertRuleRepo) GetActive(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, severity types.Severity) (*types.AlertRule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if farmID == uuid.Nil {
		return nil, nil
	}
	var rule types.AlertRule
	err := transaction.WithContext(ctx).
		Where("farm_id = ? AND severity = ? AND is_active = ?", farmID, severity, true).
		Order("updated_at DESC").
		Limit(1).
		Find(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == uuid.Nil {
		return nil, nil
	}
	return &rule, nil
}
