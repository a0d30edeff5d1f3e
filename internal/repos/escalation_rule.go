package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type EscalationRuleRepo interface {
	GetActive(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, severity types.Severity) (*types.EscalationRule, error)
}

type escalationRuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEscalationRuleRepo(db *gorm.DB, baseLog *logger.Logger) EscalationRuleRepo {
	return &escalationRuleRepo{
		db:  db,
		log: baseLog.With("repo", "EscalationRuleRepo"),
	}
}

func (r *escalationRuleRepo) GetActive(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, severity types.Severity) (*types.EscalationRule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if farmID == uuid.Nil {
		return nil, nil
	}
	var rule types.EscalationRule
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
