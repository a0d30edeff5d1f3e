package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type AlertTemplateRepo interface {
	Get(ctx context.Context, tx *gorm.DB, alertType types.AlertType, severity types.Severity) (*types.AlertTemplate, error)
}

type alertTemplateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertTemplateRepo(db *gorm.DB, baseLog *logger.Logger) AlertTemplateRepo {
	return &alertTemplateRepo{
		db:  db,
		log: baseLog.With("repo", "AlertTemplateRepo"),
	}
}

func (r *alertTemplateRepo) Get(ctx context.Context, tx *gorm.DB, alertType types.AlertType, severity types.Severity) (*types.AlertTemplate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var tmpl types.AlertTemplate
	err := transaction.WithContext(ctx).
		Where("alert_type = ? AND severity = ?", alertType, severity).
		Order("updated_at DESC").
		Limit(1).
		Find(&tmpl).Error
	if err != nil {
		return nil, err
	}
	if tmpl.ID == uuid.Nil {
		return nil, nil
	}
	return &tmpl, nil
}
