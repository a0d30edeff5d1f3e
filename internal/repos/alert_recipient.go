package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type AlertRecipientRepo interface {
	// ListMatching returns recipient groups for (farm, severity) whose
	// alert_type is either unset or equal to alertType.
	ListMatching(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, severity types.Severity, alertType types.AlertType) ([]*types.AlertRecipient, error)
}

type alertRecipientRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRecipientRepo(db *gorm.DB, baseLog *logger.Logger) AlertRecipientRepo {
	return &alertRecipientRepo{
		db:  db,
		log: baseLog.With("repo", "AlertRecipientRepo"),
	}
}

func (r *alertRecipientRepo) ListMatching(ctx context.Context, tx *gorm.DB, farmID uuid.UUID, severity types.Severity, alertType types.AlertType) ([]*types.AlertRecipient, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if farmID == uuid.Nil {
		return nil, nil
	}
	var out []*types.AlertRecipient
	err := transaction.WithContext(ctx).
		Where("farm_id = ? AND severity = ? AND (alert_type IS NULL OR alert_type = ?)", farmID, severity, alertType).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
