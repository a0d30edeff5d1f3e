package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type EscalationTicketRepo interface {
	// Upsert replaces the active ticket for an alert, bumping its generation.
	// Returns the stored row including the new generation.
	Upsert(ctx context.Context, tx *gorm.DB, alertID uuid.UUID, nextStep int, deadlineAt time.Time) (*types.EscalationTicket, error)
	Get(ctx context.Context, tx *gorm.DB, alertID uuid.UUID) (*types.EscalationTicket, error)
	Delete(ctx context.Context, tx *gorm.DB, alertID uuid.UUID) error
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.EscalationTicket, error)
}

type escalationTicketRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEscalationTicketRepo(db *gorm.DB, baseLog *logger.Logger) EscalationTicketRepo {
	return &escalationTicketRepo{
		db:  db,
		log: baseLog.With("repo", "EscalationTicketRepo"),
	}
}

func (r *escalationTicketRepo) Upsert(ctx context.Context, tx *gorm.DB, alertID uuid.UUID, nextStep int, deadlineAt time.Time) (*types.EscalationTicket, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if alertID == uuid.Nil {
		return nil, nil
	}
	now := time.Now()
	row := &types.EscalationTicket{
		ID:         uuid.New(),
		AlertID:    alertID,
		NextStep:   nextStep,
		DeadlineAt: deadlineAt.UTC(),
		Generation: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "alert_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"next_step":   nextStep,
				"deadline_at": deadlineAt.UTC(),
				"generation":  gorm.Expr("escalation_ticket.generation + 1"),
				"updated_at":  now,
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, transaction, alertID)
}

func (r *escalationTicketRepo) Get(ctx context.Context, tx *gorm.DB, alertID uuid.UUID) (*types.EscalationTicket, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if alertID == uuid.Nil {
		return nil, nil
	}
	var ticket types.EscalationTicket
	err := transaction.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Limit(1).
		Find(&ticket).Error
	if err != nil {
		return nil, err
	}
	if ticket.ID == uuid.Nil {
		return nil, nil
	}
	return &ticket, nil
}

func (r *escalationTicketRepo) Delete(ctx context.Context, tx *gorm.DB, alertID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if alertID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Delete(&types.EscalationTicket{}).Error
}

func (r *escalationTicketRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.EscalationTicket, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EscalationTicket
	err := transaction.WithContext(ctx).
		Order("deadline_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
