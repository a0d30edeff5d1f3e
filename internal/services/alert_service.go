package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/apierr"
	"github.com/yungbote/farmguard-backend/internal/dispatch"
	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/repos"
	"github.com/yungbote/farmguard-backend/internal/types"
)

var ErrAlertNotFound = apierr.New(http.StatusNotFound, "alert_not_found", errors.New("alert not found"))

type CreateAlertEvent struct {
	Type                  types.AlertType   `json:"type"`
	Severity              types.Severity    `json:"severity"`
	FarmID                uuid.UUID         `json:"farm_id"`
	WorkplaceID           *uuid.UUID        `json:"workplace_id,omitempty"`
	WorkerID              *uuid.UUID        `json:"worker_id,omitempty"`
	Message               string            `json:"message"`
	MessageTts            string            `json:"message_tts,omitempty"`
	MessageVars           map[string]string `json:"message_vars,omitempty"`
	ExplicitChannels      []types.ChannelKind `json:"explicit_channels,omitempty"`
	ExplicitTargetUserIDs []uuid.UUID       `json:"explicit_target_user_ids,omitempty"`
	PredictionID          *uuid.UUID        `json:"prediction_id,omitempty"`
}

// ECallOpener is the lifecycle manager's handle on the E-Call coordinator.
type ECallOpener interface {
	OpenAuto(ctx context.Context, alert *types.Alert, service string) (*types.ECall, error)
}

// AlertService owns the per-alert state machine. It is the single authority
// that may mutate an alert's status; the scheduler and handlers only ask.
type AlertService interface {
	Create(ctx context.Context, event CreateAlertEvent) (*types.Alert, error)
	Acknowledge(ctx context.Context, alertID, userID uuid.UUID) (*types.Alert, error)
	Resolve(ctx context.Context, alertID uuid.UUID) (*types.Alert, error)
	Escalate(ctx context.Context, alertID uuid.UUID, step int)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Alert, error)
	List(ctx context.Context, filter repos.AlertFilter) ([]*types.Alert, error)
}

type alertService struct {
	db        *gorm.DB
	log       *logger.Logger
	clock     Clock
	alerts    repos.AlertRepo
	rules     RuleService
	scheduler TicketScheduler
	fanout    *dispatch.Fanout
	notifier  AlertNotifier
	ecalls    ECallOpener
	locks     *alertLocks
}

func NewAlertService(db *gorm.DB, baseLog *logger.Logger, clock Clock, alerts repos.AlertRepo, rules RuleService, scheduler TicketScheduler, fanout *dispatch.Fanout, notifier AlertNotifier, ecalls ECallOpener) AlertService {
	return &alertService{
		db:        db,
		log:       baseLog.With("service", "AlertService"),
		clock:     clock,
		alerts:    alerts,
		rules:     rules,
		scheduler: scheduler,
		fanout:    fanout,
		notifier:  notifier,
		ecalls:    ecalls,
		locks:     newAlertLocks(),
	}
}

// Create resolves rules into immutable snapshots, persists the alert as
// SENT, registers the first escalation ticket, and fans out delivery. Each
// side effect fails independently; none rolls back the alert row.
func (s *alertService) Create(ctx context.Context, event CreateAlertEvent) (*types.Alert, error) {
	if !event.Severity.Valid() {
		return nil, apierr.New(http.StatusBadRequest, "invalid_severity", errors.New("invalid severity: "+string(event.Severity)))
	}
	if event.FarmID == uuid.Nil {
		return nil, apierr.New(http.StatusBadRequest, "missing_farm_id", errors.New("farm_id is required"))
	}

	channels := event.ExplicitChannels
	if len(channels) == 0 {
		channels = s.rules.ResolveChannels(ctx, event.FarmID, event.Severity)
	}

	targetUserIDs := event.ExplicitTargetUserIDs
	externalEligible := false
	if len(targetUserIDs) == 0 {
		resolved, includeExternal, err := s.rules.ResolveRecipients(ctx, event.FarmID, event.Severity, event.Type)
		if err != nil {
			s.log.Warn("recipient resolution failed, continuing with empty target set", "farm_id", event.FarmID, "error", err)
		}
		targetUserIDs = resolved
		externalEligible = includeExternal
	} else {
		// explicit targets imply the caller already decided who hears this
		externalEligible = true
	}

	message, messageTts := s.rules.ResolveMessage(ctx, event.Type, event.Severity, event.Message, event.MessageTts, event.MessageVars)

	now := s.clock.Now().UTC()
	channelsJSON, _ := json.Marshal(channels)
	targetsJSON, _ := json.Marshal(targetUserIDs)

	alert := &types.Alert{
		ID:            uuid.New(),
		Type:          event.Type,
		Severity:      event.Severity,
		FarmID:        event.FarmID,
		WorkplaceID:   event.WorkplaceID,
		WorkerID:      event.WorkerID,
		Message:       message,
		MessageTts:    messageTts,
		Channels:      datatypes.JSON(channelsJSON),
		TargetUserIDs: datatypes.JSON(targetsJSON),
		Status:        types.AlertStatusSent,
		PredictionID:  event.PredictionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.alerts.Create(ctx, nil, alert); err != nil {
		return nil, err
	}

	steps, err := s.rules.EscalationSteps(ctx, event.FarmID, event.Severity)
	if err != nil {
		s.log.Warn("escalation rule lookup failed, alert will not escalate", "alert_id", alert.ID, "error", err)
	}
	if len(steps) > 0 {
		deadline := now.Add(time.Duration(steps[0].WaitMinutes) * time.Minute)
		if err := s.scheduler.Register(ctx, alert.ID, steps[0].Step, deadline); err != nil {
			s.log.Error("escalation ticket registration failed", "alert_id", alert.ID, "error", err)
		}
	}

	deliveries := s.buildDeliveries(channels, targetUserIDs, externalEligible, alert.ID)
	go s.fanout.Dispatch(context.WithoutCancel(ctx), alert, deliveries)

	s.notifier.AlertCreated(alert)
	s.log.Info("alert created",
		"alert_id", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"farm_id", alert.FarmID,
		"channels", channels,
		"targets", len(targetUserIDs),
	)
	return alert, nil
}

// Acknowledge is idempotent: acknowledging an already-acknowledged or
// resolved alert returns its current state without error.
func (s *alertService) Acknowledge(ctx context.Context, alertID, userID uuid.UUID) (*types.Alert, error) {
	s.locks.lock(alertID)
	defer s.locks.unlock(alertID)

	alert, err := s.alerts.GetByID(ctx, nil, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	if alert.Status == types.AlertStatusAcknowledged || alert.Status == types.AlertStatusResolved {
		return alert, nil
	}

	now := s.clock.Now().UTC()
	updates := map[string]interface{}{
		"status":          types.AlertStatusAcknowledged,
		"acknowledged_at": now,
		"acknowledged_by": userID,
		"updated_at":      now,
	}
	if err := s.alerts.UpdateFields(ctx, nil, alertID, updates); err != nil {
		return nil, err
	}
	alert.Status = types.AlertStatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = &userID
	alert.UpdatedAt = now

	if err := s.scheduler.Cancel(ctx, alertID); err != nil {
		s.log.Warn("escalation ticket cancel failed after acknowledge", "alert_id", alertID, "error", err)
	}
	s.notifier.AlertAcknowledged(alert)
	s.log.Info("alert acknowledged", "alert_id", alertID, "user_id", userID)
	return alert, nil
}

// Resolve closes the alert from any non-resolved state.
func (s *alertService) Resolve(ctx context.Context, alertID uuid.UUID) (*types.Alert, error) {
	s.locks.lock(alertID)
	defer s.locks.unlock(alertID)

	alert, err := s.alerts.GetByID(ctx, nil, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	if alert.Status == types.AlertStatusResolved {
		return alert, nil
	}

	now := s.clock.Now().UTC()
	updates := map[string]interface{}{
		"status":      types.AlertStatusResolved,
		"resolved_at": now,
		"updated_at":  now,
	}
	if err := s.alerts.UpdateFields(ctx, nil, alertID, updates); err != nil {
		return nil, err
	}
	alert.Status = types.AlertStatusResolved
	alert.ResolvedAt = &now
	alert.UpdatedAt = now

	if err := s.scheduler.Cancel(ctx, alertID); err != nil {
		s.log.Warn("escalation ticket cancel failed after resolve", "alert_id", alertID, "error", err)
	}
	s.notifier.AlertResolved(alert)
	s.log.Info("alert resolved", "alert_id", alertID)
	return alert, nil
}

// Escalate is invoked only by the scheduler. It never raises: an alert that
// was acknowledged or resolved while the timer was in flight is the expected
// race and escalation simply stands down.
func (s *alertService) Escalate(ctx context.Context, alertID uuid.UUID, step int) {
	s.locks.lock(alertID)
	defer s.locks.unlock(alertID)

	alert, err := s.alerts.GetByID(ctx, nil, alertID)
	if err != nil {
		s.log.Error("alert load failed during escalation", "alert_id", alertID, "step", step, "error", err)
		return
	}
	if alert == nil {
		s.log.Error("escalation fired for unknown alert", "alert_id", alertID, "step", step)
		return
	}
	if alert.Status != types.AlertStatusSent && alert.Status != types.AlertStatusEscalated {
		s.log.Info("escalation skipped, alert no longer pending", "alert_id", alertID, "step", step, "status", alert.Status)
		return
	}

	steps, err := s.rules.EscalationSteps(ctx, alert.FarmID, alert.Severity)
	if err != nil {
		s.log.Error("escalation rule lookup failed", "alert_id", alertID, "step", step, "error", err)
		return
	}
	var current *types.EscalationStep
	var next *types.EscalationStep
	for i := range steps {
		if steps[i].Step == step {
			current = &steps[i]
		}
		if steps[i].Step == step+1 {
			next = &steps[i]
		}
	}
	if current == nil {
		s.log.Warn("escalation step no longer defined, skipping", "alert_id", alertID, "step", step)
		return
	}

	now := s.clock.Now().UTC()
	updates := map[string]interface{}{
		"status":          types.AlertStatusEscalated,
		"escalation_step": step,
		"updated_at":      now,
	}
	if err := s.alerts.UpdateFields(ctx, nil, alertID, updates); err != nil {
		s.log.Error("alert update failed during escalation", "alert_id", alertID, "step", step, "error", err)
		return
	}
	alert.Status = types.AlertStatusEscalated
	alert.EscalationStep = step
	alert.UpdatedAt = now

	deliveries := s.escalationDeliveries(current)
	if current.TargetType.Emergency() {
		service := "119"
		if current.TargetType == types.EscalationTargetEmergency112 {
			service = "112"
		}
		if s.ecalls != nil {
			if _, err := s.ecalls.OpenAuto(ctx, alert, service); err != nil {
				s.log.Error("auto e-call open failed", "alert_id", alertID, "service", service, "error", err)
			}
		}
	}
	go s.fanout.Dispatch(context.WithoutCancel(ctx), alert, deliveries)

	if next != nil {
		deadline := now.Add(time.Duration(next.WaitMinutes) * time.Minute)
		if err := s.scheduler.Register(ctx, alertID, next.Step, deadline); err != nil {
			s.log.Error("next escalation ticket registration failed", "alert_id", alertID, "step", next.Step, "error", err)
		}
	}

	s.notifier.AlertEscalated(alert, step, current.TargetType)
	s.log.Info("alert escalated", "alert_id", alertID, "step", step, "target_type", current.TargetType)
}

func (s *alertService) GetByID(ctx context.Context, id uuid.UUID) (*types.Alert, error) {
	alert, err := s.alerts.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

func (s *alertService) List(ctx context.Context, filter repos.AlertFilter) ([]*types.Alert, error) {
	return s.alerts.List(ctx, nil, filter)
}

// buildDeliveries expands the channel snapshot into (channel, recipient)
// tuples. User-addressed channels get one tuple per target user; dashboard
// gets a single tuple; emergency channels are included only when a matching
// recipient group opted into external targets.
func (s *alertService) buildDeliveries(channels []types.ChannelKind, targetUserIDs []uuid.UUID, externalEligible bool, alertID uuid.UUID) []dispatch.Delivery {
	var deliveries []dispatch.Delivery
	for _, ch := range channels {
		switch ch {
		case types.ChannelDashboard:
			deliveries = append(deliveries, dispatch.Delivery{Channel: ch, Recipient: dispatch.ServiceRecipient("dashboard")})
		case types.ChannelEmergency119:
			if externalEligible {
				deliveries = append(deliveries, dispatch.Delivery{Channel: ch, Recipient: dispatch.ServiceRecipient("119")})
			} else {
				s.log.Warn("emergency channel skipped, no recipient group allows external targets", "alert_id", alertID, "channel", ch)
			}
		case types.ChannelEmergency112:
			if externalEligible {
				deliveries = append(deliveries, dispatch.Delivery{Channel: ch, Recipient: dispatch.ServiceRecipient("112")})
			} else {
				s.log.Warn("emergency channel skipped, no recipient group allows external targets", "alert_id", alertID, "channel", ch)
			}
		default:
			if len(targetUserIDs) == 0 {
				s.log.Warn("channel skipped, no target users resolved", "alert_id", alertID, "channel", ch)
				continue
			}
			for _, userID := range targetUserIDs {
				deliveries = append(deliveries, dispatch.Delivery{Channel: ch, Recipient: dispatch.UserRecipient(userID)})
			}
		}
	}
	return deliveries
}

// escalationDeliveries notifies the step's target. Managers are reached on
// push and sms; emergency services on their own channel.
func (s *alertService) escalationDeliveries(step *types.EscalationStep) []dispatch.Delivery {
	var deliveries []dispatch.Delivery
	switch step.TargetType {
	case types.EscalationTargetEmergency119:
		deliveries = append(deliveries, dispatch.Delivery{Channel: types.ChannelEmergency119, Recipient: dispatch.ServiceRecipient("119")})
	case types.EscalationTargetEmergency112:
		deliveries = append(deliveries, dispatch.Delivery{Channel: types.ChannelEmergency112, Recipient: dispatch.ServiceRecipient("112")})
	default:
		for _, userID := range step.TargetUserIDs {
			deliveries = append(deliveries,
				dispatch.Delivery{Channel: types.ChannelPush, Recipient: dispatch.UserRecipient(userID)},
				dispatch.Delivery{Channel: types.ChannelSMS, Recipient: dispatch.UserRecipient(userID)},
			)
		}
	}
	return deliveries
}
