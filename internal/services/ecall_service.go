package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/farmguard-backend/internal/apierr"
	"github.com/yungbote/farmguard-backend/internal/dispatch"
	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/repos"
	"github.com/yungbote/farmguard-backend/internal/types"
)

var (
	ErrECallNotFound = apierr.New(http.StatusNotFound, "ecall_not_found", errors.New("ecall not found"))
	ErrECallResolved = apierr.New(http.StatusConflict, "ecall_already_resolved", errors.New("ecall already resolved"))
)

type OpenECallCommand struct {
	TriggerType  types.ECallTriggerType `json:"trigger_type"`
	FarmID       uuid.UUID              `json:"farm_id"`
	WorkerID     *uuid.UUID             `json:"worker_id,omitempty"`
	Lat          *float64               `json:"lat,omitempty"`
	Lng          *float64               `json:"lng,omitempty"`
	WorkerInfo   map[string]any         `json:"worker_info,omitempty"`
	AccidentType string                 `json:"accident_type,omitempty"`
	AlertID      *uuid.UUID             `json:"alert_id,omitempty"`
}

// ECallService tracks emergency dispatch records to resolution,
// independently of any alert that may have triggered them.
type ECallService interface {
	Open(ctx context.Context, cmd OpenECallCommand) (*types.ECall, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) (*types.ECall, error)
	Resolve(ctx context.Context, id uuid.UUID) (*types.ECall, error)
	Cancel(ctx context.Context, id uuid.UUID) (*types.ECall, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.ECall, error)
	ListByFarm(ctx context.Context, farmID uuid.UUID, limit, offset int) ([]*types.ECall, error)

	// OpenAuto satisfies the lifecycle manager's ECallOpener.
	OpenAuto(ctx context.Context, alert *types.Alert, service string) (*types.ECall, error)
}

type ecallService struct {
	db       *gorm.DB
	log      *logger.Logger
	clock    Clock
	ecalls   repos.ECallRepo
	fanout   *dispatch.Fanout
	notifier AlertNotifier
}

func NewECallService(db *gorm.DB, baseLog *logger.Logger, clock Clock, ecalls repos.ECallRepo, fanout *dispatch.Fanout, notifier AlertNotifier) ECallService {
	return &ecallService{
		db:       db,
		log:      baseLog.With("service", "ECallService"),
		clock:    clock,
		ecalls:   ecalls,
		fanout:   fanout,
		notifier: notifier,
	}
}

// Open always succeeds for manual/device triggers; an alert link is
// optional, not a prerequisite.
func (s *ecallService) Open(ctx context.Context, cmd OpenECallCommand) (*types.ECall, error) {
	if cmd.FarmID == uuid.Nil {
		return nil, apierr.New(http.StatusBadRequest, "missing_farm_id", errors.New("farm_id is required"))
	}
	switch cmd.TriggerType {
	case types.ECallTriggerAuto, types.ECallTriggerManual, types.ECallTriggerDevice:
	default:
		return nil, apierr.New(http.StatusBadRequest, "invalid_trigger_type", errors.New("invalid trigger_type: "+string(cmd.TriggerType)))
	}

	now := s.clock.Now().UTC()
	var workerInfo datatypes.JSON
	if len(cmd.WorkerInfo) > 0 {
		// snapshot by value so later worker-registry edits never rewrite
		// what was reported to dispatch
		raw, err := json.Marshal(cmd.WorkerInfo)
		if err == nil {
			workerInfo = datatypes.JSON(raw)
		}
	}

	ecall := &types.ECall{
		ID:           uuid.New(),
		AlertID:      cmd.AlertID,
		TriggerType:  cmd.TriggerType,
		FarmID:       cmd.FarmID,
		WorkerID:     cmd.WorkerID,
		Lat:          cmd.Lat,
		Lng:          cmd.Lng,
		WorkerInfo:   workerInfo,
		AccidentType: cmd.AccidentType,
		Status:       types.ECallStatusTriggered,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.ecalls.Create(ctx, nil, ecall); err != nil {
		return nil, err
	}

	s.notifier.ECallOpened(ecall)
	s.log.Info("e-call opened",
		"ecall_id", ecall.ID,
		"trigger_type", ecall.TriggerType,
		"farm_id", ecall.FarmID,
		"alert_id", cmd.AlertID,
	)
	return ecall, nil
}

// OpenAuto opens an alert-linked e-call and hands it to the emergency
// channel dispatcher.
func (s *ecallService) OpenAuto(ctx context.Context, alert *types.Alert, service string) (*types.ECall, error) {
	if alert == nil {
		return nil, errors.New("nil alert")
	}
	alertID := alert.ID
	ecall, err := s.Open(ctx, OpenECallCommand{
		TriggerType:  types.ECallTriggerAuto,
		FarmID:       alert.FarmID,
		WorkerID:     alert.WorkerID,
		AccidentType: string(alert.Type),
		AlertID:      &alertID,
	})
	if err != nil {
		return nil, err
	}

	channel := types.ChannelEmergency119
	if service == "112" {
		channel = types.ChannelEmergency112
	}
	go s.fanout.Dispatch(context.WithoutCancel(ctx), alert, []dispatch.Delivery{
		{Channel: channel, Recipient: dispatch.ServiceRecipient(service)},
	})
	return ecall, nil
}

func (s *ecallService) MarkDispatched(ctx context.Context, id uuid.UUID) (*types.ECall, error) {
	ecall, err := s.ecalls.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if ecall == nil {
		return nil, ErrECallNotFound
	}
	if ecall.Status != types.ECallStatusTriggered {
		return ecall, nil
	}
	now := s.clock.Now().UTC()
	if err := s.ecalls.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     types.ECallStatusDispatched,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	ecall.Status = types.ECallStatusDispatched
	ecall.UpdatedAt = now
	return ecall, nil
}

// Resolve is idempotent: resolving a resolved e-call is a no-op.
func (s *ecallService) Resolve(ctx context.Context, id uuid.UUID) (*types.ECall, error) {
	ecall, err := s.ecalls.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if ecall == nil {
		return nil, ErrECallNotFound
	}
	if ecall.Status == types.ECallStatusResolved {
		return ecall, nil
	}

	now := s.clock.Now().UTC()
	if err := s.ecalls.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":      types.ECallStatusResolved,
		"resolved_at": now,
		"updated_at":  now,
	}); err != nil {
		return nil, err
	}
	ecall.Status = types.ECallStatusResolved
	ecall.ResolvedAt = &now
	ecall.UpdatedAt = now

	s.notifier.ECallResolved(ecall)
	s.log.Info("e-call resolved", "ecall_id", id)
	return ecall, nil
}

func (s *ecallService) Cancel(ctx context.Context, id uuid.UUID) (*types.ECall, error) {
	ecall, err := s.ecalls.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if ecall == nil {
		return nil, ErrECallNotFound
	}
	if ecall.Status == types.ECallStatusCancelled {
		return ecall, nil
	}
	if ecall.Status == types.ECallStatusResolved {
		return nil, ErrECallResolved
	}

	now := s.clock.Now().UTC()
	if err := s.ecalls.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status":     types.ECallStatusCancelled,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	ecall.Status = types.ECallStatusCancelled
	ecall.UpdatedAt = now
	s.log.Info("e-call cancelled", "ecall_id", id)
	return ecall, nil
}

func (s *ecallService) GetByID(ctx context.Context, id uuid.UUID) (*types.ECall, error) {
	ecall, err := s.ecalls.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if ecall == nil {
		return nil, ErrECallNotFound
	}
	return ecall, nil
}

func (s *ecallService) ListByFarm(ctx context.Context, farmID uuid.UUID, limit, offset int) ([]*types.ECall, error) {
	return s.ecalls.ListByFarm(ctx, nil, farmID, limit, offset)
}
