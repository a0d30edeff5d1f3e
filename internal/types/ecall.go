package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ECallTriggerType string

const (
	ECallTriggerAuto   ECallTriggerType = "auto"
	ECallTriggerManual ECallTriggerType = "manual"
	ECallTriggerDevice ECallTriggerType = "device"
)

type ECallStatus string

const (
	ECallStatusTriggered  ECallStatus = "TRIGGERED"
	ECallStatusDispatched ECallStatus = "DISPATCHED"
	ECallStatusResolved   ECallStatus = "RESOLVED"
	ECallStatusCancelled  ECallStatus = "CANCELLED"
)

// ECall is an emergency-dispatch record. WorkerInfo is a defensive snapshot
// taken when the call is opened; later edits to the worker registry must not
// change what was reported to dispatch.
type ECall struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AlertID      *uuid.UUID       `gorm:"type:uuid;index" json:"alert_id,omitempty"`
	TriggerType  ECallTriggerType `gorm:"not null" json:"trigger_type"`
	FarmID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"farm_id"`
	WorkerID     *uuid.UUID       `gorm:"type:uuid;index" json:"worker_id,omitempty"`
	Lat          *float64         `json:"lat,omitempty"`
	Lng          *float64         `json:"lng,omitempty"`
	WorkerInfo   datatypes.JSON   `gorm:"type:jsonb" json:"worker_info,omitempty"`
	AccidentType string           `json:"accident_type,omitempty"`
	Status       ECallStatus      `gorm:"not null;index;default:'TRIGGERED'" json:"status"`
	ResolvedAt   *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt    time.Time        `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"not null;default:now()" json:"updated_at"`
}

func (ECall) TableName() string { return "ecall" }
