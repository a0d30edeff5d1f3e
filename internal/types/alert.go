package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertTypeHeat    AlertType = "HEAT"
	AlertTypeFall    AlertType = "FALL"
	AlertTypeGas     AlertType = "GAS"
	AlertTypeMachine AlertType = "MACHINE"
	AlertTypeDevice  AlertType = "DEVICE"
	AlertTypeSystem  AlertType = "SYSTEM"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityCaution Severity = "caution"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Rank orders severities from info (0) to danger (3). Unknown values rank
// below info so they never outrank a real severity.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityCaution:
		return 1
	case SeverityWarning:
		return 2
	case SeverityDanger:
		return 3
	default:
		return -1
	}
}

func (s Severity) Valid() bool { return s.Rank() >= 0 }

type AlertStatus string

const (
	AlertStatusSent         AlertStatus = "SENT"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusEscalated    AlertStatus = "ESCALATED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
)

type ChannelKind string

const (
	ChannelDashboard     ChannelKind = "dashboard"
	ChannelPush          ChannelKind = "push"
	ChannelSMS           ChannelKind = "sms"
	ChannelVestVibration ChannelKind = "vest_vibration"
	ChannelBeacon        ChannelKind = "beacon"
	ChannelEmergency119  ChannelKind = "emergency_119"
	ChannelEmergency112  ChannelKind = "emergency_112"
)

// Alert is a single hazard/system notification with its own lifecycle.
// Channels and TargetUserIDs are snapshots resolved at creation time and are
// never rewritten, so alert history stays stable when rules change later.
type Alert struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Type           AlertType      `gorm:"column:type;not null;index" json:"type"`
	Severity       Severity       `gorm:"not null;index" json:"severity"`
	FarmID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"farm_id"`
	WorkplaceID    *uuid.UUID     `gorm:"type:uuid;index" json:"workplace_id,omitempty"`
	WorkerID       *uuid.UUID     `gorm:"type:uuid;index" json:"worker_id,omitempty"`
	Message        string         `gorm:"type:text;not null" json:"message"`
	MessageTts     string         `gorm:"type:text" json:"message_tts,omitempty"`
	Channels       datatypes.JSON `gorm:"type:jsonb" json:"channels"`
	TargetUserIDs  datatypes.JSON `gorm:"type:jsonb" json:"target_user_ids"`
	Status         AlertStatus    `gorm:"not null;index;default:'SENT'" json:"status"`
	EscalationStep int            `gorm:"not null;default:0" json:"escalation_step"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *uuid.UUID     `gorm:"type:uuid" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	PredictionID   *uuid.UUID     `gorm:"type:uuid;index" json:"prediction_id,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Alert) TableName() string { return "alert" }
