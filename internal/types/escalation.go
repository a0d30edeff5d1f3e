package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EscalationTargetType string

const (
	EscalationTargetUpperManager EscalationTargetType = "upper_manager"
	EscalationTargetEmergency119 EscalationTargetType = "emergency_119"
	EscalationTargetEmergency112 EscalationTargetType = "emergency_112"
)

func (t EscalationTargetType) Emergency() bool {
	return t == EscalationTargetEmergency119 || t == EscalationTargetEmergency112
}

// EscalationStep is one entry of an escalation chain. Step 1 counts
// WaitMinutes from alert creation; step n counts from the moment step n-1
// fired.
type EscalationStep struct {
	Step          int                  `json:"step"`
	WaitMinutes   int                  `json:"wait_minutes"`
	TargetType    EscalationTargetType `json:"target_type"`
	TargetUserIDs []uuid.UUID          `json:"target_user_ids,omitempty"`
}

// EscalationRule stores the ordered step chain for a (farm, severity) pair.
type EscalationRule struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FarmID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_escalation_rule_farm_severity" json:"farm_id"`
	Severity  Severity       `gorm:"not null;index:idx_escalation_rule_farm_severity" json:"severity"`
	Steps     datatypes.JSON `gorm:"type:jsonb;not null" json:"steps"`
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (EscalationRule) TableName() string { return "escalation_rule" }

// DecodeSteps validates the chain: step numbers 1..n in order and strictly
// increasing wait minutes.
func (r *EscalationRule) DecodeSteps() ([]EscalationStep, error) {
	var steps []EscalationStep
	if err := json.Unmarshal(r.Steps, &steps); err != nil {
		return nil, fmt.Errorf("decode escalation steps: %w", err)
	}
	prevWait := 0
	for i, s := range steps {
		if s.Step != i+1 {
			return nil, fmt.Errorf("escalation step %d out of order (want %d)", s.Step, i+1)
		}
		if s.WaitMinutes <= prevWait && i > 0 {
			return nil, fmt.Errorf("escalation step %d wait_minutes must increase", s.Step)
		}
		if s.WaitMinutes <= 0 {
			return nil, fmt.Errorf("escalation step %d wait_minutes must be positive", s.Step)
		}
		prevWait = s.WaitMinutes
	}
	return steps, nil
}

// EscalationTicket is the scheduler's persisted record of "alert X is due for
// escalation step k at time T". Generation increments on every reschedule or
// cancel so a timer firing against a stale generation is a no-op.
type EscalationTicket struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AlertID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"alert_id"`
	NextStep   int       `gorm:"not null" json:"next_step"`
	DeadlineAt time.Time `gorm:"not null;index" json:"deadline_at"`
	Generation int64     `gorm:"not null;default:1" json:"generation"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (EscalationTicket) TableName() string { return "escalation_ticket" }
