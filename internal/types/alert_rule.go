package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AlertRule maps severity to the ordered set of channels a farm wants
// notified. Read at alert-creation time only.
type AlertRule struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FarmID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_alert_rule_farm_severity" json:"farm_id"`
	Severity  Severity       `gorm:"not null;index:idx_alert_rule_farm_severity" json:"severity"`
	Channels  datatypes.JSON `gorm:"type:jsonb;not null" json:"channels"`
	IsActive  bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (AlertRule) TableName() string { return "alert_rule" }

// AlertRecipient is a named group of users notified for a (farm, severity)
// pair, optionally narrowed to a specific alert type. Multiple groups may
// match one alert; their user sets are unioned.
type AlertRecipient struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FarmID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"farm_id"`
	Severity        Severity       `gorm:"not null" json:"severity"`
	AlertType       *AlertType     `gorm:"column:alert_type" json:"alert_type,omitempty"`
	Name            string         `gorm:"not null" json:"name"`
	UserIDs         datatypes.JSON `gorm:"type:jsonb;not null" json:"user_ids"`
	IncludeExternal bool           `gorm:"not null;default:false" json:"include_external"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (AlertRecipient) TableName() string { return "alert_recipient" }

// AlertTemplate supplies message text for (type, severity) when the caller
// does not provide one. Body may contain {{variable}} placeholders.
type AlertTemplate struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AlertType AlertType `gorm:"column:alert_type;not null;index:idx_alert_template_type_severity" json:"alert_type"`
	Severity  Severity  `gorm:"not null;index:idx_alert_template_type_severity" json:"severity"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	BodyTts   string    `gorm:"type:text" json:"body_tts,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (AlertTemplate) TableName() string { return "alert_template" }
