package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

// RecipientRef identifies one delivery target. User recipients carry a user
// id; emergency channels target an external service ("119"/"112") instead.
type RecipientRef struct {
	UserID  uuid.UUID `json:"user_id,omitempty"`
	Service string    `json:"service,omitempty"`
}

func UserRecipient(id uuid.UUID) RecipientRef  { return RecipientRef{UserID: id} }
func ServiceRecipient(svc string) RecipientRef { return RecipientRef{Service: svc} }

func (r RecipientRef) String() string {
	if r.Service != "" {
		return "service:" + r.Service
	}
	return "user:" + r.UserID.String()
}

// Dispatcher is the capability interface one channel kind implements. New
// channel kinds plug in through the registry without touching the lifecycle
// manager.
type Dispatcher interface {
	Send(ctx context.Context, channel types.ChannelKind, alert *types.Alert, recipient RecipientRef) error
}

type Registry struct {
	log         *logger.Logger
	dispatchers map[types.ChannelKind]Dispatcher
	fallback    Dispatcher
}

func NewRegistry(baseLog *logger.Logger) *Registry {
	log := baseLog.With("component", "DispatchRegistry")
	return &Registry{
		log:         log,
		dispatchers: make(map[types.ChannelKind]Dispatcher),
		fallback:    newLogDispatcher(log),
	}
}

func (r *Registry) Register(kind types.ChannelKind, d Dispatcher) {
	if d == nil {
		return
	}
	r.dispatchers[kind] = d
}

func (r *Registry) Get(kind types.ChannelKind) Dispatcher {
	if d, ok := r.dispatchers[kind]; ok {
		return d
	}
	return r.fallback
}

// logDispatcher stands in for channels with no configured gateway. It keeps
// alert creation functional in environments where only the dashboard path is
// wired up.
type logDispatcher struct {
	log *logger.Logger
}

func newLogDispatcher(log *logger.Logger) *logDispatcher {
	return &logDispatcher{log: log.With("dispatcher", "log")}
}

func (d *logDispatcher) Send(_ context.Context, channel types.ChannelKind, alert *types.Alert, recipient RecipientRef) error {
	if alert == nil {
		return fmt.Errorf("nil alert")
	}
	d.log.Info("alert delivery (no gateway configured)",
		"channel", channel,
		"alert_id", alert.ID,
		"severity", alert.Severity,
		"recipient", recipient.String(),
	)
	return nil
}
