package services

import (
	"context"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/sse"
	"github.com/yungbote/farmguard-backend/internal/types"
)

// AlertNotifier publishes one realtime event per lifecycle transition. It is
// a convenience layer for connected dashboards, never the system of record.
type AlertNotifier interface {
	AlertCreated(alert *types.Alert)
	AlertAcknowledged(alert *types.Alert)
	AlertEscalated(alert *types.Alert, step int, targetType types.EscalationTargetType)
	AlertResolved(alert *types.Alert)
	ECallOpened(ecall *types.ECall)
	ECallResolved(ecall *types.ECall)
}

type alertNotifier struct {
	log *logger.Logger
	hub *sse.Hub
	bus EventBus
}

// NewAlertNotifier wires transitions into the local SSE hub, or through the
// shared event bus when one is configured (multi-instance deployments).
func NewAlertNotifier(baseLog *logger.Logger, hub *sse.Hub, bus EventBus) AlertNotifier {
	return &alertNotifier{
		log: baseLog.With("service", "AlertNotifier"),
		hub: hub,
		bus: bus,
	}
}

func (n *alertNotifier) AlertCreated(alert *types.Alert) {
	n.publishAlert(alert, sse.EventAlertCreated, map[string]any{"alert": alert})
}

func (n *alertNotifier) AlertAcknowledged(alert *types.Alert) {
	n.publishAlert(alert, sse.EventAlertAcknowledged, map[string]any{"alert": alert})
}

func (n *alertNotifier) AlertEscalated(alert *types.Alert, step int, targetType types.EscalationTargetType) {
	n.publishAlert(alert, sse.EventAlertEscalated, map[string]any{
		"alert":       alert,
		"step":        step,
		"target_type": targetType,
	})
}

func (n *alertNotifier) AlertResolved(alert *types.Alert) {
	n.publishAlert(alert, sse.EventAlertResolved, map[string]any{"alert": alert})
}

func (n *alertNotifier) ECallOpened(ecall *types.ECall) {
	if n == nil || ecall == nil {
		return
	}
	n.publish(sse.Message{
		Channel: sse.FarmChannel(ecall.FarmID),
		Event:   sse.EventECallOpened,
		Data:    map[string]any{"ecall": ecall},
	})
	n.publish(sse.Message{
		Channel: sse.DangerChannel,
		Event:   sse.EventECallOpened,
		Data:    map[string]any{"ecall": ecall},
	})
}

func (n *alertNotifier) ECallResolved(ecall *types.ECall) {
	if n == nil || ecall == nil {
		return
	}
	n.publish(sse.Message{
		Channel: sse.FarmChannel(ecall.FarmID),
		Event:   sse.EventECallResolved,
		Data:    map[string]any{"ecall": ecall},
	})
}

func (n *alertNotifier) publishAlert(alert *types.Alert, event sse.Event, data map[string]any) {
	if n == nil || alert == nil {
		return
	}
	n.publish(sse.Message{
		Channel: sse.FarmChannel(alert.FarmID),
		Event:   event,
		Data:    data,
	})
	if alert.Severity == types.SeverityDanger {
		n.publish(sse.Message{
			Channel: sse.DangerChannel,
			Event:   event,
			Data:    data,
		})
	}
}

func (n *alertNotifier) publish(msg sse.Message) {
	if n.bus != nil {
		if err := n.bus.Publish(context.Background(), msg); err != nil {
			n.log.Warn("event bus publish failed, falling back to local hub", "channel", msg.Channel, "error", err)
			if n.hub != nil {
				n.hub.Broadcast(msg)
			}
		}
		return
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}
