package dispatch

import (
	"context"
	"fmt"

	"github.com/yungbote/farmguard-backend/internal/sse"
	"github.com/yungbote/farmguard-backend/internal/types"
)

type dashboardDispatcher struct {
	hub *sse.Hub
}

// NewDashboardDispatcher delivers directly to connected dashboards over the
// SSE hub. This is the delivery notification; lifecycle transition events are
// published separately by the realtime notifier.
func NewDashboardDispatcher(hub *sse.Hub) Dispatcher {
	return &dashboardDispatcher{hub: hub}
}

func (d *dashboardDispatcher) Send(_ context.Context, _ types.ChannelKind, alert *types.Alert, _ RecipientRef) error {
	if alert == nil {
		return fmt.Errorf("nil alert")
	}
	if d.hub == nil {
		return fmt.Errorf("sse hub unavailable")
	}
	d.hub.Broadcast(sse.Message{
		Channel: sse.FarmChannel(alert.FarmID),
		Event:   sse.EventAlertCreated,
		Data:    map[string]any{"alert": alert, "delivery": true},
	})
	return nil
}
