package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

// Delivery is one (channel, recipient) tuple to attempt.
type Delivery struct {
	Channel   types.ChannelKind
	Recipient RecipientRef
}

// Outcome records what happened to one delivery tuple. Failures are data,
// not errors: a failed SMS never fails the lifecycle transition that
// requested it.
type Outcome struct {
	Channel   types.ChannelKind `json:"channel"`
	Recipient string            `json:"recipient"`
	Delivered bool              `json:"delivered"`
	Attempts  int               `json:"attempts"`
	Detail    string            `json:"detail,omitempty"`
}

type Fanout struct {
	log         *logger.Logger
	registry    *Registry
	maxAttempts int
	baseDelay   time.Duration
	maxParallel int
}

func NewFanout(baseLog *logger.Logger, registry *Registry) *Fanout {
	return &Fanout{
		log:         baseLog.With("component", "DispatchFanout"),
		registry:    registry,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		maxParallel: 16,
	}
}

// Dispatch attempts every tuple concurrently. Each tuple retries
// independently with bounded exponential backoff; one channel's failure never
// blocks another's.
func (f *Fanout) Dispatch(ctx context.Context, alert *types.Alert, deliveries []Delivery) []Outcome {
	if alert == nil || len(deliveries) == 0 {
		return nil
	}

	outcomes := make([]Outcome, len(deliveries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(f.maxParallel)

	for i, d := range deliveries {
		i, d := i, d
		g.Go(func() error {
			out := f.sendWithRetry(gctx, alert, d)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		if !out.Delivered {
			f.log.Warn("channel delivery failed",
				"alert_id", alert.ID,
				"channel", out.Channel,
				"recipient", out.Recipient,
				"attempts", out.Attempts,
				"detail", out.Detail,
			)
		}
	}
	return outcomes
}

func (f *Fanout) sendWithRetry(ctx context.Context, alert *types.Alert, d Delivery) Outcome {
	dispatcher := f.registry.Get(d.Channel)
	out := Outcome{Channel: d.Channel, Recipient: d.Recipient.String()}

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		out.Attempts = attempt
		if err := dispatcher.Send(ctx, d.Channel, alert, d.Recipient); err == nil {
			out.Delivered = true
			return out
		} else {
			lastErr = err
		}
		if attempt == f.maxAttempts {
			break
		}
		delay := f.baseDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			out.Detail = ctx.Err().Error()
			return out
		case <-time.After(delay):
		}
	}
	if lastErr != nil {
		out.Detail = lastErr.Error()
	}
	return out
}
