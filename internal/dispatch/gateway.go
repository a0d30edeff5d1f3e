package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/farmguard-backend/internal/logger"
	"github.com/yungbote/farmguard-backend/internal/types"
)

// GatewayConfig points one channel kind at its external delivery gateway
// (SMS bridge, push service, vest/beacon controller, emergency relay).
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type gatewayDispatcher struct {
	log        *logger.Logger
	cfg        GatewayConfig
	httpClient *http.Client
}

// NewGatewayDispatcher builds a Dispatcher that POSTs delivery requests to a
// webhook gateway. The gateway owns the actual SMS/push/beacon integration.
func NewGatewayDispatcher(log *logger.Logger, name string, cfg GatewayConfig) (Dispatcher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing gateway url for %s", name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &gatewayDispatcher{
		log:        log.With("dispatcher", name),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type gatewayPayload struct {
	Channel    types.ChannelKind `json:"channel"`
	AlertID    string            `json:"alert_id"`
	FarmID     string            `json:"farm_id"`
	Severity   types.Severity    `json:"severity"`
	Message    string            `json:"message"`
	MessageTts string            `json:"message_tts,omitempty"`
	Recipient  RecipientRef      `json:"recipient"`
}

func (d *gatewayDispatcher) Send(ctx context.Context, channel types.ChannelKind, alert *types.Alert, recipient RecipientRef) error {
	if alert == nil {
		return fmt.Errorf("nil alert")
	}
	payload := gatewayPayload{
		Channel:    channel,
		AlertID:    alert.ID.String(),
		FarmID:     alert.FarmID.String(),
		Severity:   alert.Severity,
		Message:    alert.Message,
		MessageTts: alert.MessageTts,
		Recipient:  recipient,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/deliver", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
