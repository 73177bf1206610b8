// Package alerts pushes significant vault events to an operator webhook.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"burnvault/internal/config"
	"burnvault/internal/vault"
)

// significant lists the event types worth paging an operator about. Routine
// revenue traffic stays in the journal and history sink.
var significant = map[vault.EventType]struct{}{
	vault.EventBurnExecuted:       {},
	vault.EventMultiplierUpdated:  {},
	vault.EventDistributorUpdated: {},
	vault.EventAuthorityRotated:   {},
}

// Webhook posts significant events as JSON to a configured endpoint. It
// implements vault.EventSink; delivery is best effort and a failed post never
// touches the call that produced the event.
type Webhook struct {
	enabled bool
	url     string
	client  *http.Client
	log     *zap.Logger
}

func NewWebhook(cfg config.AlertsConfig, log *zap.Logger) *Webhook {
	return newWebhook(cfg, log, &http.Client{Timeout: 10 * time.Second})
}

func newWebhook(cfg config.AlertsConfig, log *zap.Logger, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{
		enabled: cfg.Enabled,
		url:     strings.TrimSpace(cfg.WebhookURL),
		client:  client,
		log:     log,
	}
}

type alertPayload struct {
	Text  string      `json:"text"`
	Event vault.Event `json:"event"`
}

// Emit filters the batch down to significant events and posts each one.
func (w *Webhook) Emit(ctx context.Context, events []vault.Event) error {
	if !w.enabled {
		return nil
	}
	if w.url == "" {
		return errors.New("alert webhook url is required")
	}
	for _, ev := range events {
		if _, ok := significant[ev.Type]; !ok {
			continue
		}
		if err := w.post(ctx, alertPayload{Text: describe(ev), Event: ev}); err != nil {
			return fmt.Errorf("alert %s: %w", ev.Type, err)
		}
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, payload alertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook post failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}
	return nil
}

func describe(ev vault.Event) string {
	switch ev.Type {
	case vault.EventBurnExecuted:
		return fmt.Sprintf("Burn executed at tick %d: spent %s, rewarded %s, burned %s", ev.Tick, ev.Spend, ev.Reward, ev.Burned)
	case vault.EventMultiplierUpdated:
		return fmt.Sprintf("Price multiplier set to %d bps", ev.MultiplierBps)
	case vault.EventDistributorUpdated:
		state := "disabled"
		if ev.Enabled {
			state = "enabled"
		}
		addr := ""
		if ev.Address != nil {
			addr = ev.Address.Hex()
		}
		return fmt.Sprintf("Distributor %s %s", addr, state)
	case vault.EventAuthorityRotated:
		addr := ""
		if ev.Authority != nil {
			addr = ev.Authority.Hex()
		}
		return fmt.Sprintf("Venue authority rotated to %s", addr)
	default:
		return string(ev.Type)
	}
}
