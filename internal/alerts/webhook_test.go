package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"burnvault/internal/config"
	"burnvault/internal/vault"
)

func TestWebhookDisabled(t *testing.T) {
	cfg := config.AlertsConfig{Enabled: false}
	hook := newWebhook(cfg, zap.NewNop(), nil)
	events := []vault.Event{{Type: vault.EventBurnExecuted}}
	if err := hook.Emit(context.Background(), events); err != nil {
		t.Fatalf("expected nil error when disabled, got %v", err)
	}
}

func TestWebhookMissingURL(t *testing.T) {
	cfg := config.AlertsConfig{Enabled: true}
	hook := newWebhook(cfg, zap.NewNop(), nil)
	events := []vault.Event{{Type: vault.EventBurnExecuted}}
	if err := hook.Emit(context.Background(), events); err == nil {
		t.Fatalf("expected error for missing webhook url")
	}
}

func TestWebhookPostsSignificantEvents(t *testing.T) {
	var posts []alertPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload alertPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		posts = append(posts, payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.AlertsConfig{Enabled: true, WebhookURL: server.URL}
	hook := newWebhook(cfg, zap.NewNop(), server.Client())

	events := []vault.Event{
		{Type: vault.EventFeeDeposited, Amount: "100"},
		{Type: vault.EventBurnExecuted, Tick: 40, Spend: "300", Reward: "1", Burned: "299"},
		{Type: vault.EventTransfer, Amount: "5"},
		{Type: vault.EventMultiplierUpdated, MultiplierBps: 2500},
	}
	if err := hook.Emit(context.Background(), events); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].Event.Type != vault.EventBurnExecuted {
		t.Fatalf("expected burn alert first, got %s", posts[0].Event.Type)
	}
	if !strings.Contains(posts[0].Text, "spent 300") || !strings.Contains(posts[0].Text, "burned 299") {
		t.Fatalf("unexpected burn alert text: %q", posts[0].Text)
	}
	if posts[1].Event.MultiplierBps != 2500 {
		t.Fatalf("expected multiplier alert, got %+v", posts[1].Event)
	}
	if !strings.Contains(posts[1].Text, "2500 bps") {
		t.Fatalf("unexpected multiplier alert text: %q", posts[1].Text)
	}
}

func TestWebhookReportsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try later", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := config.AlertsConfig{Enabled: true, WebhookURL: server.URL}
	hook := newWebhook(cfg, zap.NewNop(), server.Client())
	events := []vault.Event{{Type: vault.EventAuthorityRotated}}
	err := hook.Emit(context.Background(), events)
	if err == nil {
		t.Fatalf("expected error on 502")
	}
	if !strings.Contains(err.Error(), "http 502") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
