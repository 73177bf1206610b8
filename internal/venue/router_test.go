package venue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]string)}
}

func (m *mapStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *mapStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapStore) Close() error { return nil }

type capturedRequest struct {
	path string
	body map[string]any
}

func TestRouterPostsRequests(t *testing.T) {
	var mu sync.Mutex
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("expected json content type, got %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		captured = append(captured, capturedRequest{path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRouterClient(server.URL, 2*time.Second, nil, zap.NewNop())
	ctx := context.Background()
	sink := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	keeper := common.HexToAddress("0x0000000000000000000000000000000000000033")

	if err := client.SwapAndBurn(ctx, uint256.NewInt(300), sink); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if err := client.PayReward(ctx, keeper, uint256.NewInt(1)); err != nil {
		t.Fatalf("reward: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(captured) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(captured))
	}
	swap := captured[0]
	if swap.path != "/swap-burn" {
		t.Fatalf("expected /swap-burn, got %s", swap.path)
	}
	if swap.body["amount"] != "300" || swap.body["sink"] != sink.Hex() {
		t.Fatalf("unexpected swap body: %v", swap.body)
	}
	if _, ok := swap.body["request_id"]; ok {
		t.Fatal("expected no request id outside a call scope")
	}
	reward := captured[1]
	if reward.path != "/pay-reward" {
		t.Fatalf("expected /pay-reward, got %s", reward.path)
	}
	if reward.body["amount"] != "1" || reward.body["to"] != keeper.Hex() {
		t.Fatalf("unexpected reward body: %v", reward.body)
	}
}

func TestRouterRetriesFailedRequests(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		first := attempts == 1
		mu.Unlock()
		if first {
			http.Error(w, "venue busy", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRouterClient(server.URL, 2*time.Second, nil, zap.NewNop())
	sink := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	if err := client.SwapAndBurn(context.Background(), uint256.NewInt(10), sink); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRouterSkipsCompletedRequests(t *testing.T) {
	var mu sync.Mutex
	posts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newMapStore()
	client := NewRouterClient(server.URL, 2*time.Second, store, zap.NewNop())
	ctx := context.Background()
	body := swapRequest{RequestID: "req-1", Amount: "300", Sink: "0x0"}

	if err := client.send(ctx, "venue:swap:req-1", "/swap-burn", body); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := client.send(ctx, "venue:swap:req-1", "/swap-burn", body); err != nil {
		t.Fatalf("replayed send: %v", err)
	}

	mu.Lock()
	if posts != 1 {
		mu.Unlock()
		t.Fatalf("expected 1 post, got %d", posts)
	}
	mu.Unlock()

	// A restart loses the in-memory set but the store still knows the request.
	client2 := NewRouterClient(server.URL, 2*time.Second, store, zap.NewNop())
	if err := client2.send(ctx, "venue:swap:req-1", "/swap-burn", body); err != nil {
		t.Fatalf("send after restart: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if posts != 1 {
		t.Fatalf("expected replay after restart to skip, got %d posts", posts)
	}
}

func TestRouterWithoutCallIDSkipsDedup(t *testing.T) {
	var mu sync.Mutex
	posts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRouterClient(server.URL, 2*time.Second, newMapStore(), zap.NewNop())
	ctx := context.Background()
	if key := client.requestKey(ctx, "venue:swap:"); key != "" {
		t.Fatalf("expected empty key outside a call scope, got %q", key)
	}
	sink := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	for i := 0; i < 2; i++ {
		if err := client.SwapAndBurn(ctx, uint256.NewInt(10), sink); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if posts != 2 {
		t.Fatalf("expected both posts to go out, got %d", posts)
	}
}
