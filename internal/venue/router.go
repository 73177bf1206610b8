package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"burnvault/internal/state"
	"burnvault/internal/vault"
)

// RouterClient talks to the venue's swap router over HTTP. Requests are
// retried with backoff and deduplicated per call scope: the scope's call ID
// becomes the request ID, and completed requests are recorded in the state
// store so a crash between router success and snapshot persist cannot double
// a burn on replay.
type RouterClient struct {
	baseURL string
	http    *http.Client
	store   state.Store
	log     *zap.Logger

	mu   sync.Mutex
	done map[string]struct{}
}

func NewRouterClient(baseURL string, timeout time.Duration, store state.Store, log *zap.Logger) *RouterClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &RouterClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		store:   store,
		log:     log,
		done:    make(map[string]struct{}),
	}
}

type swapRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Amount    string `json:"amount"`
	Sink      string `json:"sink"`
}

type rewardRequest struct {
	RequestID string `json:"request_id,omitempty"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
}

func (c *RouterClient) SwapAndBurn(ctx context.Context, amount *uint256.Int, sink common.Address) error {
	key := c.requestKey(ctx, "venue:swap:")
	return c.send(ctx, key, "/swap-burn", swapRequest{
		RequestID: requestID(ctx),
		Amount:    amount.Dec(),
		Sink:      sink.Hex(),
	})
}

func (c *RouterClient) PayReward(ctx context.Context, to common.Address, amount *uint256.Int) error {
	key := c.requestKey(ctx, "venue:reward:")
	return c.send(ctx, key, "/pay-reward", rewardRequest{
		RequestID: requestID(ctx),
		To:        to.Hex(),
		Amount:    amount.Dec(),
	})
}

func requestID(ctx context.Context) string {
	if id, ok := vault.CallIDFromContext(ctx); ok {
		return id.String()
	}
	return ""
}

// requestKey returns the dedup key for the current call scope, or "" when
// the context carries no call ID and dedup is off.
func (c *RouterClient) requestKey(ctx context.Context, prefix string) string {
	id := requestID(ctx)
	if id == "" {
		return ""
	}
	return prefix + id
}

func (c *RouterClient) send(ctx context.Context, key, path string, body any) error {
	if key != "" {
		replayed, err := c.alreadyDone(ctx, key)
		if err != nil {
			return err
		}
		if replayed {
			c.log.Debug("router request already completed, skipping", zap.String("key", key))
			return nil
		}
	}
	if err := c.retry(ctx, func() error {
		return c.post(ctx, path, body)
	}); err != nil {
		return err
	}
	if key != "" {
		c.markDone(ctx, key)
	}
	return nil
}

func (c *RouterClient) alreadyDone(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	if _, ok := c.done[key]; ok {
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()
	if c.store == nil {
		return false, nil
	}
	_, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if ok {
		c.mu.Lock()
		c.done[key] = struct{}{}
		c.mu.Unlock()
	}
	return ok, nil
}

func (c *RouterClient) markDone(ctx context.Context, key string) {
	if c.store != nil {
		if err := c.store.Set(ctx, key, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
			c.log.Warn("failed to persist router request id", zap.Error(err))
		}
	}
	c.mu.Lock()
	c.done[key] = struct{}{}
	c.mu.Unlock()
}

func (c *RouterClient) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(excerpt))
	}
	return nil
}

func (c *RouterClient) retry(ctx context.Context, fn func() error) error {
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err := fn(); err != nil {
			if attempt == 4 {
				return fmt.Errorf("retry failed: %w", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return nil
}
