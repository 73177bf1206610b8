package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Registry asks the venue's shared distributor service whether an address is
// globally exempt from transfer gating.
type Registry struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewRegistry(baseURL string, timeout time.Duration, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (r *Registry) IsDistributor(ctx context.Context, addr common.Address) (bool, error) {
	url := r.baseURL + "/distributors/" + addr.Hex()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, fmt.Errorf("http %d: %s", resp.StatusCode, string(excerpt))
	}
	var body struct {
		Distributor bool `json:"distributor"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Distributor, nil
}
