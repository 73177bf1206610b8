// Package venue integrates the vault with its trading venue: the swap
// router that burns tokens (HTTP client plus an in-process simulator), the
// global distributor registry, and the websocket revenue feed.
package venue

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// SimRouter is an in-process swap router for development and tests. It keeps
// running totals and can be armed to fail, which lets revert paths be
// exercised without a live venue.
type SimRouter struct {
	log *zap.Logger

	mu          sync.Mutex
	failSwaps   int
	failRewards int
	burned      uint256.Int
	rewarded    uint256.Int
	swaps       int
	rewards     int
}

func NewSimRouter(log *zap.Logger) *SimRouter {
	if log == nil {
		log = zap.NewNop()
	}
	return &SimRouter{log: log}
}

func (r *SimRouter) SwapAndBurn(ctx context.Context, amount *uint256.Int, sink common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSwaps > 0 {
		r.failSwaps--
		return errors.New("sim router: swap armed to fail")
	}
	r.burned.Add(&r.burned, amount)
	r.swaps++
	r.log.Debug("sim swap and burn",
		zap.String("amount", amount.Dec()),
		zap.String("sink", sink.Hex()),
	)
	return nil
}

func (r *SimRouter) PayReward(ctx context.Context, to common.Address, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRewards > 0 {
		r.failRewards--
		return errors.New("sim router: reward armed to fail")
	}
	r.rewarded.Add(&r.rewarded, amount)
	r.rewards++
	r.log.Debug("sim reward paid",
		zap.String("to", to.Hex()),
		zap.String("amount", amount.Dec()),
	)
	return nil
}

// FailNextSwaps arms the next n swap calls to fail.
func (r *SimRouter) FailNextSwaps(n int) {
	r.mu.Lock()
	r.failSwaps = n
	r.mu.Unlock()
}

// FailNextRewards arms the next n reward calls to fail.
func (r *SimRouter) FailNextRewards(n int) {
	r.mu.Lock()
	r.failRewards = n
	r.mu.Unlock()
}

// Totals reports cumulative burned and rewarded amounts with call counts.
func (r *SimRouter) Totals() (burned, rewarded *uint256.Int, swaps, rewards int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(uint256.Int).Set(&r.burned), new(uint256.Int).Set(&r.rewarded), r.swaps, r.rewards
}
