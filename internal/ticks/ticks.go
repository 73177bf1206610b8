// Package ticks provides the tick sources the vault engine counts time in:
// a wall-clock source for the daemon and a manual source for tests.
package ticks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"burnvault/internal/state"
	"burnvault/internal/vault"
)

const genesisKey = "ticks:genesis"

// Clock derives ticks from wall-clock time: tick = floor((now - genesis) / interval).
type Clock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

func NewClock(genesis time.Time, interval time.Duration) (*Clock, error) {
	if genesis.IsZero() {
		return nil, fmt.Errorf("tick clock: genesis is zero")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("tick clock: interval %s is not positive", interval)
	}
	return &Clock{genesis: genesis.UTC(), interval: interval, now: time.Now}, nil
}

// Now reports the current tick. A wall clock behind genesis is an error
// rather than tick zero: serving ticks from a misconfigured clock would let
// the ceiling ramp run backwards after the clock is fixed.
func (c *Clock) Now(ctx context.Context) (vault.Tick, error) {
	t := c.now().UTC()
	if t.Before(c.genesis) {
		return 0, fmt.Errorf("tick clock: current time %s precedes genesis %s",
			t.Format(time.RFC3339), c.genesis.Format(time.RFC3339))
	}
	return vault.Tick(t.Sub(c.genesis) / c.interval), nil
}

// Manual is a hand-driven tick source.
type Manual struct {
	mu   sync.Mutex
	tick vault.Tick
}

func NewManual(start vault.Tick) *Manual {
	return &Manual{tick: start}
}

func (m *Manual) Now(ctx context.Context) (vault.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick, nil
}

func (m *Manual) Set(t vault.Tick) {
	m.mu.Lock()
	m.tick = t
	m.mu.Unlock()
}

func (m *Manual) Advance(n uint64) {
	m.mu.Lock()
	m.tick += vault.Tick(n)
	m.mu.Unlock()
}

// ResolveGenesis returns the tick genesis to run with. A configured RFC3339
// timestamp wins; otherwise the genesis persisted in the store is reused, and
// when neither exists a fresh one is minted and persisted so ticks stay
// monotonic across restarts.
func ResolveGenesis(ctx context.Context, store state.Store, configured string, log *zap.Logger) (time.Time, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if configured != "" {
		genesis, err := time.Parse(time.RFC3339, configured)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse configured genesis: %w", err)
		}
		return genesis.UTC(), nil
	}
	if store != nil {
		raw, ok, err := store.Get(ctx, genesisKey)
		if err != nil {
			return time.Time{}, fmt.Errorf("load persisted genesis: %w", err)
		}
		if ok {
			genesis, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return time.Time{}, fmt.Errorf("parse persisted genesis %q: %w", raw, err)
			}
			return genesis.UTC(), nil
		}
	}

	genesis := time.Now().UTC()
	if store == nil {
		log.Warn("no state store, minted tick genesis will not survive restarts",
			zap.Time("genesis", genesis))
		return genesis, nil
	}
	if err := store.Set(ctx, genesisKey, genesis.Format(time.RFC3339Nano)); err != nil {
		return time.Time{}, fmt.Errorf("persist minted genesis: %w", err)
	}
	log.Info("tick genesis minted", zap.Time("genesis", genesis))
	return genesis, nil
}
