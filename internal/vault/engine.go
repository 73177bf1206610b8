package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"burnvault/internal/metrics"
	"burnvault/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Options assembles an Engine. Router and Ticks are required; Store, Global,
// Metrics and Sinks are optional.
type Options struct {
	Log     *zap.Logger
	Store   state.Store
	Router  Router
	Ticks   TickSource
	Global  GlobalRegistry
	Metrics *metrics.Metrics
	Sinks   []EventSink

	Admin              common.Address
	Shared             SharedConfig
	VenueAuthority     common.Address
	PriceMultiplierBps uint64
	BuyIncrement       *uint256.Int

	BurnIncrement  *uint256.Int
	BurnDelayTicks uint64
	BurnSink       common.Address
}

// Engine owns the vault's state record. Top-level calls are serialized: one
// call scope runs at a time, to completion, and either commits every change
// it made or reverts all of them. All waiting is expressed as tick
// preconditions, never as suspension inside a scope.
type Engine struct {
	log     *zap.Logger
	store   state.Store
	router  Router
	ticks   TickSource
	global  GlobalRegistry
	metrics *metrics.Metrics
	sinks   []EventSink

	admin    common.Address
	shared   SharedConfig
	burnSink common.Address

	sem chan struct{}

	// Mutable record, guarded by sem.
	authority     common.Address
	multiplierBps uint64
	buyIncrement  uint256.Int
	price         priceState
	burn          burnState
	distributors  distributorSet
}

func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Router == nil {
		return nil, errors.New("vault: router is required")
	}
	if opts.Ticks == nil {
		return nil, errors.New("vault: tick source is required")
	}
	if opts.Admin == (common.Address{}) {
		return nil, errors.New("vault: admin address is required")
	}
	if opts.VenueAuthority == (common.Address{}) {
		return nil, errors.New("vault: venue authority is required")
	}
	if opts.Shared.VenuePool == (common.Address{}) {
		return nil, errors.New("vault: venue pool address is required")
	}
	if opts.BuyIncrement == nil || opts.BuyIncrement.IsZero() {
		return nil, fmt.Errorf("buy increment: %w", ErrZeroIncrement)
	}
	if opts.BurnIncrement == nil || opts.BurnIncrement.IsZero() {
		return nil, fmt.Errorf("burn increment: %w", ErrZeroIncrement)
	}
	if opts.PriceMultiplierBps < MinPriceMultiplierBps || opts.PriceMultiplierBps > MaxPriceMultiplierBps {
		return nil, ErrMultiplierRange
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}

	e := &Engine{
		log:           log,
		store:         opts.Store,
		router:        opts.Router,
		ticks:         opts.Ticks,
		global:        opts.Global,
		metrics:       m,
		sinks:         opts.Sinks,
		admin:         opts.Admin,
		shared:        opts.Shared,
		burnSink:      opts.BurnSink,
		sem:           make(chan struct{}, 1),
		authority:     opts.VenueAuthority,
		multiplierBps: opts.PriceMultiplierBps,
		distributors:  make(distributorSet),
	}
	e.buyIncrement.Set(opts.BuyIncrement)
	e.burn.Increment.Set(opts.BurnIncrement)
	e.burn.DelayTicks = opts.BurnDelayTicks

	if opts.Store != nil {
		snap, ok, err := LoadSnapshot(ctx, opts.Store)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if ok {
			if err := e.applySnapshot(snap); err != nil {
				return nil, fmt.Errorf("apply snapshot: %w", err)
			}
			log.Info("vault state restored",
				zap.Uint64("last_purchase_tick", uint64(e.price.LastPurchaseTick)),
				zap.Uint64("last_burn_tick", uint64(e.burn.LastBurnTick)),
				zap.String("current_fees", e.price.CurrentFees.Dec()),
				zap.String("escrowed", e.burn.Escrowed.Dec()),
			)
		}
	}
	return e, nil
}

// Call is one top-level scope: a unique ID, the caller, the tick resolved at
// entry, the transient transfer allowance, and the buffered events. The
// allowance starts at zero on every scope and dies with it; it cannot leak
// into a later call.
type Call struct {
	ID     uuid.UUID
	Caller common.Address
	Tick   Tick

	eng       *Engine
	allowance uint256.Int
	events    []Event
}

type callMarker struct{}

// CallIDFromContext reports the call scope a context belongs to. Router
// implementations use it as their idempotency key; the engine uses it to
// reject reentrant entry.
func CallIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(callMarker{}).(uuid.UUID)
	return id, ok
}

// WithCall runs fn inside a fresh call scope. On error every state change
// made inside the scope is rolled back and buffered events are discarded;
// on success the snapshot is persisted and events flow to the sinks.
func (e *Engine) WithCall(ctx context.Context, caller common.Address, fn func(ctx context.Context, call *Call) error) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()

	tick, err := e.ticks.Now(ctx)
	if err != nil {
		return fmt.Errorf("resolve tick: %w", err)
	}
	call := &Call{ID: uuid.New(), Caller: caller, Tick: tick, eng: e}
	saved := e.checkpoint()
	committed := false
	defer func() {
		// Covers error returns and panics unwinding through the scope:
		// nothing partial survives.
		if !committed {
			e.restore(saved)
		}
	}()
	ctx = context.WithValue(ctx, callMarker{}, call.ID)
	if err := fn(ctx, call); err != nil {
		return err
	}
	committed = true
	e.commit(ctx, call)
	return nil
}

func (e *Engine) acquire(ctx context.Context) error {
	if _, ok := CallIDFromContext(ctx); ok {
		return ErrReentrantCall
	}
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.sem
}

type checkpoint struct {
	authority     common.Address
	multiplierBps uint64
	price         priceState
	burn          burnState
	distributors  distributorSet
}

func (e *Engine) checkpoint() checkpoint {
	return checkpoint{
		authority:     e.authority,
		multiplierBps: e.multiplierBps,
		price:         e.price,
		burn:          e.burn,
		distributors:  e.distributors.clone(),
	}
}

func (e *Engine) restore(cp checkpoint) {
	e.authority = cp.authority
	e.multiplierBps = cp.multiplierBps
	e.price = cp.price
	e.burn = cp.burn
	e.distributors = cp.distributors
}

func (e *Engine) commit(ctx context.Context, call *Call) {
	if len(call.events) == 0 {
		return
	}
	if e.store != nil {
		if err := SaveSnapshot(ctx, e.store, e.snapshot()); err != nil {
			e.log.Warn("snapshot save failed", zap.Error(err))
		}
	}
	for _, sink := range e.sinks {
		if err := sink.Emit(ctx, call.events); err != nil {
			e.metrics.SinkFailures.Inc()
			e.log.Warn("event sink flush failed", zap.Error(err))
		}
	}
}

func (c *Call) emit(ev Event) {
	ev.CallID = c.ID.String()
	ev.Caller = c.Caller
	ev.Tick = c.Tick
	ev.At = time.Now().UTC()
	c.events = append(c.events, ev)
}

// isAdmin grants administrative rights to the configured admin and, when
// set, to the authorizing factory from the shared config block.
func (e *Engine) isAdmin(caller common.Address) bool {
	if caller == e.admin {
		return true
	}
	return e.shared.Factory != (common.Address{}) && caller == e.shared.Factory
}

// MaxPriceForBuy returns the current spend ceiling.
func (e *Engine) MaxPriceForBuy(ctx context.Context) (*uint256.Int, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()
	tick, err := e.ticks.Now(ctx)
	if err != nil {
		return nil, err
	}
	return ceilingAt(e.price.LastPurchaseTick, tick, &e.buyIncrement), nil
}

// AvailableFunds returns min(ceiling, deposited fees).
func (e *Engine) AvailableFunds(ctx context.Context) (*uint256.Int, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()
	tick, err := e.ticks.Now(ctx)
	if err != nil {
		return nil, err
	}
	ceiling := ceilingAt(e.price.LastPurchaseTick, tick, &e.buyIncrement)
	return spendable(ceiling, &e.price.CurrentFees), nil
}

// Status is the read-only consolidated view served by the control plane.
type Status struct {
	Tick             Tick   `json:"tick"`
	Ceiling          string `json:"ceiling"`
	AvailableFunds   string `json:"available_funds"`
	CurrentFees      string `json:"current_fees"`
	LastPurchaseTick Tick   `json:"last_purchase_tick"`
	BuyIncrement     string `json:"buy_increment"`
	Escrowed         string `json:"escrowed_for_burn"`
	BurnIncrement    string `json:"burn_increment"`
	BurnDelayTicks   uint64 `json:"burn_delay_ticks"`
	LastBurnTick     Tick   `json:"last_burn_tick"`
	MultiplierBps    uint64 `json:"price_multiplier_bps"`
	VenueAuthority   string `json:"venue_authority"`
	Admin            string `json:"admin"`
	Factory          string `json:"factory"`
	SwapRouter       string `json:"swap_router"`
	VenuePool        string `json:"venue_pool"`
	BurnSink         string `json:"burn_sink"`
	Distributors     int    `json:"distributors"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	if err := e.acquire(ctx); err != nil {
		return Status{}, err
	}
	defer e.release()
	tick, err := e.ticks.Now(ctx)
	if err != nil {
		return Status{}, err
	}
	ceiling := ceilingAt(e.price.LastPurchaseTick, tick, &e.buyIncrement)
	return Status{
		Tick:             tick,
		Ceiling:          ceiling.Dec(),
		AvailableFunds:   spendable(ceiling, &e.price.CurrentFees).Dec(),
		CurrentFees:      e.price.CurrentFees.Dec(),
		LastPurchaseTick: e.price.LastPurchaseTick,
		BuyIncrement:     e.buyIncrement.Dec(),
		Escrowed:         e.burn.Escrowed.Dec(),
		BurnIncrement:    e.burn.Increment.Dec(),
		BurnDelayTicks:   e.burn.DelayTicks,
		LastBurnTick:     e.burn.LastBurnTick,
		MultiplierBps:    e.multiplierBps,
		VenueAuthority:   e.authority.Hex(),
		Admin:            e.admin.Hex(),
		Factory:          e.shared.Factory.Hex(),
		SwapRouter:       e.shared.SwapRouter.Hex(),
		VenuePool:        e.shared.VenuePool.Hex(),
		BurnSink:         e.burnSink.Hex(),
		Distributors:     len(e.distributors),
	}, nil
}
