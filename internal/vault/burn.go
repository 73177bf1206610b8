package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// BurnReceipt reports one completed burn cycle.
type BurnReceipt struct {
	Spend  *uint256.Int
	Reward *uint256.Int
	Burned *uint256.Int
	Tick   Tick
}

// CreditEscrow funds the burn pool. It never touches the pacing clock, so a
// credit cannot reset the delay between burns.
func (e *Engine) CreditEscrow(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return e.WithCall(ctx, caller, func(ctx context.Context, call *Call) error {
		return e.creditEscrow(call, amount)
	})
}

func (e *Engine) creditEscrow(call *Call, amount *uint256.Int) error {
	if call.Caller != e.authority {
		return ErrNotVenueAuthority
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	e.burn.Escrowed.Add(&e.burn.Escrowed, amount)
	call.emit(Event{Type: EventEscrowCredited, Amount: amount.Dec()})
	e.metrics.EscrowCredits.Inc()
	return nil
}

// ExecuteBurn runs one burn cycle: spend min(increment, escrow), pay the
// caller 0.5% of the spend, swap the remainder and send it to the sink.
// Callable by anyone once the delay has elapsed. A router failure reverts
// the cycle atomically; there is no partial burn.
func (e *Engine) ExecuteBurn(ctx context.Context, caller common.Address) (BurnReceipt, error) {
	var receipt BurnReceipt
	err := e.WithCall(ctx, caller, func(ctx context.Context, call *Call) error {
		r, err := e.executeBurn(ctx, call)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	return receipt, err
}

func (e *Engine) executeBurn(ctx context.Context, call *Call) (BurnReceipt, error) {
	if e.burn.Escrowed.IsZero() {
		e.metrics.BurnsRejected.Inc()
		return BurnReceipt{}, ErrEmptyEscrow
	}
	if call.Tick < e.burn.LastBurnTick+Tick(e.burn.DelayTicks) {
		e.metrics.BurnsRejected.Inc()
		return BurnReceipt{}, ErrDelayNotElapsed
	}

	spend := new(uint256.Int).Set(&e.burn.Increment)
	if e.burn.Escrowed.Lt(spend) {
		spend.Set(&e.burn.Escrowed)
	}
	reward := new(uint256.Int).Mul(spend, uint256.NewInt(rewardNumerator))
	reward.Div(reward, uint256.NewInt(rewardDenominator))
	burnAmount := new(uint256.Int).Sub(spend, reward)

	// Escrow and pacing commit before the router runs; a reentrant trigger
	// cannot observe the pre-burn state.
	e.burn.Escrowed.Sub(&e.burn.Escrowed, spend)
	e.burn.LastBurnTick = call.Tick

	if err := e.router.SwapAndBurn(ctx, burnAmount, e.burnSink); err != nil {
		return BurnReceipt{}, fmt.Errorf("swap and burn: %w", err)
	}
	if !reward.IsZero() {
		if err := e.router.PayReward(ctx, call.Caller, reward); err != nil {
			return BurnReceipt{}, fmt.Errorf("pay reward: %w", err)
		}
	}

	call.emit(Event{
		Type:   EventBurnExecuted,
		Spend:  spend.Dec(),
		Reward: reward.Dec(),
		Burned: burnAmount.Dec(),
	})
	e.metrics.BurnsExecuted.Inc()
	e.log.Info("burn executed",
		zap.String("spend", spend.Dec()),
		zap.String("reward", reward.Dec()),
		zap.String("burned", burnAmount.Dec()),
		zap.Uint64("tick", uint64(call.Tick)),
	)
	return BurnReceipt{Spend: spend, Reward: reward, Burned: burnAmount, Tick: call.Tick}, nil
}
