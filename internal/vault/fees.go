package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// DepositFee credits venue revenue to the fee balance. A deposit larger than
// one increment re-anchors the reference tick so the ceiling, read right
// after, caps spending at exactly the post-deposit balance: a big deposit
// behaves as if it had trickled in over many ticks, and further purchasing
// power still accrues at the normal ramp rate. Near genesis the anchor
// clamps at tick zero and the ramp stays ahead of the balance.
func (e *Engine) DepositFee(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return e.WithCall(ctx, caller, func(ctx context.Context, call *Call) error {
		return e.depositFee(call, amount)
	})
}

func (e *Engine) depositFee(call *Call, amount *uint256.Int) error {
	if call.Caller != e.authority {
		return ErrNotVenueAuthority
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	e.price.CurrentFees.Add(&e.price.CurrentFees, amount)

	backdated := false
	if amount.Gt(&e.buyIncrement) {
		anchored := backdatedTick(call.Tick, &e.price.CurrentFees, &e.buyIncrement)
		if anchored != e.price.LastPurchaseTick {
			e.price.LastPurchaseTick = anchored
			backdated = true
		}
	}

	call.emit(Event{
		Type:             EventFeeDeposited,
		Amount:           amount.Dec(),
		Backdated:        backdated,
		LastPurchaseTick: e.price.LastPurchaseTick,
	})
	e.metrics.FeeDeposits.Inc()
	if backdated {
		e.metrics.FeeBackdates.Inc()
	}
	e.log.Debug("fee deposited",
		zap.String("amount", amount.Dec()),
		zap.Bool("backdated", backdated),
		zap.Uint64("last_purchase_tick", uint64(e.price.LastPurchaseTick)),
	)
	return nil
}

// ConsumeFunds is the purchase path's integration point: it spends from the
// fee balance within the ceiling and moves the reference tick up to now.
func (e *Engine) ConsumeFunds(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	return e.WithCall(ctx, caller, func(ctx context.Context, call *Call) error {
		return e.consumeFunds(call, amount)
	})
}

func (e *Engine) consumeFunds(call *Call, amount *uint256.Int) error {
	if call.Caller != e.authority {
		return ErrNotVenueAuthority
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	ceiling := ceilingAt(e.price.LastPurchaseTick, call.Tick, &e.buyIncrement)
	if amount.Gt(spendable(ceiling, &e.price.CurrentFees)) {
		return ErrInsufficientFees
	}

	e.price.CurrentFees.Sub(&e.price.CurrentFees, amount)
	e.price.LastPurchaseTick = call.Tick

	call.emit(Event{
		Type:             EventFundsConsumed,
		Amount:           amount.Dec(),
		LastPurchaseTick: e.price.LastPurchaseTick,
	})
	e.metrics.FundsConsumed.Inc()
	return nil
}
