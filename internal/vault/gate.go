package vault

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TransferOutcome names the gate branch that passed a transfer. Exactly one
// branch applies to every (from, to, amount) triple.
type TransferOutcome string

const (
	OutcomeMint        TransferOutcome = "mint"
	OutcomeDistributor TransferOutcome = "distributor"
	OutcomeVenue       TransferOutcome = "venue"
)

// IncreaseAllowance tops up the scope's transient transfer allowance. Venue
// authority only. Because the allowance dies with the scope, the top-up must
// happen in the same scope as the transfers it funds.
func (c *Call) IncreaseAllowance(amount *uint256.Int) error {
	e := c.eng
	if c.Caller != e.authority {
		return ErrNotVenueAuthority
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	c.allowance.Add(&c.allowance, amount)
	c.emit(Event{Type: EventAllowanceIncreased, Amount: amount.Dec()})
	e.metrics.AllowanceTopUps.Inc()
	return nil
}

// Transfer runs the gate policy for one transfer, in priority order: mint
// bypass, distributor bypass (local set, then the external registry),
// venue-routed against the scope allowance, otherwise rejected.
func (c *Call) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (TransferOutcome, error) {
	e := c.eng
	if amount == nil {
		amount = new(uint256.Int)
	}
	outcome, err := e.gateTransfer(ctx, c, from, to, amount)
	if err != nil {
		e.metrics.TransfersRejected.Inc()
		return "", err
	}
	e.metrics.TransfersAllowed.Inc()
	c.emit(Event{
		Type:    EventTransfer,
		From:    addrRef(from),
		To:      addrRef(to),
		Amount:  amount.Dec(),
		Outcome: string(outcome),
	})
	return outcome, nil
}

func (e *Engine) gateTransfer(ctx context.Context, call *Call, from, to common.Address, amount *uint256.Int) (TransferOutcome, error) {
	if from == (common.Address{}) {
		return OutcomeMint, nil
	}
	if e.distributors.has(from) || e.distributors.has(to) {
		return OutcomeDistributor, nil
	}
	if e.global != nil {
		exempt, err := e.globalExempt(ctx, from, to)
		if err != nil {
			// Registry trouble is an infrastructure failure, not a policy
			// verdict; the transfer fails rather than falling open.
			return "", fmt.Errorf("global distributor lookup: %w", err)
		}
		if exempt {
			return OutcomeDistributor, nil
		}
	}
	if from == e.shared.VenuePool || to == e.shared.VenuePool {
		if amount.Gt(&call.allowance) {
			return "", ErrInsufficientAllowance
		}
		call.allowance.Sub(&call.allowance, amount)
		return OutcomeVenue, nil
	}
	return "", ErrUnauthorizedTransfer
}

func (e *Engine) globalExempt(ctx context.Context, from, to common.Address) (bool, error) {
	exempt, err := e.global.IsDistributor(ctx, from)
	if err != nil {
		return false, err
	}
	if exempt {
		return true, nil
	}
	return e.global.IsDistributor(ctx, to)
}
