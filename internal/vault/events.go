package vault

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventType string

const (
	EventFeeDeposited       EventType = "fee_deposited"
	EventFundsConsumed      EventType = "funds_consumed"
	EventEscrowCredited     EventType = "escrow_credited"
	EventBurnExecuted       EventType = "burn_executed"
	EventAllowanceIncreased EventType = "allowance_increased"
	EventTransfer           EventType = "transfer"
	EventMultiplierUpdated  EventType = "multiplier_updated"
	EventDistributorUpdated EventType = "distributor_updated"
	EventAuthorityRotated   EventType = "authority_rotated"
)

// Event is the committed record of one state change. Value fields are
// decimal strings so sinks never share the engine's arithmetic buffers.
// Events of a reverted call scope are discarded, never flushed.
type Event struct {
	Type   EventType      `json:"type"`
	CallID string         `json:"call_id"`
	Caller common.Address `json:"caller"`
	Tick   Tick           `json:"tick"`
	At     time.Time      `json:"at"`

	Amount           string          `json:"amount,omitempty"`
	From             *common.Address `json:"from,omitempty"`
	To               *common.Address `json:"to,omitempty"`
	Outcome          string          `json:"outcome,omitempty"`
	Spend            string          `json:"spend,omitempty"`
	Reward           string          `json:"reward,omitempty"`
	Burned           string          `json:"burned,omitempty"`
	LastPurchaseTick Tick            `json:"last_purchase_tick,omitempty"`
	Backdated        bool            `json:"backdated,omitempty"`
	MultiplierBps    uint64          `json:"multiplier_bps,omitempty"`
	Authority        *common.Address `json:"authority,omitempty"`
	Address          *common.Address `json:"address,omitempty"`
	Enabled          bool            `json:"enabled,omitempty"`
}

// EventSink receives the events of a committed call scope. Sinks are
// best-effort: a failing sink is logged and counted, never unwinds a call.
type EventSink interface {
	Emit(ctx context.Context, events []Event) error
}

func addrRef(a common.Address) *common.Address {
	cp := a
	return &cp
}
