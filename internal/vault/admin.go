package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SetPriceMultiplier updates the resale multiplier. Admin only; the value
// must stay inside [1100, 10000] basis points.
func (e *Engine) SetPriceMultiplier(ctx context.Context, caller common.Address, bps uint64) error {
	return e.WithCall(ctx, caller, func(ctx context.Context, call *Call) error {
		return e.setPriceMultiplier(ctx, call, bps)
	})
}

func (e *Engine) setPriceMultiplier(ctx context.Context, call *Call, bps uint64) error {
	if !e.isAdmin(call.Caller) {
		return ErrNotAdmin
	}
	if bps < MinPriceMultiplierBps || bps > MaxPriceMultiplierBps {
		return ErrMultiplierRange
	}
	e.multiplierBps = bps
	call.emit(Event{Type: EventMultiplierUpdated, MultiplierBps: bps})
	e.metrics.AdminChanges.Inc()
	e.auditAdmin(ctx, call, fmt.Sprintf("multiplier=%d", bps))
	return nil
}

// SetDistributor adds or removes a local transfer-gate exemption.
func (e *Engine) SetDistributor(ctx context.Context, caller, addr common.Address, enabled bool) error {
	return e.WithCall(ctx, caller, func(ctx context.Context, call *Call) error {
		return e.setDistributor(ctx, call, addr, enabled)
	})
}

func (e *Engine) setDistributor(ctx context.Context, call *Call, addr common.Address, enabled bool) error {
	if !e.isAdmin(call.Caller) {
		return ErrNotAdmin
	}
	e.distributors.set(addr, enabled)
	call.emit(Event{Type: EventDistributorUpdated, Address: addrRef(addr), Enabled: enabled})
	e.metrics.AdminChanges.Inc()
	e.auditAdmin(ctx, call, fmt.Sprintf("distributor=%s enabled=%t", addr.Hex(), enabled))
	return nil
}

// UpdateHookAddress rotates the venue authority: the sole address permitted
// to deposit fees, credit escrow, consume funds, and grant allowance.
func (e *Engine) UpdateHookAddress(ctx context.Context, caller, addr common.Address) error {
	return e.WithCall(ctx, caller, func(ctx context.Context, call *Call) error {
		return e.updateHookAddress(ctx, call, addr)
	})
}

func (e *Engine) updateHookAddress(ctx context.Context, call *Call, addr common.Address) error {
	if !e.isAdmin(call.Caller) {
		return ErrNotAdmin
	}
	e.authority = addr
	call.emit(Event{Type: EventAuthorityRotated, Authority: addrRef(addr)})
	e.metrics.AdminChanges.Inc()
	e.auditAdmin(ctx, call, fmt.Sprintf("authority=%s", addr.Hex()))
	return nil
}

type adminAudit struct {
	CallID string    `json:"call_id"`
	Time   time.Time `json:"time"`
	Tick   Tick      `json:"tick"`
	Caller string    `json:"caller"`
	Change string    `json:"change"`
}

// auditAdmin appends a best-effort audit record for an administrative
// change. Audit failures never unwind the change itself.
func (e *Engine) auditAdmin(ctx context.Context, call *Call, change string) {
	if e.store == nil {
		return
	}
	record := adminAudit{
		CallID: call.ID.String(),
		Time:   time.Now().UTC(),
		Tick:   call.Tick,
		Caller: call.Caller.Hex(),
		Change: change,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	key := fmt.Sprintf("admin:audit:%d:%s", time.Now().UTC().UnixNano(), call.ID)
	_ = e.store.Set(ctx, key, string(payload))
}
