package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"burnvault/internal/state"
)

const snapshotKey = "vault:snapshot"

// Snapshot is the persisted form of the mutable state record. Value fields
// are decimal strings and addresses 0x-hex, so the stored form stays
// readable and diffable.
type Snapshot struct {
	LastPurchaseTick uint64   `json:"last_purchase_tick"`
	CurrentFees      string   `json:"current_fees"`
	Escrowed         string   `json:"escrowed_for_burn"`
	LastBurnTick     uint64   `json:"last_burn_tick"`
	MultiplierBps    uint64   `json:"price_multiplier_bps"`
	VenueAuthority   string   `json:"venue_authority"`
	Distributors     []string `json:"distributors"`
	UpdatedAtMS      int64    `json:"updated_at_ms"`
}

func LoadSnapshot(ctx context.Context, store state.Store) (Snapshot, bool, error) {
	if store == nil {
		return Snapshot{}, false, nil
	}
	raw, ok, err := store.Get(ctx, snapshotKey)
	if err != nil {
		return Snapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Snapshot{}, false, nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func SaveSnapshot(ctx context.Context, store state.Store, snap Snapshot) error {
	if store == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return store.Set(ctx, snapshotKey, string(payload))
}

func (e *Engine) snapshot() Snapshot {
	distributors := make([]string, 0, len(e.distributors))
	for addr := range e.distributors {
		distributors = append(distributors, addr.Hex())
	}
	sort.Strings(distributors)
	return Snapshot{
		LastPurchaseTick: uint64(e.price.LastPurchaseTick),
		CurrentFees:      e.price.CurrentFees.Dec(),
		Escrowed:         e.burn.Escrowed.Dec(),
		LastBurnTick:     uint64(e.burn.LastBurnTick),
		MultiplierBps:    e.multiplierBps,
		VenueAuthority:   e.authority.Hex(),
		Distributors:     distributors,
		UpdatedAtMS:      time.Now().UTC().UnixMilli(),
	}
}

func (e *Engine) applySnapshot(snap Snapshot) error {
	fees, err := ParseAmount(snap.CurrentFees)
	if err != nil {
		return fmt.Errorf("current fees: %w", err)
	}
	escrowed, err := ParseAmount(snap.Escrowed)
	if err != nil {
		return fmt.Errorf("escrowed: %w", err)
	}
	authority, err := ParseAddress(snap.VenueAuthority)
	if err != nil {
		return fmt.Errorf("venue authority: %w", err)
	}
	if snap.MultiplierBps < MinPriceMultiplierBps || snap.MultiplierBps > MaxPriceMultiplierBps {
		return ErrMultiplierRange
	}
	distributors := make(distributorSet, len(snap.Distributors))
	for _, raw := range snap.Distributors {
		addr, err := ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("distributor: %w", err)
		}
		distributors[addr] = struct{}{}
	}

	e.price.LastPurchaseTick = Tick(snap.LastPurchaseTick)
	e.price.CurrentFees.Set(fees)
	e.burn.Escrowed.Set(escrowed)
	e.burn.LastBurnTick = Tick(snap.LastBurnTick)
	e.multiplierBps = snap.MultiplierBps
	e.authority = authority
	e.distributors = distributors
	return nil
}
