package vault

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tick is the discrete time base for every ramp and delay computation.
// The daemon derives it from wall-clock time; tests drive it manually.
type Tick uint64

const (
	MinPriceMultiplierBps = 1100
	MaxPriceMultiplierBps = 10000
)

// Burn reward: 5/1000 of the spend (0.5%) goes to the caller.
const (
	rewardNumerator   = 5
	rewardDenominator = 1000
)

// SharedConfig is the deployment-time configuration block shared by every
// strategy instance: the authorizing factory, the swap router, and the
// liquidity venue pool. On-chain deployments publish it as a fixed 60-byte
// region (factory at 0, swap router at 20, venue pool at 40); Decode and
// Encode keep that wire layout.
type SharedConfig struct {
	Factory    common.Address
	SwapRouter common.Address
	VenuePool  common.Address
}

const sharedConfigSize = 60

func DecodeSharedConfig(data []byte) (SharedConfig, error) {
	if len(data) != sharedConfigSize {
		return SharedConfig{}, fmt.Errorf("shared config block must be %d bytes, got %d", sharedConfigSize, len(data))
	}
	var sc SharedConfig
	copy(sc.Factory[:], data[0:20])
	copy(sc.SwapRouter[:], data[20:40])
	copy(sc.VenuePool[:], data[40:60])
	return sc, nil
}

func (c SharedConfig) Encode() []byte {
	out := make([]byte, sharedConfigSize)
	copy(out[0:20], c.Factory[:])
	copy(out[20:40], c.SwapRouter[:])
	copy(out[40:60], c.VenuePool[:])
	return out
}

// priceState tracks the fee balance and the ceiling's reference tick.
type priceState struct {
	LastPurchaseTick Tick
	CurrentFees      uint256.Int
}

// burnState tracks the escrowed pool and the pacing of burn cycles.
type burnState struct {
	Escrowed     uint256.Int
	Increment    uint256.Int
	DelayTicks   uint64
	LastBurnTick Tick
}

// TickSource resolves the current tick. A source must never move backwards.
type TickSource interface {
	Now(ctx context.Context) (Tick, error)
}

// Router performs the vault's external value movements: the destructive
// swap-and-burn and the keeper reward payout. Implementations must not call
// back into the engine; a callback is rejected as reentrant.
type Router interface {
	SwapAndBurn(ctx context.Context, amount *uint256.Int, sink common.Address) error
	PayReward(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// GlobalRegistry is the optional external distributor registry consulted on
// transfers beyond the local exemption set.
type GlobalRegistry interface {
	IsDistributor(ctx context.Context, addr common.Address) (bool, error)
}

// ParseAmount parses a decimal value amount into a 256-bit integer.
func ParseAmount(s string) (*uint256.Int, error) {
	v := new(uint256.Int)
	if err := v.SetFromDecimal(strings.TrimSpace(s)); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
