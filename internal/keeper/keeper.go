// Package keeper fires scheduled burn attempts so the vault keeps pace even
// when no external caller claims the reward.
package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"burnvault/internal/config"
	"burnvault/internal/history"
	"burnvault/internal/vault"
)

// BurnVault is the slice of the engine the keeper drives.
type BurnVault interface {
	ExecuteBurn(ctx context.Context, caller common.Address) (vault.BurnReceipt, error)
	Status(ctx context.Context) (vault.Status, error)
}

// RevenueRecorder receives periodic vault status samples.
type RevenueRecorder interface {
	EnqueueRevenue(sample history.RevenueSample)
}

// Keeper runs ExecuteBurn on a cron schedule. Burns are open to any caller,
// so the keeper is just a liveness floor: if nobody else burns, it does, and
// collects the caller reward for the operator.
type Keeper struct {
	cron    *cron.Cron
	vault   BurnVault
	history RevenueRecorder
	caller  common.Address
	sample  bool
	log     *zap.Logger
}

// New returns a nil Keeper when the section is disabled.
func New(cfg config.KeeperConfig, v BurnVault, hist RevenueRecorder, log *zap.Logger) (*Keeper, error) {
	if !cfg.EnabledValue() {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	caller, err := vault.ParseAddress(cfg.Caller)
	if err != nil {
		return nil, fmt.Errorf("keeper caller: %w", err)
	}
	k := &Keeper{
		cron:    cron.New(cron.WithSeconds()),
		vault:   v,
		history: hist,
		caller:  caller,
		sample:  cfg.SampleStatus,
		log:     log,
	}
	if _, err := k.cron.AddFunc(cfg.Schedule, func() { k.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("register burn schedule: %w", err)
	}
	return k, nil
}

func (k *Keeper) Start() {
	if k == nil {
		return
	}
	k.cron.Start()
	k.log.Info("burn keeper started", zap.String("caller", k.caller.Hex()))
}

// Stop waits for an in-flight attempt to finish.
func (k *Keeper) Stop() {
	if k == nil {
		return
	}
	<-k.cron.Stop().Done()
	k.log.Info("burn keeper stopped")
}

// RunOnce makes one burn attempt and, when configured, samples the vault
// status into the history writer.
func (k *Keeper) RunOnce(ctx context.Context) {
	receipt, err := k.vault.ExecuteBurn(ctx, k.caller)
	switch {
	case err == nil:
		k.log.Info("keeper burn executed",
			zap.String("spend", receipt.Spend.Dec()),
			zap.String("reward", receipt.Reward.Dec()),
			zap.String("burned", receipt.Burned.Dec()),
			zap.Uint64("tick", uint64(receipt.Tick)),
		)
	case vault.Classify(err) == vault.KindTiming, vault.Classify(err) == vault.KindState:
		// Empty escrow and an unelapsed delay are the normal idle states.
		k.log.Debug("keeper burn skipped", zap.Error(err))
	default:
		k.log.Warn("keeper burn failed", zap.Error(err))
	}
	if k.sample {
		k.sampleStatus(ctx)
	}
}

func (k *Keeper) sampleStatus(ctx context.Context) {
	if k.history == nil {
		return
	}
	status, err := k.vault.Status(ctx)
	if err != nil {
		k.log.Warn("keeper status sample failed", zap.Error(err))
		return
	}
	k.history.EnqueueRevenue(history.RevenueSample{
		Time:        time.Now().UTC(),
		Tick:        uint64(status.Tick),
		Ceiling:     status.Ceiling,
		Available:   status.AvailableFunds,
		CurrentFees: status.CurrentFees,
		Escrowed:    status.Escrowed,
	})
}
