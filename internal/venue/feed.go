package venue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"burnvault/internal/metrics"
	"burnvault/internal/state"
	"burnvault/internal/vault"
)

const (
	feedSeqKey     = "feed:last_seq"
	revenueChannel = "revenue"
)

var subscribeRevenue = map[string]any{"op": "subscribe", "channel": revenueChannel}

// RevenueVault is the slice of the engine the feed drives.
type RevenueVault interface {
	DepositFee(ctx context.Context, caller common.Address, amount *uint256.Int) error
	CreditEscrow(ctx context.Context, caller common.Address, amount *uint256.Int) error
}

// Feed applies the venue's revenue stream to the vault as the venue
// authority. Messages carry a monotonic sequence number; the last applied
// sequence is persisted so replays after a reconnect or restart are skipped
// instead of double-counted.
type Feed struct {
	client    *WSClient
	vault     RevenueVault
	authority common.Address
	store     state.Store
	metrics   *metrics.Metrics
	log       *zap.Logger

	mu      sync.Mutex
	lastSeq uint64
}

func NewFeed(client *WSClient, v RevenueVault, authority common.Address, store state.Store, m *metrics.Metrics, log *zap.Logger) *Feed {
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &Feed{
		client:    client,
		vault:     v,
		authority: authority,
		store:     store,
		metrics:   m,
		log:       log,
	}
	client.OnReconnect(func() {
		m.FeedReconnects.Inc()
		log.Info("venue feed reconnected")
	})
	return f
}

type revenueMessage struct {
	Channel string `json:"channel"`
	Seq     uint64 `json:"seq"`
	Kind    string `json:"kind"`
	Amount  string `json:"amount"`
}

// Run blocks until the context ends.
func (f *Feed) Run(ctx context.Context) error {
	if err := f.loadSeq(ctx); err != nil {
		return err
	}
	if err := f.client.Connect(ctx); err != nil {
		return err
	}
	if err := f.client.Subscribe(ctx, subscribeRevenue); err != nil {
		return err
	}
	return f.client.Run(ctx, func(raw json.RawMessage) {
		f.handle(ctx, raw)
	})
}

func (f *Feed) loadSeq(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	raw, ok, err := f.store.Get(ctx, feedSeqKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		f.log.Warn("feed cursor malformed, starting over", zap.String("raw", raw))
		return nil
	}
	f.mu.Lock()
	f.lastSeq = seq
	f.mu.Unlock()
	return nil
}

func (f *Feed) handle(ctx context.Context, raw json.RawMessage) {
	var msg revenueMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.log.Warn("feed message malformed", zap.Error(err))
		return
	}
	if msg.Channel != revenueChannel {
		return
	}
	f.mu.Lock()
	seen := msg.Seq <= f.lastSeq
	f.mu.Unlock()
	if seen {
		f.log.Debug("feed message replayed, skipping", zap.Uint64("seq", msg.Seq))
		return
	}

	amount, err := vault.ParseAmount(msg.Amount)
	if err != nil {
		f.log.Warn("feed amount malformed",
			zap.Uint64("seq", msg.Seq),
			zap.String("amount", msg.Amount),
			zap.Error(err),
		)
		return
	}
	var applyErr error
	switch msg.Kind {
	case "fees":
		applyErr = f.vault.DepositFee(ctx, f.authority, amount)
	case "escrow":
		applyErr = f.vault.CreditEscrow(ctx, f.authority, amount)
	default:
		f.log.Warn("feed kind unknown", zap.String("kind", msg.Kind), zap.Uint64("seq", msg.Seq))
		return
	}
	if applyErr != nil {
		// The cursor stays put so the venue's replay retries this message.
		f.log.Warn("feed apply failed",
			zap.Uint64("seq", msg.Seq),
			zap.String("kind", msg.Kind),
			zap.Error(applyErr),
		)
		return
	}
	f.advance(ctx, msg.Seq)
}

func (f *Feed) advance(ctx context.Context, seq uint64) {
	f.mu.Lock()
	f.lastSeq = seq
	f.mu.Unlock()
	if f.store == nil {
		return
	}
	if err := f.store.Set(ctx, feedSeqKey, strconv.FormatUint(seq, 10)); err != nil {
		f.log.Warn("failed to persist feed cursor", zap.Error(err))
	}
}
