package keeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"burnvault/internal/config"
	"burnvault/internal/history"
	"burnvault/internal/vault"
)

var keeperCaller = common.HexToAddress("0x0000000000000000000000000000000000000033")

type stubVault struct {
	mu       sync.Mutex
	burnErr  error
	receipt  vault.BurnReceipt
	status   vault.Status
	burns    []common.Address
	statuses int
	notify   chan struct{}
}

func newStubVault() *stubVault {
	return &stubVault{
		receipt: vault.BurnReceipt{
			Spend:  uint256.NewInt(300),
			Reward: uint256.NewInt(1),
			Burned: uint256.NewInt(299),
			Tick:   40,
		},
		notify: make(chan struct{}, 16),
	}
}

func (s *stubVault) ExecuteBurn(ctx context.Context, caller common.Address) (vault.BurnReceipt, error) {
	s.mu.Lock()
	s.burns = append(s.burns, caller)
	err := s.burnErr
	receipt := s.receipt
	s.mu.Unlock()
	s.notify <- struct{}{}
	if err != nil {
		return vault.BurnReceipt{}, err
	}
	return receipt, nil
}

func (s *stubVault) Status(ctx context.Context) (vault.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses++
	return s.status, nil
}

type recordingHistory struct {
	mu      sync.Mutex
	samples []history.RevenueSample
}

func (r *recordingHistory) EnqueueRevenue(sample history.RevenueSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
}

func enabledConfig() config.KeeperConfig {
	return config.KeeperConfig{
		Schedule: "*/30 * * * * *",
		Caller:   keeperCaller.Hex(),
	}
}

func TestKeeperDisabledReturnsNil(t *testing.T) {
	disabled := false
	cfg := config.KeeperConfig{Enabled: &disabled}
	k, err := New(cfg, newStubVault(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != nil {
		t.Fatal("expected nil keeper when disabled")
	}
	// nil keeper methods must be safe for the caller.
	k.Start()
	k.Stop()
}

func TestKeeperRequiresValidCaller(t *testing.T) {
	cfg := enabledConfig()
	cfg.Caller = "not-an-address"
	if _, err := New(cfg, newStubVault(), nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for bad caller address")
	}
}

func TestKeeperRejectsBadSchedule(t *testing.T) {
	cfg := enabledConfig()
	cfg.Schedule = "whenever"
	if _, err := New(cfg, newStubVault(), nil, zap.NewNop()); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}

func TestKeeperRunOnceBurns(t *testing.T) {
	stub := newStubVault()
	k, err := New(enabledConfig(), stub, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}

	k.RunOnce(context.Background())

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.burns) != 1 {
		t.Fatalf("expected 1 burn attempt, got %d", len(stub.burns))
	}
	if stub.burns[0] != keeperCaller {
		t.Fatalf("expected keeper to burn as %s, got %s", keeperCaller.Hex(), stub.burns[0].Hex())
	}
	if stub.statuses != 0 {
		t.Fatalf("expected no status sample without sample_status, got %d", stub.statuses)
	}
}

func TestKeeperToleratesIdleVault(t *testing.T) {
	for _, idle := range []error{vault.ErrEmptyEscrow, vault.ErrDelayNotElapsed} {
		stub := newStubVault()
		stub.burnErr = idle
		k, err := New(enabledConfig(), stub, nil, zap.NewNop())
		if err != nil {
			t.Fatalf("new keeper: %v", err)
		}
		k.RunOnce(context.Background())
		stub.mu.Lock()
		if len(stub.burns) != 1 {
			stub.mu.Unlock()
			t.Fatalf("expected a burn attempt for %v", idle)
		}
		stub.mu.Unlock()
	}
}

func TestKeeperSamplesStatus(t *testing.T) {
	stub := newStubVault()
	stub.burnErr = vault.ErrEmptyEscrow
	stub.status = vault.Status{
		Tick:           42,
		Ceiling:        "500",
		AvailableFunds: "120",
		CurrentFees:    "120",
		Escrowed:       "90",
	}
	recorder := &recordingHistory{}
	cfg := enabledConfig()
	cfg.SampleStatus = true
	k, err := New(cfg, stub, recorder, zap.NewNop())
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}

	k.RunOnce(context.Background())

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.samples) != 1 {
		t.Fatalf("expected 1 revenue sample, got %d", len(recorder.samples))
	}
	sample := recorder.samples[0]
	if sample.Tick != 42 || sample.Available != "120" || sample.Escrowed != "90" {
		t.Fatalf("unexpected sample: %+v", sample)
	}
	if sample.Time.IsZero() {
		t.Fatal("expected sample time to be set")
	}
}

func TestKeeperFiresOnSchedule(t *testing.T) {
	stub := newStubVault()
	stub.burnErr = vault.ErrEmptyEscrow
	cfg := enabledConfig()
	cfg.Schedule = "* * * * * *"
	k, err := New(cfg, stub, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}

	k.Start()
	defer k.Stop()

	select {
	case <-stub.notify:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for scheduled burn attempt")
	}
}
