package ticks

import (
	"context"
	"testing"
	"time"

	"burnvault/internal/vault"
)

type mapStore struct {
	data map[string]string
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]string)}
}

func (m *mapStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapStore) Set(ctx context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mapStore) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *mapStore) Close() error { return nil }

func TestNewClockValidation(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := NewClock(time.Time{}, time.Second); err == nil {
		t.Fatal("zero genesis accepted")
	}
	if _, err := NewClock(genesis, 0); err == nil {
		t.Fatal("zero interval accepted")
	}
	if _, err := NewClock(genesis, -time.Second); err == nil {
		t.Fatal("negative interval accepted")
	}
	if _, err := NewClock(genesis, time.Second); err != nil {
		t.Fatalf("valid clock rejected: %v", err)
	}
}

func TestClockTicks(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewClock(genesis, time.Second)
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		offset time.Duration
		want   vault.Tick
	}{
		{0, 0},
		{999 * time.Millisecond, 0},
		{time.Second, 1},
		{61*time.Second + 500*time.Millisecond, 61},
	}
	for _, tc := range cases {
		clock.now = func() time.Time { return genesis.Add(tc.offset) }
		tick, err := clock.Now(ctx)
		if err != nil {
			t.Fatalf("offset %s: %v", tc.offset, err)
		}
		if tick != tc.want {
			t.Fatalf("offset %s: got tick %d, want %d", tc.offset, tick, tc.want)
		}
	}
}

func TestClockRejectsPreGenesisTime(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewClock(genesis, time.Second)
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	clock.now = func() time.Time { return genesis.Add(-time.Minute) }
	if _, err := clock.Now(context.Background()); err == nil {
		t.Fatal("pre-genesis clock served a tick")
	}
}

func TestManualSource(t *testing.T) {
	m := NewManual(5)
	ctx := context.Background()

	tick, err := m.Now(ctx)
	if err != nil || tick != 5 {
		t.Fatalf("got %d err=%v, want 5", tick, err)
	}
	m.Advance(3)
	if tick, _ = m.Now(ctx); tick != 8 {
		t.Fatalf("after advance: got %d, want 8", tick)
	}
	m.Set(100)
	if tick, _ = m.Now(ctx); tick != 100 {
		t.Fatalf("after set: got %d, want 100", tick)
	}
}

func TestResolveGenesisConfigured(t *testing.T) {
	ctx := context.Background()
	genesis, err := ResolveGenesis(ctx, newMapStore(), "2026-03-01T12:00:00Z", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !genesis.Equal(want) {
		t.Fatalf("got %s, want %s", genesis, want)
	}

	if _, err := ResolveGenesis(ctx, newMapStore(), "yesterday", nil); err == nil {
		t.Fatal("malformed genesis accepted")
	}
}

func TestResolveGenesisMintsOnce(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()

	first, err := ResolveGenesis(ctx, store, "", nil)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, ok := store.data[genesisKey]; !ok {
		t.Fatal("minted genesis not persisted")
	}
	second, err := ResolveGenesis(ctx, store, "", nil)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !second.Equal(first) {
		t.Fatalf("genesis drifted across restarts: %s vs %s", first, second)
	}
}
