// Package history streams committed vault events and periodic revenue
// samples into Postgres for offline analysis. Writes are buffered and
// best-effort: a full queue drops rows rather than stalling a call scope.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"burnvault/internal/config"
	"burnvault/internal/vault"
)

const writeTimeout = 3 * time.Second

// RevenueSample is a point-in-time reading of the vault's economic state.
type RevenueSample struct {
	Time        time.Time
	Tick        uint64
	Ceiling     string
	Available   string
	CurrentFees string
	Escrowed    string
}

type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	events  chan vault.Event
	revenue chan RevenueSample
	started atomic.Bool
	dropEv  atomic.Uint64
	dropRev atomic.Uint64
}

// New returns nil when history is disabled; a nil *Writer is safe to use.
func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		events:  make(chan vault.Event, queueSize),
		revenue: make(chan RevenueSample, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Emit queues a committed batch; it satisfies the vault event sink contract.
func (w *Writer) Emit(ctx context.Context, events []vault.Event) error {
	if w == nil {
		return nil
	}
	for _, ev := range events {
		select {
		case w.events <- ev:
		default:
			if w.dropEv.Add(1) == 1 && w.log != nil {
				w.log.Warn("history event queue full")
			}
		}
	}
	return nil
}

func (w *Writer) EnqueueRevenue(sample RevenueSample) {
	if w == nil {
		return
	}
	select {
	case w.revenue <- sample:
	default:
		if w.dropRev.Add(1) == 1 && w.log != nil {
			w.log.Warn("history revenue queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			w.writeEvent(ctx, ev)
		case sample := <-w.revenue:
			w.writeRevenue(ctx, sample)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		call_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		caller TEXT NOT NULL,
		tick BIGINT NOT NULL,
		amount TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		recipient TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT '',
		spend TEXT NOT NULL DEFAULT '',
		reward TEXT NOT NULL DEFAULT '',
		burned TEXT NOT NULL DEFAULT '',
		backdated BOOLEAN NOT NULL DEFAULT FALSE
	)`, w.table("vault_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		tick BIGINT NOT NULL,
		ceiling TEXT NOT NULL,
		available TEXT NOT NULL,
		current_fees TEXT NOT NULL,
		escrowed TEXT NOT NULL
	)`, w.table("venue_revenue"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("vault_events"))); err != nil && w.log != nil {
		w.log.Warn("vault_events hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("venue_revenue"))); err != nil && w.log != nil {
		w.log.Warn("venue_revenue hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeEvent(ctx context.Context, ev vault.Event) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, call_id, kind, caller, tick, amount, sender, recipient,
		outcome, spend, reward, burned, backdated
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	)`, w.table("vault_events"))
	if _, err := w.db.ExecContext(ctx, query,
		ev.At,
		ev.CallID,
		string(ev.Type),
		ev.Caller.Hex(),
		int64(ev.Tick),
		ev.Amount,
		hexOrEmpty(ev.From),
		hexOrEmpty(ev.To),
		ev.Outcome,
		ev.Spend,
		ev.Reward,
		ev.Burned,
		ev.Backdated,
	); err != nil && w.log != nil {
		w.log.Warn("history event insert failed", zap.Error(err))
	}
}

func (w *Writer) writeRevenue(ctx context.Context, sample RevenueSample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, tick, ceiling, available, current_fees, escrowed
	) VALUES (
		$1,$2,$3,$4,$5,$6
	)`, w.table("venue_revenue"))
	if _, err := w.db.ExecContext(ctx, query,
		sample.Time,
		int64(sample.Tick),
		sample.Ceiling,
		sample.Available,
		sample.CurrentFees,
		sample.Escrowed,
	); err != nil && w.log != nil {
		w.log.Warn("history revenue insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

func hexOrEmpty(a *common.Address) string {
	if a == nil {
		return ""
	}
	return a.Hex()
}
