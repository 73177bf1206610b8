// Package journal persists committed vault events as an append-only,
// hash-chained log. Each entry's hash covers the previous entry's hash and
// the entry payload, so rewriting any historical entry breaks the chain from
// that point forward and is caught by Verify.
package journal

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"burnvault/internal/vault"
)

var pragmas = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA busy_timeout=5000`,
	`PRAGMA synchronous=NORMAL`,
}

const schema = `CREATE TABLE IF NOT EXISTS journal (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id   TEXT NOT NULL,
	kind      TEXT NOT NULL,
	tick      INTEGER NOT NULL,
	at        INTEGER NOT NULL,
	payload   BLOB NOT NULL,
	prev_hash BLOB NOT NULL,
	hash      BLOB NOT NULL
)`

const hashSize = 32

// Journal is a SQLite-backed event sink. Appends within one Emit are
// transactional: either the whole committed batch lands or none of it.
type Journal struct {
	log *zap.Logger
	db  *sql.DB

	mu   sync.Mutex
	head []byte
}

func Open(path string, log *zap.Logger) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	head, err := loadHead(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{log: log, db: db, head: head}, nil
}

func loadHead(db *sql.DB) ([]byte, error) {
	var head []byte
	err := db.QueryRow(`SELECT hash FROM journal ORDER BY seq DESC LIMIT 1`).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return make([]byte, hashSize), nil
	}
	if err != nil {
		return nil, err
	}
	return head, nil
}

// Emit appends a committed batch to the chain.
func (j *Journal) Emit(ctx context.Context, events []vault.Event) error {
	if len(events) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	prev := j.head
	for _, ev := range events {
		payload, err := encodeEvent(ev)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode event: %w", err)
		}
		hash := crypto.Keccak256(prev, payload)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal (call_id, kind, tick, at, payload, prev_hash, hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.CallID, string(ev.Type), int64(ev.Tick), ev.At.UnixMilli(), payload, prev, hash,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append journal entry: %w", err)
		}
		prev = hash
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	j.head = prev
	return nil
}

// Head returns the hash of the latest entry, or all zeroes for an empty
// journal.
func (j *Journal) Head() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	head := make([]byte, len(j.head))
	copy(head, j.head)
	return head
}

// VerifyResult summarizes a successful chain walk.
type VerifyResult struct {
	Entries int
	Head    []byte
}

// Verify re-walks the whole chain, re-deriving every hash from the genesis
// value. Any rewritten payload or broken link fails with the offending
// sequence number.
func (j *Journal) Verify(ctx context.Context) (VerifyResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, payload, prev_hash, hash FROM journal ORDER BY seq ASC`)
	if err != nil {
		return VerifyResult{}, err
	}
	defer rows.Close()

	prev := make([]byte, hashSize)
	entries := 0
	for rows.Next() {
		var (
			seq                     int64
			payload, prevHash, hash []byte
		)
		if err := rows.Scan(&seq, &payload, &prevHash, &hash); err != nil {
			return VerifyResult{}, err
		}
		if !bytes.Equal(prevHash, prev) {
			return VerifyResult{}, fmt.Errorf("journal entry %d: previous hash does not match chain", seq)
		}
		want := crypto.Keccak256(prev, payload)
		if !bytes.Equal(hash, want) {
			return VerifyResult{}, fmt.Errorf("journal entry %d: payload does not match stored hash", seq)
		}
		prev = hash
		entries++
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Entries: entries, Head: prev}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
