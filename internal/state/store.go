package state

import "context"

// Store is the daemon's durable key/value surface: engine snapshots, tick
// genesis, feed cursors, router idempotency records, and admin audit trails
// all live behind it.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
