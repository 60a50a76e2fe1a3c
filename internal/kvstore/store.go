// Package kvstore backs the C4 `store` handler and the optional C12 durable
// snapshot: handlers see one Store interface regardless of whether it is
// backed by an in-process map or mirrored to Redis.
package kvstore

import "context"

// Store is the shared process-wide key/value map behind the `store` handler
// (spec §4.4: action ∈ {set, get, delete, list, clear}).
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}
