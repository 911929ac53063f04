// Package store provides the key/value storage used to hold room state.
//
// The store package implements:
//   - The Store interface: string keys plus field-keyed hashes
//   - An in-memory backend for single-process deployments and tests
//   - A Redis backend for deployments that keep room state in Redis
//
// Every Store call is atomic on its own. No multi-key transactions are
// offered; callers that need a read-modify-write across keys serialize it
// themselves (see the lobby package's per-room locks).
//
// Usage:
//
//	st := store.NewMemoryStore()
//	if err := st.HSet(ctx, "room:global:players", connID, record); err != nil {
//		return err
//	}
//
//	admin, err := st.Get(ctx, "room:global:admin")
//	if errors.Is(err, store.ErrNotFound) {
//		// no admin yet
//	}
package store
