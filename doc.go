// Package stash implements one cache contract (put, get, has, remember,
// increment/decrement, forget, flush) over interchangeable backends.
// Callers depend on Driver only; the backend is picked at construction.
//
// Components:
//   - Driver: the contract. Implementations live under driver/ (file, memory,
//     bigcache, redis).
//   - item.Item: payload plus expiry metadata, framed by internal/wire.
//   - keys.Codec: maps prefix+key to a file name or a backend-native key.
//   - codec.Codec[any]: (de)serializes payloads (msgpack by default).
//
// TTLs are whole minutes:
//
//	minutes == 0  - never expires
//	minutes < 0   - already expired (write is accepted, reads miss)
//
// Cache-aside:
//
//	v, err := d.Remember(ctx, "user:42", 10, func() (any, error) {
//	    return loadUser(ctx, 42)
//	})
//
// Expiry is evaluated lazily on read. Nothing runs in the background.
package stash
