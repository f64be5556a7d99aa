package stash

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/keys"
)

// Compute produces a value on a cache miss. See Remember.
type Compute func() (any, error)

// Driver is the uniform cache contract implemented by every backend.
//
// Failures that a caller may want to branch on are reported as errors:
// ErrNotFound (absent or expired) and ErrNotNumeric (increment on a
// non-integer payload). Read failures of the underlying storage are reported
// as misses, never as errors, for the file driver.
type Driver interface {
	// Put stores value for the given number of minutes.
	// 0 means forever; a negative value stores an already expired entry.
	Put(ctx context.Context, key string, value any, minutes int) error
	// Forever is Put(ctx, key, value, 0).
	Forever(ctx context.Context, key string, value any) error

	// Lookup returns (value, true, nil) on hit and (nil, false, nil) on miss.
	// Stored zero values (false, 0, "", nil) are hits.
	Lookup(ctx context.Context, key string) (any, bool, error)
	// Get returns the stored value, or def if the key is absent or expired.
	Get(ctx context.Context, key string, def any) any
	// Has reports whether a fresh entry exists at key.
	Has(ctx context.Context, key string) bool

	Remember(ctx context.Context, key string, minutes int, compute Compute) (any, error)
	RememberForever(ctx context.Context, key string, compute Compute) (any, error)

	// Increment adds delta to an integer payload and persists it with its
	// original expiry. Returns the new value.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	// Decrement is Increment(ctx, key, -delta).
	Decrement(ctx context.Context, key string, delta int64) (int64, error)

	// Forget removes key. Removing a key that is not stored is an error
	// for backends that can tell (file, redis).
	Forget(ctx context.Context, key string) error
	// Flush removes every entry this driver manages.
	Flush(ctx context.Context) error

	Close(ctx context.Context) error
}

// Options are shared by all drivers. Every field is optional.
type Options struct {
	Prefix string       // prepended to every key before hashing/addressing
	Codec  c.Codec[any] // payload codec; nil => msgpack
	Hasher keys.Hasher  // file name hash; nil => SHA1
	Logger Logger       // nil => NopLogger
	Hooks  Hooks        // nil => NopHooks

	// Now overrides the clock (tests). nil => time.Now.
	Now func() time.Time
}

// Keys returns the key codec described by o.
func (o Options) Keys() keys.Codec {
	return keys.Codec{Prefix: o.Prefix, Hasher: o.Hasher}
}
