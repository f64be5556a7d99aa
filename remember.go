package stash

import "context"

// Lookuper is the presence-flagged read primitive every driver provides.
type Lookuper interface {
	Lookup(ctx context.Context, key string) (any, bool, error)
}

// Store is the subset of Driver the cache-aside helpers need.
type Store interface {
	Lookuper
	Put(ctx context.Context, key string, value any, minutes int) error
}

// GetOr returns the value stored at key, or def on a miss or a lookup error.
func GetOr(ctx context.Context, l Lookuper, key string, def any) any {
	v, ok, err := l.Lookup(ctx, key)
	if err != nil || !ok {
		return def
	}
	return v
}

// Remember returns the value at key if present. Otherwise it calls compute
// once, stores the result for minutes and returns it.
//
// There is exactly one existence check and at most one store; the
// check-then-act sequence is not atomic, so concurrent callers may both
// compute (last write wins). A compute error is returned as is and nothing
// is stored. A store error returns (nil, err) rather than the computed value.
func Remember(ctx context.Context, s Store, key string, minutes int, compute Compute) (any, error) {
	v, ok, err := s.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	v, err = compute()
	if err != nil {
		return nil, err
	}
	if err := s.Put(ctx, key, v, minutes); err != nil {
		return nil, err
	}
	return v, nil
}

// RememberForever is Remember with minutes = 0.
func RememberForever(ctx context.Context, s Store, key string, compute Compute) (any, error) {
	return Remember(ctx, s, key, 0, compute)
}
