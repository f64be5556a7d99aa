package stash

import (
	"time"

	c "github.com/unkn0wn-root/stash/codec"
	"github.com/unkn0wn-root/stash/keys"
)

// WithDefaults returns a copy of o with every unset field filled in.
func (o Options) WithDefaults() Options {
	if o.Codec == nil {
		o.Codec = c.Msgpack[any]{}
	}
	if o.Hasher == nil {
		o.Hasher = keys.SHA1{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = coalesce[Logger](o.Logger, NopLogger{})
	o.Hooks = coalesce[Hooks](o.Hooks, NopHooks{})
	return o
}

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
