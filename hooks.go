package stash

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; drivers call them inline.
type Hooks interface {
	// A stored entry could not be decoded and was treated as a miss.
	// reason is one of "read", "corrupt", "decode" or "type".
	CorruptItem(location, reason string, err error)

	// A write (Put, Increment write-back) failed at the storage layer.
	WriteFailed(location string, err error)

	// A delete failed (Forget, Flush, Prune). Missing entries are not reported.
	DeleteFailed(location string, err error)

	// Flush removed some entries but not all of them.
	FlushPartial(removed, failed int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CorruptItem(string, string, error) {}
func (NopHooks) WriteFailed(string, error)         {}
func (NopHooks) DeleteFailed(string, error)        {}
func (NopHooks) FlushPartial(int, int)             {}
