package stash

// Fields carries the structured context of one log line. Drivers use the
// keys "key" (the caller's key or its native form), "path", "err" and
// counters such as "removed".
type Fields map[string]any

// Logger receives the few events a driver cannot report through its return
// values. Adapters for zap, logrus and slog live under log/; a nil
// Options.Logger disables logging.
//
// Levels as the drivers use them:
//
//	Debug  a value that quietly became a miss (expired, undecodable,
//	       dropped by the store's admission policy) and flush results
//	Info   maintenance summaries such as a prune
//	Warn   a write, removal or flush that failed and was returned as an error
//	Error  unused by the bundled drivers; reserved for callers' adapters
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything. Options.WithDefaults installs it.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
