// Package logging wires go.uber.org/zap into the storage core. A database
// opened without an explicit logger gets a no-op sink, so library use
// stays silent by default. The CLI (cmd/decentdb) does not install a
// logger either.
package logging

import "go.uber.org/zap"

// Logger is the subset of *zap.SugaredLogger the storage core calls.
// Components take this interface rather than *zap.SugaredLogger directly
// so tests can swap in an observer without constructing a real zap core.
type Logger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

// NoOp returns a logger that discards everything, used as the default
// when Options.Logger is unset.
func NoOp() Logger {
	return zap.NewNop().Sugar()
}

// Development returns a human-readable, colorized-on-terminal logger
// suitable for the CLI and for tests that want to see recovery/checkpoint
// activity.
func Development() Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return NoOp()
	}
	return l.Sugar()
}
