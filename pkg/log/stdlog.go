package log

import (
	"log"
	"log/slog"
)

// ToStdLogger adapts a Logger to a standard library *log.Logger writing at
// InfoLevel, for interop with libraries that accept only the stdlib logger
// (e.g. database/sql's SetLogger-style hooks).
func ToStdLogger(l Logger) *log.Logger {
	bl, ok := l.(*BaseLogger)
	if !ok {
		return log.Default()
	}
	return slog.NewLogLogger(newBridgeHandler(bl), slog.LevelInfo)
}

// RedirectStdLog points the global "log" package output at l, so that
// third-party libraries (e.g. Pebble) using log.Printf surface through our
// structured pipeline.
func RedirectStdLog(l Logger) {
	log.SetOutput(stdLogWriter{l: l})
	log.SetFlags(0)
}

type stdLogWriter struct{ l Logger }

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	for len(msg) > 0 && (msg[len(msg)-1] == '\n' || msg[len(msg)-1] == '\r') {
		msg = msg[:len(msg)-1]
	}
	w.l.Info(msg, Component("stdlog"))
	return len(p), nil
}
