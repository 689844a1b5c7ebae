package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// testAppender logs through a testing.TB so that lines are attributed to the right test even when
// tests run in parallel.
type testAppender struct {
	tb      testing.TB
	encoder zapcore.Encoder
}

func newTestAppender(tb testing.TB) Appender {
	cfg := consoleEncoderConfig()
	cfg.SkipLineEnding = true
	return &testAppender{tb: tb, encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (ta *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	ta.tb.Helper()
	buf, err := ta.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	ta.tb.Log(buf.String())
	return nil
}

func (ta *testAppender) Sync() error {
	return nil
}

// NewTestLogger returns a new logger that outputs Debug+ logs through the test's Log method.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	logger := &impl{level: NewAtomicLevelAt(DEBUG)}
	logger.addAppender(newTestAppender(tb))

	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger.addAppender(observerCore)
	return logger, observedLogs
}
