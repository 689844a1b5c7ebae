package logging

import (
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestSubloggerNaming(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("pbf")
	subsub := sub.Sublogger("icp")

	subsub.Infow("iteration", "rms", 0.5)
	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "pbf.icp")
	test.That(t, entries[0].Message, test.ShouldEqual, "iteration")
	test.That(t, entries[0].ContextMap()["rms"], test.ShouldEqual, 0.5)
	test.That(t, entries[0].Caller.Defined, test.ShouldBeTrue)
	test.That(t, filepath.Base(entries[0].Caller.File), test.ShouldEqual, "impl_test.go")
}

func TestLevels(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debug("dropped")
	logger.Infof("dropped %d", 1)
	logger.Warnf("kept %d", 2)
	logger.Error("kept")
	test.That(t, observed.Len(), test.ShouldEqual, 2)
	test.That(t, observed.All()[0].Message, test.ShouldEqual, "kept 2")

	// subloggers start at the parent's level but change independently.
	sub := logger.Sublogger("sub")
	sub.SetLevel(DEBUG)
	sub.Debug("kept")
	logger.Debug("dropped")
	test.That(t, observed.Len(), test.ShouldEqual, 3)
}

func TestUnpairedKey(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Infow("msg", "lonely")
	test.That(t, observed.Len(), test.ShouldEqual, 1)
	_, ok := observed.All()[0].ContextMap()["lonely"]
	test.That(t, ok, test.ShouldBeTrue)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("fusion")
	test.That(t, logger.GetLevel(), test.ShouldEqual, INFO)
	sub := logger.Sublogger("icp")
	test.That(t, sub.GetLevel(), test.ShouldEqual, INFO)
	sub.Debug("below the level")
}
