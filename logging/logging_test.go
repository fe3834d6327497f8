package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestObservedTestLogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Debugf("hello %s", "world")
	logger.Warnw("capability fallback", "path", "/World/thing")

	test.That(t, observed.Len(), test.ShouldEqual, 2)
	all := observed.All()
	test.That(t, all[0].Message, test.ShouldContainSubstring, "hello world")
	test.That(t, all[1].Message, test.ShouldContainSubstring, "capability fallback")
}

func TestNamed(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Named("registry").Info("loaded")
	test.That(t, observed.All()[0].LoggerName, test.ShouldEqual, "registry")
}
