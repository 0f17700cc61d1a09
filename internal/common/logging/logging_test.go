package logging

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() (*logrus.Entry, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	logger := logrus.New()
	logger.Out = buf
	logger.Formatter = new(CommandLineFormatter)
	logger.Level = logrus.DebugLevel
	return logrus.NewEntry(logger), buf
}

func TestCommandLineFormatter(t *testing.T) {
	logger, buf := testLogger()

	Heading(logger, "Starting local benchmark")
	logger.Info("Setting up testbed...")
	logger.Warn("There are not enough instances available")
	logger.WithError(errors.New("exit status 1")).Error("Benchmark failed")

	assert.Equal(t,
		"\nStarting local benchmark\n"+
			"Setting up testbed...\n"+
			"WARN: There are not enough instances available\n"+
			"ERROR: Benchmark failed\n  Caused by: exit status 1\n",
		buf.String())
}

func TestWithStacktrace(t *testing.T) {
	logger, _ := testLogger()

	err := errors.WithStack(errors.New("test error"))
	entry := WithStacktrace(logger, err)

	assert.Equal(t, err, entry.Data[logrus.ErrorKey])
	assert.Equal(t, err.(stackTracer).StackTrace(), entry.Data[Stacktrace])
}

func TestWithStacktrace_NotAtInfoLevel(t *testing.T) {
	logger, _ := testLogger()
	logger.Logger.Level = logrus.InfoLevel

	entry := WithStacktrace(logger, errors.WithStack(errors.New("test error")))

	assert.NotContains(t, entry.Data, Stacktrace)
}

func TestExtractStack_FollowsCause(t *testing.T) {
	inner := errors.New("inner")
	wrapped := errors.WithMessage(inner, "outer")

	assert.Equal(t, inner.(stackTracer).StackTrace(), ExtractStack(wrapped))
	assert.Nil(t, ExtractStack(nil))
}

func TestPrometheusHook(t *testing.T) {
	registry := prometheus.NewRegistry()
	hook, err := NewPrometheusHook(registry)
	require.NoError(t, err)

	logger, _ := testLogger()
	logger.Logger.AddHook(hook)
	logger.Info("one")
	logger.Info("two")
	logger.Warn("three")

	assert.Equal(t, 2.0, testutil.ToFloat64(hook.counter.WithLabelValues("info")))
	assert.Equal(t, 1.0, testutil.ToFloat64(hook.counter.WithLabelValues("warning")))
}
