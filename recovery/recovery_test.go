package recovery_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/recovery"
)

type fakeActions struct {
	port int

	restartCalls       atomic.Int32
	restartOnPortCalls atomic.Int32
	cleanRestartCalls  atomic.Int32

	failRestartTimes int32
}

func (f *fakeActions) Restart(ctx context.Context) error {
	n := f.restartCalls.Add(1)
	if n <= f.failRestartTimes {
		return assert.AnError
	}
	return nil
}

func (f *fakeActions) RestartOnPort(ctx context.Context, port int) error {
	f.restartOnPortCalls.Add(1)
	f.port = port
	return nil
}

func (f *fakeActions) CleanRestart(ctx context.Context) error {
	f.cleanRestartCalls.Add(1)
	return nil
}

func (f *fakeActions) DefaultPort() int { return f.port }

func fastConfig() recovery.Config {
	return recovery.Config{
		Enabled:     true,
		MaxAttempts: 5,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}

func TestRecoverSucceedsOnFirstRestart(t *testing.T) {
	t.Parallel()
	actions := &fakeActions{port: 8080}
	m := recovery.New(fastConfig(), actions)

	port, err := m.Recover(context.Background(), "health check failed")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)
	assert.Equal(t, int32(1), actions.restartCalls.Load())
	assert.False(t, m.Recovering())
}

func TestRecoverDisabledFailsImmediately(t *testing.T) {
	t.Parallel()
	cfg := fastConfig()
	cfg.Enabled = false
	m := recovery.New(cfg, &fakeActions{port: 8080})

	_, err := m.Recover(context.Background(), "x")
	require.Error(t, err)
	kind, ok := engineerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, engineerr.Disabled, kind)
}

func TestRecoverRejectsConcurrentInvocation(t *testing.T) {
	t.Parallel()
	actions := &fakeActions{port: 8080, failRestartTimes: 100}
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	cfg.BackoffBase = 50 * time.Millisecond
	m := recovery.New(cfg, actions)

	go func() { _, _ = m.Recover(context.Background(), "first") }()
	time.Sleep(10 * time.Millisecond)

	_, err := m.Recover(context.Background(), "second")
	require.Error(t, err)
	kind, ok := engineerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, engineerr.InProgress, kind)
}

func TestRecoverFallsBackToAlternatePortWhenDefaultBlocked(t *testing.T) {
	t.Parallel()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	blockedPort := listener.Addr().(*net.TCPAddr).Port

	actions := &fakeActions{port: blockedPort, failRestartTimes: 100}
	cfg := fastConfig()
	cfg.TryAlternatePort = true
	cfg.AlternatePortRange = 50
	m := recovery.New(cfg, actions)

	port, err := m.Recover(context.Background(), "blocked port")
	require.NoError(t, err)
	assert.NotEqual(t, blockedPort, port)
	assert.Equal(t, int32(1), actions.restartOnPortCalls.Load())
}

func TestRecoverUsesCleanRestartWhenAlternatePortUnconfigured(t *testing.T) {
	t.Parallel()
	actions := &fakeActions{port: 8080, failRestartTimes: 100}
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	m := recovery.New(cfg, actions)

	port, err := m.Recover(context.Background(), "restart fails")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)
	assert.Equal(t, int32(1), actions.restartCalls.Load())
	assert.Equal(t, int32(1), actions.cleanRestartCalls.Load())
}

func TestRecoverPublishesLifecycleEventsOnSuccess(t *testing.T) {
	t.Parallel()
	actions := &fakeActions{port: 8080}
	cfg := fastConfig()
	sink := event.NewInMemorySink()
	cfg.Sink = sink
	m := recovery.New(cfg, actions)

	_, err := m.Recover(context.Background(), "x")
	require.NoError(t, err)

	var sawStarted, sawAttempt, sawComplete bool
	for _, e := range sink.Events() {
		switch e.Kind {
		case event.KindRecoveryStarted:
			sawStarted = true
		case event.KindRecoveryAttempt:
			sawAttempt = true
		case event.KindRecoveryComplete:
			sawComplete = true
			assert.True(t, e.Healthy)
		}
	}
	assert.True(t, sawStarted)
	assert.True(t, sawAttempt)
	assert.True(t, sawComplete)
}
