// Package recovery implements the Recovery Manager: a strategy-driven
// restart loop that reacts to health-monitor failures with exponential
// backoff and a bounded attempt budget.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
	"github.com/dagforge/engine/sidecar"
)

// Strategy is the recovery action chosen for a given attempt index.
type Strategy string

const (
	StrategyRestart       Strategy = "restart"
	StrategyAlternatePort Strategy = "alternate_port"
	StrategyCleanRestart  Strategy = "clean_restart"
)

// Actions is the set of operations the recovery manager drives; a caller
// implements these against its own gateway/sidecar wiring.
type Actions interface {
	// Restart stops and restarts the backend on its current port/config.
	Restart(ctx context.Context) error
	// RestartOnPort stops and restarts the backend bound to port.
	RestartOnPort(ctx context.Context, port int) error
	// CleanRestart tears the backend fully down (killing any lingering
	// process) before restarting from scratch.
	CleanRestart(ctx context.Context) error
	// DefaultPort returns the backend's configured port, used to probe
	// for a conflict before trying AlternatePort.
	DefaultPort() int
}

// Config tunes the recovery loop.
type Config struct {
	Enabled          bool
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	TryAlternatePort bool
	// AlternatePortRange bounds how many ports above DefaultPort the
	// AlternatePort strategy will scan.
	AlternatePortRange int
	Sink               event.Sink
	Logger             log.Logger
}

// Manager runs at most one recovery attempt loop at a time.
type Manager struct {
	cfg     Config
	actions Actions

	mu           sync.Mutex
	recovering   bool
	attemptCount int
	lastErr      error
}

// New returns a Manager over cfg and actions.
func New(cfg Config, actions Actions) *Manager {
	if cfg.Sink == nil {
		cfg.Sink = event.NullSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = &log.NoOpLogger{}
	}
	if cfg.AlternatePortRange <= 0 {
		cfg.AlternatePortRange = 100
	}
	return &Manager{cfg: cfg, actions: actions}
}

// Recovering reports whether a recovery loop is currently in progress.
func (m *Manager) Recovering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovering
}

// AttemptCount returns how many attempts the most recent (or in-progress)
// recovery has made.
func (m *Manager) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attemptCount
}

// Recover attempts to restore service for reason, trying strategies in
// order Restart, AlternatePort (if configured and the default port is
// blocked), CleanRestart (for every attempt after that), with exponential
// backoff between attempts. It returns the port now in use on success.
func (m *Manager) Recover(ctx context.Context, reason string) (int, error) {
	if !m.cfg.Enabled {
		return 0, engineerr.New(engineerr.Disabled, "recovery is disabled")
	}

	m.mu.Lock()
	if m.recovering {
		m.mu.Unlock()
		return 0, engineerr.New(engineerr.InProgress, "recovery already in progress")
	}
	m.recovering = true
	m.attemptCount = 0
	m.lastErr = nil
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.recovering = false
		m.mu.Unlock()
	}()

	m.cfg.Sink.Publish(event.Event{Kind: event.KindRecoveryStarted, Message: reason})

	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		m.mu.Lock()
		m.attemptCount = attempt + 1
		m.mu.Unlock()

		delay := delayForAttempt(m.cfg.BackoffBase, m.cfg.BackoffMax, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, engineerr.New(engineerr.Cancelled, "recovery cancelled during backoff")
		}

		strategy := m.strategyForAttempt(attempt)
		m.cfg.Sink.Publish(event.Event{Kind: event.KindRecoveryAttempt, Attempt: attempt, Strategy: string(strategy)})

		port, err := m.apply(ctx, strategy)
		if err == nil {
			m.cfg.Sink.Publish(event.Event{Kind: event.KindRecoveryComplete, Healthy: true, Attempt: attempt, Strategy: string(strategy)})
			m.mu.Lock()
			m.attemptCount = 0
			m.mu.Unlock()
			return port, nil
		}

		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()
		m.cfg.Logger.Warn("recovery attempt %d (%s) failed: %v", attempt, strategy, err)
	}

	m.mu.Lock()
	lastErr := m.lastErr
	m.mu.Unlock()
	m.cfg.Sink.Publish(event.Event{Kind: event.KindRecoveryComplete, Healthy: false, Err: lastErr})
	return 0, engineerr.Newf(engineerr.ExhaustedAttempts, "recovery exhausted %d attempts: %v", m.cfg.MaxAttempts, lastErr).WithCause(lastErr)
}

func (m *Manager) strategyForAttempt(attempt int) Strategy {
	switch {
	case attempt == 0:
		return StrategyRestart
	case attempt == 1 && m.cfg.TryAlternatePort && !sidecar.PortFree(m.actions.DefaultPort()):
		return StrategyAlternatePort
	default:
		return StrategyCleanRestart
	}
}

func (m *Manager) apply(ctx context.Context, strategy Strategy) (int, error) {
	switch strategy {
	case StrategyRestart:
		if err := m.actions.Restart(ctx); err != nil {
			return 0, err
		}
		return m.actions.DefaultPort(), nil
	case StrategyAlternatePort:
		port, err := sidecar.FindFreePort(m.actions.DefaultPort()+1, m.cfg.AlternatePortRange)
		if err != nil {
			return 0, err
		}
		if err := m.actions.RestartOnPort(ctx, port); err != nil {
			return 0, err
		}
		return port, nil
	case StrategyCleanRestart:
		if err := m.actions.CleanRestart(ctx); err != nil {
			return 0, err
		}
		return m.actions.DefaultPort(), nil
	default:
		return 0, engineerr.Newf(engineerr.ExecutionFailed, "unknown recovery strategy %q", strategy)
	}
}
