// Package health implements the Health Monitor: a periodic liveness probe
// against the active inference backend, publishing results and ok/fail
// transitions to the event sink.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/event"
	"github.com/dagforge/engine/log"
)

// Result is one probe outcome.
type Result struct {
	OK        bool
	LatencyMS int64
	Err       error
	CheckedAt time.Time
}

// Config configures a Monitor.
type Config struct {
	// BaseURL is probed with GET {BaseURL}/health, falling back to
	// GET {BaseURL}/v1/models if the first probe fails (a transport error
	// or an HTTP status of 400 or above).
	BaseURL  string
	Interval time.Duration
	Client   *http.Client
	Sink     event.Sink
	Logger   log.Logger
}

// Monitor runs at most one periodic probe loop at a time.
type Monitor struct {
	mu      sync.Mutex
	cfg     Config
	client  *http.Client
	last    *Result
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a stopped Monitor.
func New(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Sink == nil {
		cfg.Sink = event.NullSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = &log.NoOpLogger{}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Monitor{cfg: cfg, client: client}
}

// Start begins the periodic probe loop. Calling Start while already
// running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		m.tick(loopCtx)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.tick(loopCtx)
			}
		}
	}()
}

// Stop ends the probe loop and waits for the in-flight probe, if any, to
// finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the probe loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Last returns the most recent probe result, if any.
func (m *Monitor) Last() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

func (m *Monitor) tick(ctx context.Context) {
	result := m.probe(ctx)

	m.mu.Lock()
	prev := m.last
	m.last = &result
	m.mu.Unlock()

	m.cfg.Sink.Publish(event.Event{
		Kind:      event.KindHealthCheckResult,
		Healthy:   result.OK,
		LatencyMS: result.LatencyMS,
		Err:       result.Err,
		Timestamp: result.CheckedAt,
	})

	if prev != nil && prev.OK != result.OK {
		kind := event.KindHealthBecameUnhealthy
		if result.OK {
			kind = event.KindHealthBecameOK
		}
		m.cfg.Sink.Publish(event.Event{Kind: kind, Healthy: result.OK, Timestamp: result.CheckedAt})
	}
}

// probe issues GET {BaseURL}/health, falling back to GET
// {BaseURL}/v1/models on any failure of the first probe (a transport
// error or an HTTP status of 400 or above).
func (m *Monitor) probe(ctx context.Context) Result {
	start := time.Now()
	err := m.get(ctx, m.cfg.BaseURL+"/health")
	if err != nil {
		err = m.get(ctx, m.cfg.BaseURL+"/v1/models")
	}
	latency := time.Since(start)
	if err != nil {
		m.cfg.Logger.Warn("health probe for %s failed: %v", m.cfg.BaseURL, err)
		return Result{OK: false, LatencyMS: latency.Milliseconds(), Err: err, CheckedAt: start}
	}
	return Result{OK: true, LatencyMS: latency.Milliseconds(), CheckedAt: start}
}

func (m *Monitor) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engineerr.Newf(engineerr.HTTPError, "building health request: %v", err).WithCause(err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return engineerr.Newf(engineerr.HTTPError, "%v", err).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return engineerr.Newf(engineerr.HTTPError, "%s returned %d", url, resp.StatusCode)
	}
	return nil
}
