package fundauth

import (
	"sync"
	"time"
)

// IdleMonitor ends a session after a configurable interval with no
// qualifying user-activity signal. It is independent of network state: the
// UI layer feeds it activity through [IdleMonitor.Activity] and the
// monitor's only output is the configured callback.
//
// The deadline timer is owned exclusively by the monitor. After the
// callback fires the monitor disarms itself and stays inactive until
// [IdleMonitor.Resume] — re-arming is an explicit decision of whoever
// handled the timeout (typically after the user re-authenticates).
type IdleMonitor struct {
	mu           sync.Mutex
	cfg          IdleConfig
	onTimeout    func()
	signals      map[string]struct{}
	graceTimer   *time.Timer
	deadline     *time.Timer
	running      bool
	armed        bool
	lastActivity time.Time
}

// NewIdleMonitor builds a monitor from cfg. The callback is invoked from a
// timer goroutine, at most once per arm cycle, with no locks held.
func NewIdleMonitor(cfg IdleConfig, onTimeout func()) *IdleMonitor {
	signals := cfg.Signals
	if len(signals) == 0 {
		signals = DefaultIdleSignals
	}
	set := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		set[s] = struct{}{}
	}
	return &IdleMonitor{
		cfg:       cfg,
		onTimeout: onTimeout,
		signals:   set,
	}
}

// Start begins idle detection. A disabled config attaches nothing and runs
// no timer. Calling Start on a running monitor is a no-op.
func (m *IdleMonitor) Start() {
	if !m.cfg.Enabled || m.onTimeout == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.lastActivity = time.Now()

	// The first deadline is armed only after the grace delay, so automatic
	// signals fired during startup cannot cause a false timeout.
	grace := m.cfg.GraceDelay
	if grace == 0 {
		grace = 2 * time.Second
	}
	if grace < 0 {
		m.armLocked()
		return
	}
	m.graceTimer = time.AfterFunc(grace, m.arm)
}

func (m *IdleMonitor) arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armLocked()
}

func (m *IdleMonitor) armLocked() {
	if !m.running || m.armed {
		return
	}
	m.armed = true
	m.deadline = time.AfterFunc(m.cfg.Timeout, m.fire)
}

// Activity records a user-activity signal. Signals outside the configured
// set are ignored; a qualifying signal cancels and restarts the deadline.
func (m *IdleMonitor) Activity(signal string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if _, ok := m.signals[signal]; !ok {
		return
	}
	m.lastActivity = time.Now()
	if m.armed {
		m.deadline.Reset(m.cfg.Timeout)
	}
}

func (m *IdleMonitor) fire() {
	m.mu.Lock()
	if !m.running || !m.armed {
		m.mu.Unlock()
		return
	}
	m.armed = false
	callback := m.onTimeout
	m.mu.Unlock()

	callback()
}

// Resume re-arms the deadline after a handled timeout. No grace delay is
// applied: the caller resumes deliberately, not during page construction.
func (m *IdleMonitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.lastActivity = time.Now()
	m.armLocked()
}

// Stop cancels all timers and detaches the monitor. Idempotent.
func (m *IdleMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.armed = false
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}
