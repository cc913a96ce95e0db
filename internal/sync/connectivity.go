// Package sync tracks connectivity and fans out status transitions.
package sync

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/clearpath-app/backend/internal/logging"
	"github.com/clearpath-app/backend/internal/telemetry"
)

// StatusListener observes online/offline transitions.
type StatusListener func(online bool)

// Syncer is what the monitor pokes on connectivity transitions.
type Syncer interface {
	// TriggerAsync starts a fire-and-forget sync pass.
	TriggerAsync()

	// Interrupt clears the single-flight guard so a stalled pass cannot
	// block future syncs.
	Interrupt()
}

// Monitor holds the current online status and notifies registered
// listeners on every transition. Late subscribers receive the current
// status immediately on registration.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]StatusListener
	nextID    int
	engine    Syncer
}

// NewMonitor creates a Monitor seeded with the given status.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:    online,
		listeners: make(map[int]StatusListener),
	}
}

// SetEngine wires the engine poked on transitions. May be left unset in
// tests that only exercise listener fan-out.
func (m *Monitor) SetEngine(engine Syncer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine = engine
}

// IsOnline returns the current status.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// AddListener registers a listener and returns a handle for removal. The
// listener is invoked immediately with the current status so late
// subscribers don't miss the current state.
func (m *Monitor) AddListener(fn StatusListener) int {
	m.mu.Lock()
	current := m.online
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	m.mu.Unlock()

	fn(current)
	return id
}

// RemoveListener unregisters the listener with the given handle.
func (m *Monitor) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// SetOnline records a connectivity transition. Unchanged status is a
// no-op. On transition to online the engine is triggered fire-and-forget;
// on transition to offline the engine guard is cleared so a stalled pass
// cannot block the next online window.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]StatusListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	engine := m.engine
	m.mu.Unlock()

	telemetry.NetworkTransition()
	logging.Info("Connectivity changed", map[string]interface{}{"online": online})

	for _, fn := range listeners {
		fn(online)
	}

	if engine == nil {
		return
	}
	if online {
		engine.TriggerAsync()
	} else {
		engine.Interrupt()
	}
}

// Prober feeds a Monitor by probing the remote backend on an interval.
// It stands in for the browser's online/offline events when the component
// runs as a daemon.
type Prober struct {
	monitor  *Monitor
	probeURL string
	interval time.Duration
	client   *http.Client

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// NewProber creates a Prober hitting probeURL every interval.
func NewProber(monitor *Monitor, probeURL string, interval time.Duration) *Prober {
	return &Prober{
		monitor:  monitor,
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		stopCh:   make(chan struct{}),
	}
}

// Start begins probing until Stop is called or ctx is cancelled.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.active = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop halts probing and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

// loop probes on the interval and feeds results to the monitor.
func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.monitor.SetOnline(p.probe(ctx))
		}
	}
}

// probe reports whether the backend answered at all. Any HTTP status
// counts as reachable; only transport errors mean offline.
func (p *Prober) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
