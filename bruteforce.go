package threatlens

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LoginMonitor counts failed logins per source IP over a sliding
// window and raises one BRUTE_FORCE alert when the threshold is
// crossed. It observes the auth handlers; it never blocks a login.
type LoginMonitor struct {
	store     AlertStore
	broadcast Broadcaster
	threshold int
	window    time.Duration

	mu       sync.Mutex
	failures map[string]*failureWindow
}

type failureWindow struct {
	count   int
	first   time.Time
	alerted bool
}

func NewLoginMonitor(store AlertStore, broadcast Broadcaster, threshold int, window time.Duration) *LoginMonitor {
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &LoginMonitor{
		store:     store,
		broadcast: broadcast,
		threshold: threshold,
		window:    window,
		failures:  make(map[string]*failureWindow),
	}
}

// RecordFailure registers one failed login from ip. Crossing the
// threshold emits a single alert for the current window; further
// failures inside the same window stay silent.
func (m *LoginMonitor) RecordFailure(ctx context.Context, ip, path string) {
	m.mu.Lock()
	now := time.Now()
	w, ok := m.failures[ip]
	if !ok || now.Sub(w.first) > m.window {
		w = &failureWindow{first: now}
		m.failures[ip] = w
	}
	w.count++
	trigger := w.count >= m.threshold && !w.alerted
	if trigger {
		w.alerted = true
	}
	count := w.count
	windowStart := w.first
	m.mu.Unlock()

	if !trigger {
		return
	}
	m.emit(ctx, ip, path, count, now.Sub(windowStart))
}

// RecordSuccess clears the failure window for ip.
func (m *LoginMonitor) RecordSuccess(ip string) {
	m.mu.Lock()
	delete(m.failures, ip)
	m.mu.Unlock()
}

func (m *LoginMonitor) emit(ctx context.Context, ip, path string, count int, elapsed time.Duration) {
	alert := &Alert{
		Category:     CategoryBruteForce,
		Severity:     SeverityHigh,
		Message:      "Brute force attack detected on authentication endpoint",
		SourceIP:     ip,
		RequestPath:  path,
		Payload:      TruncatePayload(fmt.Sprintf("failed login attempts: %d in %s from single ip", count, elapsed.Round(time.Second))),
		Timestamp:    time.Now(),
		Status:       StatusActive,
		ThreatSource: DefaultThreatSource(),
		Analysis:     DefaultAnalysis(),
	}
	alert.ThreatSource.DetectionSource = "API Monitor"
	alert.ThreatSource.SourceIP = ip
	alert.ThreatSource.SourcePath = path

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		observeStoreFailure()
		logger.Error().Err(err).Str("ip", ip).Msg("brute force alert write failed")
		return
	}
	observeAlert(alert.Category, alert.Severity)
	logger.Warn().Str("ip", ip).Int("failures", count).Msg("brute force threshold crossed")
	m.broadcast.Emit(EventNewAlert, alert)
}
