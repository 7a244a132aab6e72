package threatlens

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLoginMonitorThreshold(t *testing.T) {
	store := &fakeAlertStore{}
	bcast := &fakeBroadcaster{}
	m := NewLoginMonitor(store, bcast, 3, time.Minute)
	ctx := context.Background()

	m.RecordFailure(ctx, "9.9.9.9", "/api/auth/login")
	m.RecordFailure(ctx, "9.9.9.9", "/api/auth/login")
	if n := len(store.alerts()); n != 0 {
		t.Fatalf("%d alerts below threshold", n)
	}

	m.RecordFailure(ctx, "9.9.9.9", "/api/auth/login")
	alerts := store.alerts()
	if len(alerts) != 1 {
		t.Fatalf("saved %d alerts at threshold, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Category != CategoryBruteForce || a.Severity != SeverityHigh {
		t.Fatalf("alert = %s/%s", a.Category, a.Severity)
	}
	if !strings.Contains(a.Payload, "failed login attempts: 3") {
		t.Fatalf("payload = %q", a.Payload)
	}
	if bcast.count() != 1 {
		t.Fatalf("broadcast %d events, want 1", bcast.count())
	}

	// Further failures inside the same window stay silent.
	m.RecordFailure(ctx, "9.9.9.9", "/api/auth/login")
	m.RecordFailure(ctx, "9.9.9.9", "/api/auth/login")
	if n := len(store.alerts()); n != 1 {
		t.Fatalf("%d alerts after repeat failures, want 1", n)
	}
}

func TestLoginMonitorPerIP(t *testing.T) {
	store := &fakeAlertStore{}
	m := NewLoginMonitor(store, nil, 2, time.Minute)
	ctx := context.Background()

	m.RecordFailure(ctx, "1.1.1.1", "/login")
	m.RecordFailure(ctx, "2.2.2.2", "/login")
	if n := len(store.alerts()); n != 0 {
		t.Fatalf("%d alerts, counters must be per ip", n)
	}
	m.RecordFailure(ctx, "1.1.1.1", "/login")
	if n := len(store.alerts()); n != 1 {
		t.Fatalf("%d alerts, want 1", n)
	}
}

func TestLoginMonitorSuccessResets(t *testing.T) {
	store := &fakeAlertStore{}
	m := NewLoginMonitor(store, nil, 2, time.Minute)
	ctx := context.Background()

	m.RecordFailure(ctx, "5.5.5.5", "/login")
	m.RecordSuccess("5.5.5.5")
	m.RecordFailure(ctx, "5.5.5.5", "/login")
	if n := len(store.alerts()); n != 0 {
		t.Fatalf("success did not reset the window: %d alerts", n)
	}
}

func TestLoginMonitorDefaults(t *testing.T) {
	m := NewLoginMonitor(&fakeAlertStore{}, nil, 0, 0)
	if m.threshold != 5 {
		t.Fatalf("default threshold = %d, want 5", m.threshold)
	}
	if m.window != 10*time.Minute {
		t.Fatalf("default window = %s, want 10m", m.window)
	}
}
