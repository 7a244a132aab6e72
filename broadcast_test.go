package threatlens

import (
	"encoding/json"
	"testing"
)

func TestHubEmitWithNoSessions(t *testing.T) {
	hub := NewHub()
	// Must be a silent no-op.
	hub.Emit(EventNewAlert, map[string]string{"x": "y"})
	if hub.SessionCount() != 0 {
		t.Fatalf("session count = %d", hub.SessionCount())
	}
}

func TestHubDeliversEnvelope(t *testing.T) {
	hub := NewHub()
	s := &wsSession{send: make(chan []byte, sessionBuffer)}
	hub.register(s)
	defer hub.unregister(s)

	alert := NewDetectionAlert(CategoryXSS, "1.2.3.4", "/p", "payload")
	hub.Emit(EventNewAlert, alert)

	select {
	case data := <-s.send:
		var env struct {
			Event string `json:"event"`
			Data  Alert  `json:"data"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("frame not JSON: %v", err)
		}
		if env.Event != "newAlert" {
			t.Fatalf("event = %q, want newAlert", env.Event)
		}
		if env.Data.Category != CategoryXSS || env.Data.SourceIP != "1.2.3.4" {
			t.Fatalf("payload mismatch: %+v", env.Data)
		}
	default:
		t.Fatal("no frame delivered")
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	a := &wsSession{send: make(chan []byte, sessionBuffer)}
	b := &wsSession{send: make(chan []byte, sessionBuffer)}
	hub.register(a)
	hub.register(b)
	defer hub.unregister(a)
	defer hub.unregister(b)

	if hub.SessionCount() != 2 {
		t.Fatalf("session count = %d, want 2", hub.SessionCount())
	}
	hub.Emit(EventNewAlert, "x")
	if len(a.send) != 1 || len(b.send) != 1 {
		t.Fatalf("fan-out incomplete: a=%d b=%d", len(a.send), len(b.send))
	}
}

func TestHubDropsWhenSessionBufferFull(t *testing.T) {
	hub := NewHub()
	slow := &wsSession{send: make(chan []byte, 1)}
	hub.register(slow)
	defer hub.unregister(slow)

	hub.Emit(EventNewAlert, "first")
	// Buffer is full now; the second frame is dropped, not blocked on.
	done := make(chan struct{})
	go func() {
		hub.Emit(EventNewAlert, "second")
		close(done)
	}()
	<-done
	if len(slow.send) != 1 {
		t.Fatalf("buffered frames = %d, want 1", len(slow.send))
	}
}

func TestHubUnregisterIdempotent(t *testing.T) {
	hub := NewHub()
	s := &wsSession{send: make(chan []byte, 1)}
	hub.register(s)
	hub.unregister(s)
	hub.unregister(s) // second call must not panic on a closed channel
	if hub.SessionCount() != 0 {
		t.Fatalf("session count = %d", hub.SessionCount())
	}
	// Emitting after removal must not write to the closed channel.
	hub.Emit(EventNewAlert, "late")
}

func TestNopBroadcaster(t *testing.T) {
	var b Broadcaster = NopBroadcaster{}
	b.Emit(EventNewAlert, "ignored")
}
