package threatlens

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// fakeAlertStore records saved alerts in memory and can be forced to
// fail every write.
type fakeAlertStore struct {
	mu      sync.Mutex
	saved   []*Alert
	failErr error
}

func (f *fakeAlertStore) SaveAlert(_ context.Context, a *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeAlertStore) GetAlert(_ context.Context, id string) (*Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.saved {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeAlertStore) ListAlerts(_ context.Context, _ AlertFilter) ([]*Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Alert, len(f.saved))
	copy(out, f.saved)
	return out, nil
}

func (f *fakeAlertStore) ClearAlerts(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.saved))
	f.saved = nil
	return n, nil
}

func (f *fakeAlertStore) AlertStats(_ context.Context) (*AlertStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &AlertStats{
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
	}
	for _, a := range f.saved {
		stats.Total++
		stats.ByCategory[a.Category]++
		stats.BySeverity[a.Severity]++
		if a.Status == StatusActive {
			stats.Active++
		}
	}
	return stats, nil
}

func (f *fakeAlertStore) alerts() []*Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Alert, len(f.saved))
	copy(out, f.saved)
	return out
}

// fakeBroadcaster records every emitted event.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (f *fakeBroadcaster) Emit(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.data = append(f.data, payload)
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
