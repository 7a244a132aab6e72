package threatlens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// scannerAlertWindow throttles repeat alerts for the same scanning IP.
const scannerAlertWindow = time.Minute

// ScannerMonitor watches the User-Agent header for known vulnerability
// scanners and bots. Like the inspection middleware it is advisory
// only, but it is a separate surface: its matches do not count against
// the three request-inspection passes.
type ScannerMonitor struct {
	catalog   *CatalogProvider
	store     AlertStore
	broadcast Broadcaster

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewScannerMonitor(catalog *CatalogProvider, store AlertStore, broadcast Broadcaster) *ScannerMonitor {
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	return &ScannerMonitor{
		catalog:   catalog,
		store:     store,
		broadcast: broadcast,
		seen:      make(map[string]time.Time),
	}
}

// Middleware emits one SCANNER_ACTIVITY alert per scanning IP per
// window and always passes the request through.
func (m *ScannerMonitor) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ua := c.Get(fiber.HeaderUserAgent)
		if ua == "" {
			return c.Next()
		}
		name, ok := m.catalog.Current().MatchScanner(ua)
		if !ok {
			return c.Next()
		}
		clientIP := ClientIP(c)
		if m.shouldAlert(clientIP) {
			m.emit(context.Background(), clientIP, c.OriginalURL(), ua, name)
		}
		return c.Next()
	}
}

func (m *ScannerMonitor) shouldAlert(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if last, ok := m.seen[ip]; ok && now.Sub(last) < scannerAlertWindow {
		return false
	}
	m.seen[ip] = now
	// Drop stale entries so the map does not grow with one-off IPs.
	for k, t := range m.seen {
		if now.Sub(t) > scannerAlertWindow {
			delete(m.seen, k)
		}
	}
	return true
}

func (m *ScannerMonitor) emit(ctx context.Context, clientIP, path, ua, signature string) {
	alert := &Alert{
		Category:     CategoryScannerActivity,
		Severity:     SeverityMedium,
		Message:      "Automated vulnerability scanner detected",
		SourceIP:     clientIP,
		RequestPath:  path,
		Payload:      TruncatePayload(fmt.Sprintf("user-agent matched %s signature: %s", signature, ua)),
		Timestamp:    time.Now(),
		Status:       StatusActive,
		ThreatSource: DefaultThreatSource(),
		Analysis:     DefaultAnalysis(),
	}
	alert.ThreatSource.DetectionSource = "API Monitor"
	alert.ThreatSource.SourceIP = clientIP
	alert.ThreatSource.SourcePath = path

	if err := m.store.SaveAlert(ctx, alert); err != nil {
		observeStoreFailure()
		logger.Error().Err(err).Str("ip", clientIP).Msg("scanner alert write failed")
		return
	}
	observeAlert(alert.Category, alert.Severity)
	logger.Info().Str("ip", clientIP).Str("signature", signature).Msg("scanner activity detected")
	m.broadcast.Emit(EventNewAlert, alert)
}
