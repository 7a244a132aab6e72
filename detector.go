package threatlens

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Detector runs the threat inspection pipeline over inbound requests.
// Detection is advisory-only: it persists and broadcasts alerts but
// never blocks, delays, or modifies the request/response cycle.
type Detector struct {
	catalog   *CatalogProvider
	store     AlertStore
	broadcast Broadcaster
}

func NewDetector(catalog *CatalogProvider, store AlertStore, broadcast Broadcaster) *Detector {
	if broadcast == nil {
		broadcast = NopBroadcaster{}
	}
	return &Detector{catalog: catalog, store: store, broadcast: broadcast}
}

// ClientIP resolves the caller's address, preferring proxy headers the
// way upstream load balancers populate them.
func ClientIP(c *fiber.Ctx) string {
	if ip := c.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := c.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	return c.IP()
}

// Middleware inspects every request before its handler runs. Three
// passes in fixed order: query parameters, body (only when non-empty),
// then path parameters. Each pass runs the full chain independently; a
// match in one pass does not suppress the next, so a single request
// can emit up to three alerts. Control always proceeds to c.Next().
func (d *Detector) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		clientIP := ClientIP(c)
		path := c.OriginalURL()
		ctx := context.Background()

		if q := c.Queries(); len(q) > 0 {
			d.runPass(ctx, "query", q, clientIP, path)
		}
		if body := c.Body(); len(body) > 0 {
			d.runPass(ctx, "body", decodeBody(body), clientIP, path)
		}
		if params := c.AllParams(); len(params) > 0 {
			d.runPass(ctx, "params", params, clientIP, path)
		}

		observeInspection(time.Since(start))
		return c.Next()
	}
}

// decodeBody recovers the structured form of a request body so the
// normalizer sees the same shape the handler will. Non-JSON bodies are
// inspected as raw text.
func decodeBody(body []byte) any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}

// runPass executes one inspection pass: normalize, classify, and on a
// match build, persist, and broadcast the alert. Every failure is
// logged and swallowed; the request is never affected, and a failed
// write suppresses the broadcast for that pass only.
func (d *Detector) runPass(ctx context.Context, surface string, input any, clientIP, path string) {
	normalized := Normalize(input)
	cat, ok := d.catalog.Current().Classify(normalized)
	if !ok {
		return
	}
	alert := NewDetectionAlert(cat, clientIP, path, normalized)
	alert.ThreatSource.DetectionSource = "Threat Detector"
	alert.ThreatSource.SourceIP = clientIP
	alert.ThreatSource.SourcePath = path

	if err := d.store.SaveAlert(ctx, alert); err != nil {
		observeStoreFailure()
		logger.Error().Err(err).
			Str("surface", surface).
			Str("category", string(cat)).
			Str("ip", clientIP).
			Msg("alert write failed, dropping alert")
		return
	}
	observeAlert(alert.Category, alert.Severity)
	logger.Info().
		Str("category", string(cat)).
		Str("surface", surface).
		Str("ip", clientIP).
		Str("path", path).
		Msg("threat detected")
	d.broadcast.Emit(EventNewAlert, alert)
}
