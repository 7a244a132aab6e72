package threatlens

import (
	"fmt"
	"time"
)

// Severity ranks an alert. Derived from category at construction unless
// a trusted caller overrides it.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// ValidSeverity reports whether s belongs to the closed severity set.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Status tracks an alert's lifecycle. The detection pipeline only ever
// creates Active alerts; it never edits existing ones.
type Status string

const (
	StatusActive   Status = "Active"
	StatusResolved Status = "Resolved"
	StatusIgnored  Status = "Ignored"
)

// maxPayloadRunes caps the forensic payload snapshot stored per alert.
const maxPayloadRunes = 150

// ThreatSource carries enrichment metadata about where a threat came
// from. Entirely optional; defaults apply when nothing is known.
type ThreatSource struct {
	DetectionSource  string `json:"detectionSource"`
	SourceIP         string `json:"sourceIP"`
	SourcePath       string `json:"sourcePath"`
	TargetURL        string `json:"targetURL"`
	SourceCountry    string `json:"sourceCountry"`
	SourceReputation string `json:"sourceReputation"`
}

// DefaultThreatSource returns the sentinel-filled sub-record.
func DefaultThreatSource() ThreatSource {
	return ThreatSource{
		DetectionSource:  "Unknown",
		SourceIP:         "Unknown",
		SourcePath:       "N/A",
		TargetURL:        "N/A",
		SourceCountry:    "N/A",
		SourceReputation: "Unknown",
	}
}

// Analysis holds AI or analyst conclusions about an alert. Absence is
// valid; the detection path never populates this synchronously.
type Analysis struct {
	AIAnalysis      string   `json:"aiAnalysis"`
	AttackVector    string   `json:"attackVector"`
	Confidence      int      `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

// DefaultAnalysis returns the sentinel-filled sub-record.
func DefaultAnalysis() Analysis {
	return Analysis{AIAnalysis: "N/A", AttackVector: "N/A"}
}

// Alert is one detected or manually reported security event. Alerts are
// append-only: created by the inspection pipeline or an authenticated
// API call, deleted only by the bulk-clear admin operation.
type Alert struct {
	ID           string       `json:"id"`
	Category     Category     `json:"type"`
	Severity     Severity     `json:"severity"`
	Message      string       `json:"message"`
	SourceIP     string       `json:"ip"`
	RequestPath  string       `json:"path"`
	Payload      string       `json:"payload"`
	Timestamp    time.Time    `json:"timestamp"`
	Status       Status       `json:"status"`
	ThreatSource ThreatSource `json:"threatSource"`
	Analysis     Analysis     `json:"analysis"`
}

// SeverityFor derives the default severity for a category: Critical for
// the injection families, High for everything else.
func SeverityFor(cat Category) Severity {
	if cat == CategorySQLInjection || cat == CategoryXSS {
		return SeverityCritical
	}
	return SeverityHigh
}

// TruncatePayload hard-caps a payload snapshot at 150 characters.
func TruncatePayload(s string) string {
	runes := []rune(s)
	if len(runes) <= maxPayloadRunes {
		return s
	}
	return string(runes[:maxPayloadRunes])
}

// NewDetectionAlert builds the alert emitted by an inspection pass.
// sourceIP and requestPath fall back to sentinels when the HTTP layer
// could not supply them. The sub-records stay at defaults; analysis is
// fetched on demand per alert, never at detection time.
func NewDetectionAlert(cat Category, sourceIP, requestPath, normalized string) *Alert {
	if sourceIP == "" {
		sourceIP = "0.0.0.0"
	}
	if requestPath == "" {
		requestPath = "Unknown"
	}
	return &Alert{
		Category:     cat,
		Severity:     SeverityFor(cat),
		Message:      fmt.Sprintf("Possible %s attempt detected in request payload.", cat),
		SourceIP:     sourceIP,
		RequestPath:  requestPath,
		Payload:      TruncatePayload(normalized),
		Timestamp:    time.Now(),
		Status:       StatusActive,
		ThreatSource: DefaultThreatSource(),
		Analysis:     DefaultAnalysis(),
	}
}

// Validate enforces the closed sets and the confidence range before an
// alert reaches the store.
func (a *Alert) Validate() error {
	if !ValidCategory(a.Category) {
		return fmt.Errorf("invalid alert category %q", a.Category)
	}
	if !ValidSeverity(a.Severity) {
		return fmt.Errorf("invalid alert severity %q", a.Severity)
	}
	if a.Message == "" {
		return fmt.Errorf("alert message is required")
	}
	if a.Analysis.Confidence < 0 || a.Analysis.Confidence > 100 {
		return fmt.Errorf("analysis confidence %d out of range [0,100]", a.Analysis.Confidence)
	}
	return nil
}
