package threatlens

import (
	"strings"
	"testing"
)

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		cat  Category
		want Severity
	}{
		{CategorySQLInjection, SeverityCritical},
		{CategoryXSS, SeverityCritical},
		{CategoryBruteForce, SeverityHigh},
		{CategorySuspiciousIP, SeverityHigh},
		{CategoryScannerActivity, SeverityHigh},
		{CategoryOther, SeverityHigh},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.cat); got != tt.want {
			t.Fatalf("SeverityFor(%s) = %s, want %s", tt.cat, got, tt.want)
		}
	}
}

func TestTruncatePayload(t *testing.T) {
	short := "short payload"
	if got := TruncatePayload(short); got != short {
		t.Fatalf("short payload changed: %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := TruncatePayload(long); len([]rune(got)) != 150 {
		t.Fatalf("long payload truncated to %d runes, want 150", len([]rune(got)))
	}
	exact := strings.Repeat("y", 150)
	if got := TruncatePayload(exact); got != exact {
		t.Fatalf("150-rune payload changed: %q", got)
	}
	// Truncation must not split multibyte characters.
	multi := strings.Repeat("é", 200)
	if got := TruncatePayload(multi); len([]rune(got)) != 150 {
		t.Fatalf("multibyte payload truncated to %d runes, want 150", len([]rune(got)))
	}
}

func TestNewDetectionAlert(t *testing.T) {
	a := NewDetectionAlert(CategorySQLInjection, "10.1.2.3", "/api/users?q=x", `{"q":"select * from users"}`)

	if a.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want Critical", a.Severity)
	}
	if a.Message != "Possible SQL_INJECTION attempt detected in request payload." {
		t.Fatalf("unexpected message %q", a.Message)
	}
	if a.Status != StatusActive {
		t.Fatalf("status = %s, want Active", a.Status)
	}
	if a.SourceIP != "10.1.2.3" || a.RequestPath != "/api/users?q=x" {
		t.Fatalf("source fields not carried: %+v", a)
	}
	if a.ThreatSource.SourceCountry != "N/A" || a.Analysis.AIAnalysis != "N/A" {
		t.Fatalf("sub-records not defaulted: %+v %+v", a.ThreatSource, a.Analysis)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("fresh detection alert failed validation: %v", err)
	}
}

func TestNewDetectionAlertSentinels(t *testing.T) {
	a := NewDetectionAlert(CategoryXSS, "", "", "payload")
	if a.SourceIP != "0.0.0.0" {
		t.Fatalf("empty ip sentinel = %q, want 0.0.0.0", a.SourceIP)
	}
	if a.RequestPath != "Unknown" {
		t.Fatalf("empty path sentinel = %q, want Unknown", a.RequestPath)
	}
}

func TestAlertValidate(t *testing.T) {
	base := func() *Alert {
		return NewDetectionAlert(CategoryXSS, "1.2.3.4", "/x", "p")
	}

	a := base()
	a.Category = "BOGUS"
	if err := a.Validate(); err == nil {
		t.Fatal("invalid category accepted")
	}

	a = base()
	a.Severity = "Extreme"
	if err := a.Validate(); err == nil {
		t.Fatal("invalid severity accepted")
	}

	a = base()
	a.Message = ""
	if err := a.Validate(); err == nil {
		t.Fatal("empty message accepted")
	}

	a = base()
	a.Analysis.Confidence = 101
	if err := a.Validate(); err == nil {
		t.Fatal("out-of-range confidence accepted")
	}
}
