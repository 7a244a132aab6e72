package threatlens

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Finding is one issue discovered by a passive scan of a target URL.
type Finding struct {
	ID          string    `db:"id" json:"id"`
	ScanID      string    `db:"scan_id" json:"scanId"`
	TargetURL   string    `db:"target_url" json:"targetUrl"`
	Category    string    `db:"category" json:"category"`
	Severity    Severity  `db:"severity" json:"severity"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Remediation string    `db:"remediation" json:"remediation"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// headerCheck describes one security header the scanner expects.
type headerCheck struct {
	header      string
	severity    Severity
	title       string
	description string
}

var headerChecks = []headerCheck{
	{
		header:      "Content-Security-Policy",
		severity:    SeverityHigh,
		title:       "CSP Missing",
		description: "Content Security Policy header is missing, increasing XSS risk.",
	},
	{
		header:      "X-Frame-Options",
		severity:    SeverityMedium,
		title:       "Clickjacking Risk",
		description: "X-Frame-Options header is missing.",
	},
	{
		header:      "Strict-Transport-Security",
		severity:    SeverityHigh,
		title:       "HSTS Not Enforced",
		description: "Strict-Transport-Security header is missing.",
	},
	{
		header:      "X-Content-Type-Options",
		severity:    SeverityLow,
		title:       "MIME Sniffing Risk",
		description: "X-Content-Type-Options header is missing.",
	},
}

// Scanner performs passive header and TLS certificate checks against a
// target URL. A few sequential probes, no state machine.
type Scanner struct {
	client     *http.Client
	findings   FindingStore
	tlsTimeout time.Duration
}

func NewScanner(findings FindingStore, client *http.Client) *Scanner {
	if client == nil {
		client = ScanClient()
	}
	return &Scanner{client: client, findings: findings, tlsTimeout: 10 * time.Second}
}

// Scan runs the header and TLS checks concurrently, persists whatever
// they found under a fresh scan id, and returns it with the findings.
func (s *Scanner) Scan(ctx context.Context, targetURL string) (string, []Finding, error) {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return "", nil, fmt.Errorf("invalid target url: %w", err)
	}
	scanID := uuid.NewString()
	logger.Info().Str("scanId", scanID).Str("target", targetURL).Msg("starting passive scan")

	headerCh := make(chan []Finding, 1)
	tlsCh := make(chan []Finding, 1)
	go func() { headerCh <- s.CheckHeaders(ctx, targetURL, scanID) }()
	go func() { tlsCh <- s.CheckTLS(targetURL, scanID) }()
	findings := append(<-headerCh, <-tlsCh...)

	if len(findings) > 0 && s.findings != nil {
		if err := s.findings.SaveFindings(ctx, findings); err != nil {
			return "", nil, fmt.Errorf("persist scan findings: %w", err)
		}
	}
	return scanID, findings, nil
}

// CheckHeaders probes the target once and reports each missing
// security header. An unreachable target yields a single low-severity
// scan-error finding.
func (s *Scanner) CheckHeaders(ctx context.Context, targetURL, scanID string) []Finding {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return []Finding{scanErrorFinding(scanID, targetURL, err)}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return []Finding{scanErrorFinding(scanID, targetURL, err)}
	}
	defer drainAndClose(resp.Body)

	var findings []Finding
	for _, check := range headerChecks {
		if resp.Header.Get(check.header) != "" {
			continue
		}
		findings = append(findings, Finding{
			ScanID:      scanID,
			TargetURL:   targetURL,
			Category:    "HEADER",
			Severity:    check.severity,
			Title:       check.title,
			Description: check.description,
			Remediation: fmt.Sprintf("Configure your server to send the %s header.", strings.ToLower(check.header)),
		})
	}
	return findings
}

// CheckTLS inspects the target's certificate: HTTPS enforcement,
// presence, chain validity against the system roots, and expiry.
func (s *Scanner) CheckTLS(targetURL, scanID string) []Finding {
	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	if u.Scheme != "https" {
		return []Finding{{
			ScanID:      scanID,
			TargetURL:   targetURL,
			Category:    "TLS/SSL",
			Severity:    SeverityHigh,
			Title:       "Not Using HTTPS",
			Description: "Target is not using a secure HTTPS connection.",
			Remediation: "Enforce HTTPS on your server.",
		}}
	}

	port := u.Port()
	if port == "" {
		port = "443"
	}
	dialer := &net.Dialer{Timeout: s.tlsTimeout}
	// Verification is done by hand below so an invalid certificate can
	// still be inspected instead of aborting the handshake.
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(u.Hostname(), port), &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         u.Hostname(),
	})
	if err != nil {
		return []Finding{{
			ScanID:      scanID,
			TargetURL:   targetURL,
			Category:    "TLS/SSL",
			Severity:    SeverityMedium,
			Title:       "SSL Connection Failed",
			Description: err.Error(),
			Remediation: "Check server SSL configuration.",
		}}
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return []Finding{{
			ScanID:      scanID,
			TargetURL:   targetURL,
			Category:    "TLS/SSL",
			Severity:    SeverityCritical,
			Title:       "No Certificate",
			Description: "No SSL certificate found.",
			Remediation: "Install a valid SSL certificate.",
		}}
	}

	var findings []Finding
	leaf := certs[0]
	opts := x509.VerifyOptions{
		DNSName:       u.Hostname(),
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range certs[1:] {
		opts.Intermediates.AddCert(cert)
	}
	if _, err := leaf.Verify(opts); err != nil {
		findings = append(findings, Finding{
			ScanID:      scanID,
			TargetURL:   targetURL,
			Category:    "TLS/SSL",
			Severity:    SeverityHigh,
			Title:       "Invalid Certificate",
			Description: fmt.Sprintf("Certificate is invalid. Reason: %v", err),
			Remediation: "Renew or replace the SSL certificate.",
		})
	}
	if leaf.NotAfter.Before(time.Now()) {
		findings = append(findings, Finding{
			ScanID:      scanID,
			TargetURL:   targetURL,
			Category:    "TLS/SSL",
			Severity:    SeverityHigh,
			Title:       "Certificate Expired",
			Description: fmt.Sprintf("Certificate expired on %s.", leaf.NotAfter.Format(time.RFC3339)),
			Remediation: "Renew the certificate immediately.",
		})
	}
	return findings
}

func scanErrorFinding(scanID, targetURL string, err error) Finding {
	return Finding{
		ScanID:      scanID,
		TargetURL:   targetURL,
		Category:    "OTHER",
		Severity:    SeverityLow,
		Title:       "Scan Error",
		Description: fmt.Sprintf("Could not access target for header check: %v", err),
		Remediation: "Ensure the URL is correct and accessible.",
	}
}
