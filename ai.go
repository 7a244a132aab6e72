package threatlens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAINotConfigured is returned when no provider API key is set.
var ErrAINotConfigured = errors.New("ai analyzer: no API key configured")

const defaultAIBaseURL = "https://openrouter.ai/api/v1"

// IncidentAnalysis is the free-text verdict returned by the AI
// collaborator for one alert.
type IncidentAnalysis struct {
	RootCause           string `json:"RootCause"`
	PlainEnglishSummary string `json:"PlainEnglishSummary"`
	RemediationAction   string `json:"RemediationAction"`
}

// AIAnalyzer asks an OpenRouter-compatible chat completions endpoint
// to explain an alert. Failures degrade to templated fallbacks; the
// dashboard always gets an analysis.
type AIAnalyzer struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewAIAnalyzer builds an analyzer. An empty baseURL selects
// OpenRouter; client defaults to the shared pooled AI client.
func NewAIAnalyzer(apiKey, model, baseURL string, client *http.Client) *AIAnalyzer {
	if model == "" {
		model = "openai/gpt-3.5-turbo"
	}
	if baseURL == "" {
		baseURL = defaultAIBaseURL
	}
	if client == nil {
		client = AIClient()
	}
	return &AIAnalyzer{apiKey: apiKey, model: model, baseURL: baseURL, client: client}
}

// Configured reports whether an API key was supplied.
func (a *AIAnalyzer) Configured() bool { return a.apiKey != "" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze produces an incident analysis for the alert. Alerts without
// a meaningful payload are answered from a template without calling
// the provider; provider or parse failures also fall back to a
// template so the route never propagates an AI error.
func (a *AIAnalyzer) Analyze(ctx context.Context, alert *Alert) (*IncidentAnalysis, error) {
	if !a.Configured() {
		return nil, ErrAINotConfigured
	}
	if alert.Payload == "" || alert.Payload == "N/A" {
		return templateAnalysis(alert), nil
	}

	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "user", Content: buildPrompt(alert)},
		},
		Temperature: 0.2,
		MaxTokens:   350,
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("X-Title", "ThreatLens")

	resp, err := a.client.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("ai provider unreachable, using fallback analysis")
		return fallbackAnalysis(alert), nil
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Error().Int("status", resp.StatusCode).Msg("ai provider returned non-2xx, using fallback analysis")
		return fallbackAnalysis(alert), nil
	}

	raw, err := readBody(resp.Body)
	if err != nil {
		return fallbackAnalysis(alert), nil
	}
	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil || len(chat.Choices) == 0 {
		logger.Warn().Msg("ai provider response malformed, using fallback analysis")
		return fallbackAnalysis(alert), nil
	}

	analysis := extractAnalysis(chat.Choices[0].Message.Content)
	if analysis == nil || analysis.RootCause == "" {
		return fallbackAnalysis(alert), nil
	}
	return analysis, nil
}

func buildPrompt(alert *Alert) string {
	return fmt.Sprintf(`You are a cybersecurity expert analyzing a real security threat. Be precise and factual - do NOT hallucinate or make up information.

ALERT DATA:
- Threat Type: %s
- Severity Level: %s
- Detected Payload: %s
- Timestamp: %s

INSTRUCTIONS:
Analyze ONLY the provided data. Do not invent details. Respond with ONLY valid JSON:

{
  "RootCause": "Brief technical explanation of what caused this specific threat (1-2 sentences)",
  "PlainEnglishSummary": "Simple explanation of the impact and why it matters (1-2 sentences)",
  "RemediationAction": "Specific fix or mitigation step based on the threat type"
}

Return ONLY the JSON object, nothing else.`,
		alert.Category, alert.Severity, alert.Payload, alert.Timestamp.Format("2006-01-02 15:04:05"))
}

// extractAnalysis parses the model's reply, stripping the markdown
// code fences LLMs habitually wrap JSON in. A reply that still is not
// JSON becomes a summary-only result.
func extractAnalysis(text string) *IncidentAnalysis {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}
	var analysis IncidentAnalysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return &IncidentAnalysis{
			RootCause:           "AI Analysis format error",
			PlainEnglishSummary: cleaned,
			RemediationAction:   "Manual review required",
		}
	}
	return &analysis
}

// templateAnalysis answers alerts with no payload to analyze.
func templateAnalysis(alert *Alert) *IncidentAnalysis {
	return &IncidentAnalysis{
		RootCause: fmt.Sprintf("A %s security event was detected on the system.", alert.Category),
		PlainEnglishSummary: fmt.Sprintf(
			"This %s severity alert indicates a potential %s attack vector. Review the alert details and access logs for confirmation.",
			alert.Severity, alert.Category),
		RemediationAction: fmt.Sprintf(
			"1. Review access logs around %s\n2. Check for unauthorized access attempts\n3. Apply input validation and sanitization\n4. Enable Web Application Firewall (WAF) rules",
			alert.Timestamp.Format("2006-01-02 15:04:05")),
	}
}

// fallbackAnalysis answers when the provider fails.
func fallbackAnalysis(alert *Alert) *IncidentAnalysis {
	return &IncidentAnalysis{
		RootCause:           fmt.Sprintf("%s threat detected", alert.Category),
		PlainEnglishSummary: "Please review the threat details in the dashboard",
		RemediationAction:   "Manual investigation required",
	}
}
