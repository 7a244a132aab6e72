package threatlens

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatStub(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", auth)
		}
		w.WriteHeader(status)
		if status >= 200 && status < 300 {
			body, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": content}},
				},
			})
			w.Write(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeNotConfigured(t *testing.T) {
	a := NewAIAnalyzer("", "", "", http.DefaultClient)
	alert := NewDetectionAlert(CategoryXSS, "1.1.1.1", "/x", "payload")
	if _, err := a.Analyze(context.Background(), alert); !errors.Is(err, ErrAINotConfigured) {
		t.Fatalf("err = %v, want ErrAINotConfigured", err)
	}
}

func TestAnalyzeParsesFencedJSON(t *testing.T) {
	reply := "```json\n{\"RootCause\":\"tainted query input\",\"PlainEnglishSummary\":\"attacker can read the database\",\"RemediationAction\":\"use parameterized queries\"}\n```"
	srv := chatStub(t, http.StatusOK, reply)

	a := NewAIAnalyzer("test-key", "", srv.URL, srv.Client())
	alert := NewDetectionAlert(CategorySQLInjection, "1.1.1.1", "/x", `{"q":"select * from users"}`)
	analysis, err := a.Analyze(context.Background(), alert)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.RootCause != "tainted query input" {
		t.Fatalf("root cause = %q", analysis.RootCause)
	}
	if analysis.RemediationAction != "use parameterized queries" {
		t.Fatalf("remediation = %q", analysis.RemediationAction)
	}
}

func TestAnalyzeEmptyPayloadUsesTemplate(t *testing.T) {
	// No HTTP server: the provider must not be called at all.
	a := NewAIAnalyzer("test-key", "", "http://127.0.0.1:0", http.DefaultClient)
	alert := NewDetectionAlert(CategoryBruteForce, "1.1.1.1", "/login", "")
	alert.Payload = "N/A"
	analysis, err := a.Analyze(context.Background(), alert)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.RootCause == "" || analysis.RemediationAction == "" {
		t.Fatalf("template analysis incomplete: %+v", analysis)
	}
}

func TestAnalyzeProviderErrorFallsBack(t *testing.T) {
	srv := chatStub(t, http.StatusInternalServerError, "")
	a := NewAIAnalyzer("test-key", "", srv.URL, srv.Client())
	alert := NewDetectionAlert(CategoryXSS, "1.1.1.1", "/x", "some payload")
	analysis, err := a.Analyze(context.Background(), alert)
	if err != nil {
		t.Fatalf("provider failure must not surface: %v", err)
	}
	if analysis.RemediationAction != "Manual investigation required" {
		t.Fatalf("fallback not used: %+v", analysis)
	}
}

func TestAnalyzeUnreachableProviderFallsBack(t *testing.T) {
	a := NewAIAnalyzer("test-key", "", "http://127.0.0.1:1", http.DefaultClient)
	alert := NewDetectionAlert(CategoryXSS, "1.1.1.1", "/x", "some payload")
	analysis, err := a.Analyze(context.Background(), alert)
	if err != nil {
		t.Fatalf("unreachable provider must not surface: %v", err)
	}
	if analysis == nil {
		t.Fatal("nil analysis")
	}
}

func TestExtractAnalysis(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // expected RootCause
	}{
		{
			name: "plain json",
			in:   `{"RootCause":"rc","PlainEnglishSummary":"s","RemediationAction":"ra"}`,
			want: "rc",
		},
		{
			name: "fenced json",
			in:   "```json\n{\"RootCause\":\"rc\",\"PlainEnglishSummary\":\"s\",\"RemediationAction\":\"ra\"}\n```",
			want: "rc",
		},
		{
			name: "prose reply",
			in:   "The attacker injected a script tag.",
			want: "AI Analysis format error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractAnalysis(tt.in)
			if got == nil {
				t.Fatal("nil analysis")
			}
			if got.RootCause != tt.want {
				t.Fatalf("root cause = %q, want %q", got.RootCause, tt.want)
			}
		})
	}

	if got := extractAnalysis("   "); got != nil {
		t.Fatalf("blank reply should yield nil, got %+v", got)
	}
}
