package util

import (
	"net/http"
	"testing"
)

func TestNewProxyFunc_Explicit(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.internal:3128", "", "skip.example.com")

	tests := []struct {
		name    string
		target  string
		wantURL string
	}{
		{"http request uses http proxy", "http://docs.example.com/policy.html", "http://proxy.internal:3128"},
		{"https falls back to http proxy", "https://docs.example.com/policy.html", "http://proxy.internal:3128"},
		{"no_proxy host bypasses", "https://skip.example.com/policy.html", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, tt.target, nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			got, err := proxy(req)
			if err != nil {
				t.Fatalf("proxy: %v", err)
			}
			if tt.wantURL == "" {
				if got != nil {
					t.Errorf("Expected no proxy, got %v", got)
				}
				return
			}
			if got == nil || got.String() != tt.wantURL {
				t.Errorf("Expected %s, got %v", tt.wantURL, got)
			}
		})
	}
}

func TestNewProxyFunc_SeparateHTTPS(t *testing.T) {
	proxy := NewProxyFunc("http://plain:8080", "http://secure:8443", "")

	req, _ := http.NewRequest(http.MethodGet, "https://docs.example.com/", nil)
	got, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	if got == nil || got.Host != "secure:8443" {
		t.Errorf("Expected https proxy, got %v", got)
	}
}
