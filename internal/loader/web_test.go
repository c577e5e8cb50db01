package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/policygraph/internal/model"
)

func testHTTPConfig() model.HTTPConfig {
	cfg := model.DefaultConfig().HTTP
	cfg.RequestsPerSecond = 100
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestWebLoader_HTMLAndText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.WriteHeader(http.StatusNotFound)
		case "/policy.html":
			if !strings.HasPrefix(r.Header.Get("User-Agent"), "policygraph") {
				t.Errorf("Unexpected user agent %q", r.Header.Get("User-Agent"))
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><body><p>Retention is 30 days.</p><script>x()</script></body></html>`))
		case "/policy.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("Plain policy text"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	l := NewWebLoader(testHTTPConfig(), nil)

	got, err := l.Load(context.Background(), server.URL+"/policy.html")
	if err != nil {
		t.Fatalf("Load html: %v", err)
	}
	if got != "Retention is 30 days." {
		t.Errorf("Unexpected html text %q", got)
	}

	got, err = l.Load(context.Background(), server.URL+"/policy.txt")
	if err != nil {
		t.Fatalf("Load text: %v", err)
	}
	if got != "Plain policy text" {
		t.Errorf("Unexpected text %q", got)
	}

	if _, err := l.Load(context.Background(), server.URL+"/missing"); err == nil {
		t.Error("Expected error for 404")
	}
}

func TestWebLoader_ArticleExtraction(t *testing.T) {
	paragraph := "Customer records, including billing details, contact history and signed agreements, must be stored in encrypted form on servers located within the European Union, and access to them is limited to staff with a documented business need."
	page := `<html><head><title>Data Policy</title></head><body>
<div class="sidebar">Subscribe to our newsletter for product updates</div>
<article><h1>Data Storage Policy</h1>
<p>` + paragraph + `</p>
<p>` + paragraph + `</p>
<p>` + paragraph + `</p>
</article>
<div class="footer">Copyright Example Corp</div>
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	got, err := NewWebLoader(testHTTPConfig(), nil).Load(context.Background(), server.URL+"/policy")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(got, "stored in encrypted form") {
		t.Errorf("Expected article text, got %q", got)
	}
	if strings.Contains(got, "newsletter") {
		t.Errorf("Expected sidebar to be dropped, got %q", got)
	}
}

func TestWebLoader_RespectsRobots(t *testing.T) {
	var fetched atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		fetched.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	l := NewWebLoader(testHTTPConfig(), nil)

	_, err := l.Load(context.Background(), server.URL+"/private/policy.txt")
	if !errors.Is(err, ErrDisallowed) {
		t.Errorf("Expected ErrDisallowed, got %v", err)
	}
	if fetched.Load() != 0 {
		t.Error("Disallowed document should not be fetched")
	}

	if _, err := l.Load(context.Background(), server.URL+"/public/policy.txt"); err != nil {
		t.Errorf("Public path should load: %v", err)
	}

	cfg := testHTTPConfig()
	cfg.RespectRobots = false
	if _, err := NewWebLoader(cfg, nil).Load(context.Background(), server.URL+"/private/policy.txt"); err != nil {
		t.Errorf("Robots checks disabled, expected success: %v", err)
	}
}

func TestWebLoader_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer server.Close()

	cfg := testHTTPConfig()
	cfg.MaxBodyBytes = 32
	_, err := NewWebLoader(cfg, nil).Load(context.Background(), server.URL+"/big.txt")
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}

func TestRegistry_RoutesURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("remote policy"))
	}))
	defer server.Close()

	r := NewRegistry(Options{HTTP: testHTTPConfig()})
	got, err := r.Load(context.Background(), server.URL+"/doc")
	if err != nil || got != "remote policy" {
		t.Errorf("Expected remote text, got %q (%v)", got, err)
	}
}

func TestHostLimiter(t *testing.T) {
	l := NewHostLimiter(0, 1)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := l.Wait(ctx, "https://a.example/doc", 0); err != nil {
			t.Fatalf("Unlimited limiter should not block: %v", err)
		}
	}

	slow := NewHostLimiter(0.001, 1)
	if err := slow.Wait(ctx, "https://b.example/doc", 0); err != nil {
		t.Fatal(err)
	}
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := slow.Wait(short, "https://b.example/other", 0); err == nil {
		t.Error("Second request to the same host should wait past the deadline")
	}
	if err := slow.Wait(ctx, "https://c.example/doc", 0); err != nil {
		t.Errorf("Other hosts have their own bucket: %v", err)
	}
}

func TestRobotsChecker_CrawlDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: policygraph\nCrawl-delay: 2\nDisallow: /drafts\n"))
	}))
	defer server.Close()

	rc := NewRobotsChecker(server.Client(), "policygraph/0.1 (+https://example.com)")
	allowed, delay, err := rc.CanFetch(context.Background(), server.URL+"/final/policy")
	if err != nil || !allowed {
		t.Fatalf("Expected allowed, got %v (%v)", allowed, err)
	}
	if delay != 2*time.Second {
		t.Errorf("Expected 2s crawl delay, got %v", delay)
	}

	allowed, _, _ = rc.CanFetch(context.Background(), server.URL+"/drafts/v2")
	if allowed {
		t.Error("Expected /drafts to be disallowed for policygraph")
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { sleep = orig })
}

func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if attempts.Add(1) <= failures {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	t.Cleanup(server.Close)
	return server, &attempts
}

func TestWebLoader_Retries(t *testing.T) {
	noSleep(t)

	tests := []struct {
		name         string
		failures     int32
		status       int
		wantErr      bool
		wantAttempts int32
	}{
		{"transient then success", 2, http.StatusServiceUnavailable, false, 3},
		{"429 retried", 1, http.StatusTooManyRequests, false, 2},
		{"retries exhausted", 10, http.StatusBadGateway, true, maxAttempts},
		{"404 not retried", 10, http.StatusNotFound, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := flakyServer(t, tt.failures, tt.status)

			got, err := NewWebLoader(testHTTPConfig(), nil).Load(context.Background(), server.URL+"/policy.txt")
			if tt.wantErr {
				var status *StatusError
				if !errors.As(err, &status) || status.Code != tt.status {
					t.Errorf("Expected status %d error, got %v", tt.status, err)
				}
			} else if err != nil || got != "recovered" {
				t.Errorf("Expected recovered body, got %q (%v)", got, err)
			}
			if attempts.Load() != tt.wantAttempts {
				t.Errorf("Expected %d attempts, got %d", tt.wantAttempts, attempts.Load())
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"nil", live, nil, false},
		{"503", live, &StatusError{Code: 503}, true},
		{"500 wrapped", live, fmt.Errorf("fetch: %w", &StatusError{Code: 500}), true},
		{"429", live, &StatusError{Code: 429}, true},
		{"404", live, &StatusError{Code: 404}, false},
		{"403", live, &StatusError{Code: 403}, false},
		{"connection refused", live, &transportError{err: errors.New("connection refused")}, true},
		{"cancelled context", cancelled, &StatusError{Code: 503}, false},
		{"body too large", live, ErrTooLarge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.ctx, tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
