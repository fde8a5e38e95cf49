package toonstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"toonarr/internal/config"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestClient(t *testing.T, siteURL string, maxRetries int) *Client {
	t.Helper()
	cfg := &config.Config{
		SiteURL:      siteURL,
		Referer:      siteURL,
		MaxRetries:   maxRetries,
		FetchTimeout: 5 * time.Second,
	}
	c, err := NewClient(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	c.retryDelay = time.Millisecond
	return c
}

func TestFetchHTMLRetriesUntilSuccess(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", 3)
	body, err := c.FetchHTML(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("FetchHTML failed: %v", err)
	}
	if body != "<html>ok</html>" {
		t.Errorf("body = %q", body)
	}
	if got := atomic.LoadInt64(&hits); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestFetchHTMLExhaustsAttemptBudget(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", 3)
	_, err := c.FetchHTML(context.Background(), srv.URL+"/page")
	if err == nil {
		t.Fatal("FetchHTML succeeded, want exhaustion error")
	}

	var exhausted *FetchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error type %T, want *FetchExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("reported %d attempts, want 3", exhausted.Attempts)
	}
	if got := atomic.LoadInt64(&hits); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestFetchHTMLSendsIdentityHeaders(t *testing.T) {
	var ua, referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		referer = r.Header.Get("Referer")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", 1)
	if _, err := c.FetchHTML(context.Background(), srv.URL+"/page"); err != nil {
		t.Fatalf("FetchHTML failed: %v", err)
	}

	known := false
	for _, candidate := range userAgents {
		if ua == candidate {
			known = true
			break
		}
	}
	if !known {
		t.Errorf("user agent %q not from the pool", ua)
	}
	if referer != srv.URL+"/" {
		t.Errorf("referer = %q, want %q", referer, srv.URL+"/")
	}
}

func TestFetchSeasonFragmentShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain html", `<ul id="episode_by_temp"></ul>`, `<ul id="episode_by_temp"></ul>`},
		{"json data field", `{"data": "<li>ep</li>"}`, "<li>ep</li>"},
		{"json html field", `{"html": "<li>ep</li>"}`, "<li>ep</li>"},
		{"other json object", `{"foo": 1}`, `{"foo": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("bad form: %v", err)
				}
				if r.PostForm.Get("action") != seasonAjaxAction {
					t.Errorf("action = %q", r.PostForm.Get("action"))
				}
				if r.PostForm.Get("post") != "42" || r.PostForm.Get("season") != "2" {
					t.Errorf("post=%q season=%q", r.PostForm.Get("post"), r.PostForm.Get("season"))
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL+"/", 1)
			fragment, err := c.FetchSeasonFragment(context.Background(), 42, 2, "")
			if err != nil {
				t.Fatalf("FetchSeasonFragment failed: %v", err)
			}
			if fragment != tt.want {
				t.Errorf("fragment = %q, want %q", fragment, tt.want)
			}
		})
	}
}

func TestFetchSeasonFragmentEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   "))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", 1)
	_, err := c.FetchSeasonFragment(context.Background(), 42, 1, "")
	if err == nil {
		t.Fatal("FetchSeasonFragment succeeded on blank body")
	}
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse in chain", err)
	}
}

func TestTotalAttempts(t *testing.T) {
	tests := []struct {
		maxRetries int
		proxies    int
		want       int
	}{
		{3, 0, 3},
		{3, 2, 6},
		{1, 4, 4},
	}
	for _, tt := range tests {
		c := &Client{maxRetries: tt.maxRetries, proxyCount: tt.proxies}
		if got := c.totalAttempts(); got != tt.want {
			t.Errorf("totalAttempts(retries=%d, proxies=%d) = %d, want %d",
				tt.maxRetries, tt.proxies, got, tt.want)
		}
	}
}

func TestNormalizeFragment(t *testing.T) {
	if _, err := normalizeFragment([]byte(`{"data": "  "}`)); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("blank data field: err = %v, want ErrEmptyResponse", err)
	}
	if html, err := normalizeFragment([]byte("{not json")); err != nil || html != "{not json" {
		t.Errorf("malformed json: html=%q err=%v, want passthrough", html, err)
	}
}
