package toonstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"toonarr/internal/config"
	"toonarr/internal/metrics"
)

const (
	ajaxPath          = "/wp-admin/admin-ajax.php"
	seasonAjaxAction  = "action_select_season"
	defaultRetryDelay = 1 * time.Second
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// ErrEmptyResponse is returned when a season AJAX response normalizes to a
// blank string
var ErrEmptyResponse = errors.New("season response empty")

// FetchExhaustedError is returned after the whole (proxy, retry) attempt
// budget has been spent
type FetchExhaustedError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchExhaustedError) Unwrap() error {
	return e.Err
}

// Client performs resilient HTTP against the target site. Attempts rotate
// through a user-agent pool and, when configured, round-robin through
// upstream proxies; total budget is maxRetries x max(1, proxyCount).
type Client struct {
	baseURL    *url.URL
	referer    string
	maxRetries int
	proxyCount int
	retryDelay time.Duration
	logger     *logrus.Logger

	mu        sync.Mutex
	next      int
	transport []*http.Client
}

// NewClient creates a new site client from configuration
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	base, err := url.Parse(cfg.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site URL: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("site URL %q has no host", cfg.SiteURL)
	}

	var clients []*http.Client
	for _, proxy := range cfg.Proxies {
		proxyURL, err := url.Parse(proxy.URL())
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %s: %w", proxy.Host, err)
		}
		clients = append(clients, &http.Client{
			Timeout:   cfg.FetchTimeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		})
	}
	if len(clients) == 0 {
		clients = []*http.Client{{Timeout: cfg.FetchTimeout}}
	}

	return &Client{
		baseURL:    base,
		referer:    cfg.Referer,
		maxRetries: cfg.MaxRetries,
		proxyCount: len(cfg.Proxies),
		retryDelay: defaultRetryDelay,
		logger:     logger,
		transport:  clients,
	}, nil
}

// BaseURL returns the site origin used for URL normalization
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// nextClient picks the next HTTP client round-robin
func (c *Client) nextClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	client := c.transport[c.next]
	c.next = (c.next + 1) % len(c.transport)
	return client
}

// totalAttempts is the full (proxy, retry) budget for one fetch
func (c *Client) totalAttempts() int {
	proxies := c.proxyCount
	if proxies < 1 {
		proxies = 1
	}
	return c.maxRetries * proxies
}

// FetchHTML fetches a page, retrying across the configured attempt budget
// with a constant delay between attempts
func (c *Client) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	var body string
	attempts := 0

	op := func() error {
		attempts++
		metrics.FetchAttempts.Inc()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
		req.Header.Set("Referer", c.referer)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

		resp, err := c.nextClient().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	}

	if err := c.retry(ctx, pageURL, op, &attempts); err != nil {
		return "", err
	}
	return body, nil
}

// FetchSeasonFragment queries the season-listing AJAX endpoint. The endpoint
// answers with either a plain HTML string, a JSON object carrying the HTML
// in a "data" or "html" field, or some other JSON object; all shapes are
// normalized to a string.
func (c *Client) FetchSeasonFragment(ctx context.Context, postID, season int, referer string) (string, error) {
	if referer == "" {
		referer = c.referer
	}
	endpoint := c.baseURL.Scheme + "://" + c.baseURL.Host + ajaxPath

	form := url.Values{}
	form.Set("action", seasonAjaxAction)
	form.Set("season", strconv.Itoa(season))
	form.Set("post", strconv.Itoa(postID))
	payload := form.Encode()

	var fragment string
	attempts := 0

	op := func() error {
		attempts++
		metrics.FetchAttempts.Inc()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Referer", referer)
		req.Header.Set("Origin", c.baseURL.Scheme+"://"+c.baseURL.Host)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")

		resp, err := c.nextClient().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		normalized, err := normalizeFragment(data)
		if err != nil {
			return err
		}
		fragment = normalized
		return nil
	}

	if err := c.retry(ctx, endpoint, op, &attempts); err != nil {
		return "", err
	}
	return fragment, nil
}

// retry runs op under the constant-delay attempt budget and converts
// exhaustion into a FetchExhaustedError
func (c *Client) retry(ctx context.Context, target string, op backoff.Operation, attempts *int) error {
	total := c.totalAttempts()
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(total-1)),
		ctx,
	)

	notify := func(err error, _ time.Duration) {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url":     target,
			"attempt": *attempts,
			"total":   total,
		}).Warn("Fetch failed, will retry")
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		metrics.FetchFailures.Inc()
		return &FetchExhaustedError{URL: target, Attempts: *attempts, Err: err}
	}
	return nil
}

// normalizeFragment flattens the three known AJAX response shapes to a
// string and rejects blank results
func normalizeFragment(raw []byte) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", ErrEmptyResponse
	}

	html := trimmed
	if trimmed[0] == '{' {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			if s, ok := payload["data"].(string); ok {
				html = s
			} else if s, ok := payload["html"].(string); ok {
				html = s
			}
			// any other object stays as its own serialization
		}
	}

	if strings.TrimSpace(html) == "" {
		return "", ErrEmptyResponse
	}
	return html, nil
}
