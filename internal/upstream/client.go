package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config carries the OAuth2 client credentials and connection parameters
// needed to construct a Client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	License      string
	Username     string
	Password     string
	Timeout      time.Duration
}

// Client is the gateway's upstream API client: OAuth2 token lifecycle plus
// typed endpoints for calendar events, occurrences, and addresses. One
// Client is constructed per backend instance and shared by all request
// handlers.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	logger  *slog.Logger
	tokens  *tokenManager
}

// New constructs a Client. The underlying http.Client's connection pool is
// opened here and lives for the process lifetime; it is safe for
// concurrent use without additional locking.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base URL: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: base,
		logger:  logger,
	}
	c.tokens = &tokenManager{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		license:      cfg.License,
		username:     cfg.Username,
		password:     cfg.Password,
		doRaw:        c.doRaw,
	}
	return c, nil
}

// doRaw issues an unauthenticated request against the configured base URL.
// Used only by tokenManager to request/refresh tokens, which must not
// themselves carry a bearer token.
func (c *Client) doRaw(ctx context.Context, method, path string, body any) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid path %q: %w", path, err)
	}
	full := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("upstream: encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, full.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyNetworkError(err)
	}
	return resp, nil
}

// doAuthenticated issues an authenticated request, attaches query params,
// decodes a 2xx JSON response body into out (if non-nil), and maps
// non-2xx responses to the error taxonomy.
func (c *Client) doAuthenticated(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	token, err := c.tokens.accessToken(ctx)
	if err != nil {
		return err
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("upstream: invalid path %q: %w", path, err)
	}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	full := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("upstream: encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, full.String(), reader)
	if err != nil {
		return fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.Debug("upstream request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorPrefix(resp.Body)
		return classifyStatus(resp.StatusCode, msg)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("upstream: decode response: %w", err)
	}
	return nil
}

func readErrorPrefix(r io.Reader) string {
	buf := make([]byte, 512)
	n, _ := r.Read(buf)
	return strings.TrimSpace(string(buf[:n]))
}

func intParam(v int) string { return strconv.Itoa(v) }
