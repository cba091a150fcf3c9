// Package rest implements the live key broker backend: a client for the
// attestation agent's local resource endpoint, speaking JSON over a unix
// socket or TCP. The agent brokers the attested channel; this client only
// ever sees released resource bytes.
package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v4"
	"github.com/liudalibj/image-rs/internal/logging"
	"github.com/liudalibj/image-rs/kbc"
)

const (
	resourceEndpoint = "/v1/resource"
	defaultTimeout   = 10 * time.Second

	// tokenExpirySlack keeps a token from being used right at its expiry
	// edge while a request is in flight.
	tokenExpirySlack = 30 * time.Second
)

// Config configures the connection to the attestation agent.
type Config struct {
	// Endpoint is the agent address, either "unix:///path/to/agent.sock"
	// or "http(s)://host:port".
	Endpoint string
	// TokenPath optionally names a file holding the bearer token the
	// in-guest agent keeps refreshed. Empty disables request auth.
	TokenPath string
	// Timeout bounds a single request attempt. Zero means a default.
	Timeout time.Duration
	// Logger receives retry notices. nil means the default logger.
	Logger logging.Logger
}

// Client is the live KBC backend. It holds no session state besides idle
// HTTP connections and a cached bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenPath  string
	logger     logging.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type getResourceRequest struct {
	ResourcePath string            `json:"resource_path"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

type getResourceResponse struct {
	Resource string `json:"resource"`
}

// NewClient connects to the agent at cfg.Endpoint. For unix endpoints the
// socket is dialed once so a missing agent surfaces at startup rather than
// on the first pull.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.SimpleLogger()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing agent endpoint %q: %w", cfg.Endpoint, err)
	}

	client := &Client{
		tokenPath: cfg.TokenPath,
		logger:    logger,
	}
	switch u.Scheme {
	case "unix":
		socketPath := u.Path
		conn, err := net.DialTimeout("unix", socketPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to the attestation agent socket [%s]: %w", socketPath, err)
		}
		conn.Close()
		client.httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		}
		client.baseURL = "http://localhost"
	case "http", "https":
		client.httpClient = &http.Client{Timeout: timeout}
		client.baseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	default:
		return nil, fmt.Errorf("unsupported agent endpoint scheme %q, expected unix, http or https", u.Scheme)
	}
	return client, nil
}

// GetResource requests the resource at uri from the agent, retrying
// transient transport failures. Whatever remains after retries surfaces as
// *kbc.UnavailableError.
func (c *Client) GetResource(ctx context.Context, uri kbc.ResourceURI, params map[string]string) ([]byte, error) {
	body, err := json.Marshal(&getResourceRequest{
		ResourcePath: uri.Path(),
		Parameters:   params,
	})
	if err != nil {
		return nil, kbc.Unavailable(uri, err)
	}

	var resource []byte
	operation := func() error {
		data, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		resource = data
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("retrying resource request to attestation agent",
			"uri", uri.String(), "wait", wait.String(), "error", err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(defaultRetryPolicy(), ctx), notify); err != nil {
		return nil, kbc.Unavailable(uri, err)
	}
	return resource, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+resourceEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.bearerToken()
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("agent returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var envelope getResourceResponse
	dec := json.NewDecoder(resp.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&envelope); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("cannot parse resource envelope: %w", err))
	}
	resource, err := base64.StdEncoding.DecodeString(envelope.Resource)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("resource envelope is not base64: %w", err))
	}
	return resource, nil
}

// bearerToken returns the current agent-provisioned token, re-reading the
// token file when the cached one is near expiry.
func (c *Client) bearerToken() (string, error) {
	if c.tokenPath == "" {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Add(tokenExpirySlack).Before(c.tokenExpiry) {
		return c.token, nil
	}

	raw, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return "", fmt.Errorf("failed to read attestation token: %w", err)
	}
	token := strings.TrimSpace(string(raw))

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse attestation token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return "", errors.New("attestation token carries no expiry")
	}
	if !time.Now().Before(claims.ExpiresAt.Time) {
		return "", errors.New("attestation token is expired")
	}

	c.token = token
	c.tokenExpiry = claims.ExpiresAt.Time
	return token, nil
}

// Close drops idle connections to the agent.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func defaultRetryPolicy() backoff.BackOff {
	b := backoff.NewConstantBackOff(time.Millisecond * 300)
	return backoff.WithMaxRetries(b, 3)
}
