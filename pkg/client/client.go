package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loykin/launchr/internal/readiness"
)

// Client talks to a launchr daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	CACert   string       // CA certificate file for HTTPS daemons
	Insecure bool         // Skip TLS verification
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000",
		Timeout: 10 * time.Second,
	}
}

// New creates a new launchr API client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.Insecure || config.CACert != "" {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}, nil
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Start asks the daemon to start the managed process. It returns once the daemon
// has answered, without waiting for the application to become ready.
func (c *Client) Start(ctx context.Context) (*StartResponse, error) {
	var out StartResponse
	if _, err := c.getJSON(ctx, "/start", &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.logger.Debug("Start requested", "status", out.Status, "pid", out.PID)
	return &out, nil
}

// Status returns the daemon's view of the managed process.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if _, err := c.getJSON(ctx, "/status", &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready runs one readiness check through the daemon.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	var out struct {
		Ready bool `json:"ready"`
	}
	code, err := c.getJSON(ctx, "/ready", &out, http.StatusOK, http.StatusServiceUnavailable)
	if err != nil {
		return false, err
	}
	return code == http.StatusOK && out.Ready, nil
}

// WaitReady polls Ready every interval until it succeeds or timeout elapses.
func (c *Client) WaitReady(ctx context.Context, interval, timeout time.Duration) error {
	probe := readiness.Func{
		Name: c.baseURL + "/ready",
		Check: func(ctx context.Context) bool {
			ok, err := c.Ready(ctx)
			if err != nil {
				c.logger.Debug("Readiness check failed", "error", err)
			}
			return ok
		},
	}
	return readiness.Wait(ctx, probe, interval, timeout)
}

// Launch triggers a start and then waits according to opts.Mode.
// In poll mode a readiness timeout is returned together with the partial result.
func (c *Client) Launch(ctx context.Context, opts LaunchOptions) (*LaunchResult, error) {
	begin := time.Now()
	sr, err := c.Start(ctx)
	if err != nil {
		return nil, err
	}
	res := &LaunchResult{TargetURL: sr.TargetURL, Outcome: sr.Status}

	switch opts.Mode {
	case ModeDelay:
		grace := opts.GracePeriod
		if grace <= 0 {
			grace = 3 * time.Second
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return res, ctx.Err()
		}
	case ModePoll, "":
		err = c.WaitReady(ctx, opts.Interval, opts.Timeout)
		res.Ready = err == nil
	default:
		return res, fmt.Errorf("unknown launch mode %q", opts.Mode)
	}
	res.Elapsed = time.Since(begin)
	c.logger.Debug("Launch finished", "target", res.TargetURL, "ready", res.Ready, "elapsed", res.Elapsed)
	return res, err
}

// getJSON performs a GET and decodes the body into out when the status is one of ok.
func (c *Client) getJSON(ctx context.Context, path string, out any, ok ...int) (int, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	for _, code := range ok {
		if resp.StatusCode == code {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode response: %w", err)
			}
			return resp.StatusCode, nil
		}
	}
	return resp.StatusCode, c.handleErrorResponse(resp)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: errorResp.Error}
}

// APIError is returned when the daemon answers with an error body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("API error (%d): %s", e.Status, e.Message) }

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	// #nosec G402 -- opt-in for self-signed development certificates
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: config.Insecure}
	if config.CACert != "" {
		caCert, err := os.ReadFile(config.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}
