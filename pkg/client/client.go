// Package client talks to a running gslauncher daemon over its HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides HTTP client functionality to communicate with the daemon
type Client struct {
	baseURL string
	client  *http.Client
	stream  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err if it is an *APIError, else 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8000/api",
		Timeout: 30 * time.Second,
	}
}

// New creates a new API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
		stream:  &http.Client{},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	var st DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return st.OK
}

func (c *Client) List(ctx context.Context) ([]Server, error) {
	var out []Server
	err := c.do(ctx, http.MethodGet, "/servers", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (Server, error) {
	var out Server
	err := c.do(ctx, http.MethodGet, serverPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) Add(ctx context.Context, n NewServer) (Server, error) {
	var out Server
	err := c.do(ctx, http.MethodPost, "/servers", n, &out)
	return out, err
}

func (c *Client) Update(ctx context.Context, id string, p ServerPatch) (Server, error) {
	var out Server
	err := c.do(ctx, http.MethodPut, serverPath(id, ""), p, &out)
	return out, err
}

func (c *Client) Remove(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, serverPath(id, ""), nil, nil)
}

// Start launches a configured server.
func (c *Client) Start(ctx context.Context, id string) (Server, error) {
	c.logger.Debug("Starting server", "id", id)
	var out Server
	err := c.do(ctx, http.MethodPost, serverPath(id, "start"), nil, &out)
	return out, err
}

// Stop stops a server and reports whether it is confirmed terminated. Zero
// options use the daemon's defaults.
func (c *Client) Stop(ctx context.Context, id string, opts StopOptions) (bool, error) {
	q := url.Values{}
	if opts.Command != "" {
		q.Set("command", opts.Command)
	}
	if opts.Timeout > 0 {
		q.Set("timeout", opts.Timeout.String())
	}
	p := serverPath(id, "stop")
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	var out struct {
		Stopped bool `json:"stopped"`
	}
	err := c.do(ctx, http.MethodPost, p, nil, &out)
	return out.Stopped, err
}

// Restart asks the daemon to restart a server in the background.
func (c *Client) Restart(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, serverPath(id, "restart"), nil, nil)
}

// SendCommand writes a console command to a running server. It returns false
// without error when the daemon reports the server is not running.
func (c *Client) SendCommand(ctx context.Context, id, command string) (bool, error) {
	err := c.do(ctx, http.MethodPost, serverPath(id, "command"), map[string]string{"command": command}, nil)
	if StatusCode(err) == http.StatusConflict {
		return false, nil
	}
	return err == nil, err
}

// Console returns the buffered console of a server.
func (c *Client) Console(ctx context.Context, id string) (string, error) {
	resp, err := c.send(ctx, c.client, http.MethodGet, serverPath(id, "console"), nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read console: %w", err)
	}
	return string(b), nil
}

func (c *Client) Status(ctx context.Context, id string) (ServerStatus, error) {
	var out ServerStatus
	err := c.do(ctx, http.MethodGet, serverPath(id, "status"), nil, &out)
	return out, err
}

// Stream calls fn for every console line of a server until ctx is done or
// the daemon closes the stream.
func (c *Client) Stream(ctx context.Context, id string, fn func(line string)) error {
	resp, err := c.send(ctx, c.stream, http.MethodGet, serverPath(id, "stream"), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	sc := bufio.NewScanner(resp.Body)
	var event string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:") && event == "line":
			fn(strings.TrimPrefix(line, "data:"))
		case line == "":
			event = ""
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func serverPath(id, action string) string {
	p := "/servers/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}
	resp, err := c.send(ctx, c.client, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs the request and returns the response of a 2xx status; any
// other status is turned into an *APIError.
func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "error", err, "url", req.URL.String())
		return nil, fmt.Errorf("do request: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	return nil, c.handleErrorResponse(resp)
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	ae := &APIError{StatusCode: resp.StatusCode}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err == nil {
		ae.Message = errorResp.Error
	}
	c.logger.Debug("API request failed", "error", ae.Message, "status", resp.StatusCode)
	return ae
}
