package loki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
)

const (
	PushPath = "/loki/api/v1/push"

	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

type Credentials struct {
	ID     string
	Secret string
}

type ClientOptions struct {
	// Timeout bounds each push. The default is 10s.
	Timeout time.Duration

	// Credentials, when set, add "Authorization: Bearer <id>:<secret>".
	Credentials *Credentials

	// HTTPClient overrides the transport. Its own Timeout is replaced by
	// Timeout.
	HTTPClient *http.Client

	Logger logrus.FieldLogger
}

func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{Timeout: DefaultTimeout}
}

func (o *ClientOptions) resolve() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.InternalLogger()
	}
}

// Client pushes requests to a Loki endpoint. It never retries on its own.
type Client struct {
	url        string
	baseURL    url.URL
	headers    http.Header
	timeout    time.Duration
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewClient validates endpoint and prepares the default headers. An endpoint
// without a path is completed with PushPath.
func NewClient(endpoint string, opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = DefaultClientOptions()
	}
	opts.resolve()

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid loki url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("invalid loki url %q: scheme must be http or https", endpoint)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid loki url %q: host is not defined", endpoint)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = PushPath
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if opts.Credentials != nil {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s:%s", opts.Credentials.ID, opts.Credentials.Secret))
	}

	httpClient := &http.Client{}
	if opts.HTTPClient != nil {
		cp := *opts.HTTPClient
		httpClient = &cp
	}
	httpClient.Timeout = opts.Timeout

	return &Client{
		url:        parsed.String(),
		baseURL:    url.URL{Scheme: parsed.Scheme, Host: parsed.Host, User: parsed.User},
		headers:    headers,
		timeout:    opts.Timeout,
		httpClient: httpClient,
		log:        opts.Logger.WithField("component", "loki_client"),
	}, nil
}

func (c *Client) URL() string { return c.url }

func (c *Client) Timeout() time.Duration { return c.timeout }

// Headers returns a copy of the headers sent with every push.
func (c *Client) Headers() http.Header {
	return c.headers.Clone()
}

// TransportError reports a push that did not reach a 2xx response.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("loki push failed: %v", e.Err)
	}
	return fmt.Sprintf("loki returned status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the push failed on a deadline.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Send performs one POST of the serialized request.
func (c *Client) Send(ctx context.Context, req *Request) error {
	body, err := req.Serialize()
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range c.headers {
		httpReq.Header[key] = append([]string(nil), values...)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.WithFields(logrus.Fields{
		"streams": len(req.Streams),
		"entries": req.Entries(),
		"bytes":   len(body),
	}).Debug("pushed batch to loki")

	return nil
}

// Ready probes the /ready endpoint of the Loki instance.
func (c *Client) Ready(ctx context.Context) error {
	readyURL := c.baseURL
	readyURL.Path = "/ready"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readyURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: fmt.Errorf("failed to reach loki: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{StatusCode: resp.StatusCode, Body: string(responseBody)}
	}
	return nil
}
