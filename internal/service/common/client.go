//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oshokin/cul-updater/internal/version"
)

// Client wraps an *http.Client with per-call timeouts and common headers.
type Client struct {
	// http performs the requests.
	http *http.Client
	// callTimeout bounds a whole call, body read included.
	callTimeout time.Duration
	// userAgent is sent with every request.
	userAgent string
}

// Option configures client behaviour.
type Option func(*Client)

var (
	// ErrBadHTTPStatus is returned for responses outside the 2xx range.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// errURLRequired is returned when a call gets an empty URL.
	errURLRequired = errors.New("url must be provided")
)

// WithCallTimeout sets a default timeout for calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithInsecureTLS disables certificate verification and sends serverName as SNI.
// It is meant for endpoints reached by IP address, where no certificate can match.
func WithInsecureTLS(serverName string) Option {
	return func(c *Client) {
		c.http = &http.Client{Transport: insecureTransport(http.DefaultTransport, serverName)}
	}
}

// insecureTransport clones base when it is an *http.Transport and starts from
// a fresh proxy-aware transport otherwise.
func insecureTransport(base http.RoundTripper, serverName string) *http.Transport {
	var transport *http.Transport

	if defaultTransport, ok := base.(*http.Transport); ok {
		transport = defaultTransport.Clone()
	} else {
		//nolint:exhaustruct // Zero values are the net/http defaults.
		transport = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: true,
		}
	}

	//nolint:gosec // Connecting by IP address: the certificate cannot match the dialled name.
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
	}

	return transport
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// NewClient returns a Client that uses http.DefaultClient unless configured otherwise.
func NewClient(opts ...Option) *Client {
	client := &Client{
		http:      http.DefaultClient,
		userAgent: version.UserAgent(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Request describes a GET call.
type Request struct {
	// URL is the absolute URL to fetch.
	URL string
	// Host overrides the Host header when set.
	Host string
	// Header holds extra headers.
	Header http.Header
}

// Get performs a GET request and returns the full response body.
// The call timeout covers connecting, the response headers and the body.
func (c *Client) Get(ctx context.Context, request *Request) ([]byte, error) {
	if request == nil || request.URL == "" {
		return nil, errURLRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, request.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for key, values := range request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	req.Header.Set("User-Agent", c.userAgent)

	if request.Host != "" {
		req.Host = request.Host
	}

	response, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s, %s: %w", request.URL, response.Status, ErrBadHTTPStatus)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
