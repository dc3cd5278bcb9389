package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	domain "github.com/oshokin/cul-updater/internal/domain/release"
	"github.com/oshokin/cul-updater/internal/logger"
	"github.com/oshokin/cul-updater/internal/service/common"
)

// ErrHTTPRequest wraps every failure of the release API call.
var ErrHTTPRequest = errors.New("release api request failed")

// DefaultTimeout bounds the release API request.
const DefaultTimeout = 30 * time.Second

// githubMediaType is the Accept header recommended by the GitHub REST API.
const githubMediaType = "application/vnd.github+json"

// Fetcher retrieves release descriptors.
type Fetcher struct {
	// timeout bounds a whole request.
	timeout time.Duration
	// httpClient replaces the insecure default client when set.
	httpClient *http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithHTTPClient makes the fetcher use client instead of its insecure default.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FetchLatest requests url with the given Host header and decodes the release.
func (f *Fetcher) FetchLatest(ctx context.Context, url, host string) (*domain.Release, error) {
	logger.InfoKV(ctx, "Requesting the latest release", "url", url, "host", host)

	options := []common.Option{
		common.WithCallTimeout(f.timeout),
		common.WithInsecureTLS(host),
	}

	if f.httpClient != nil {
		options = append(options, common.WithHTTPClient(f.httpClient))
	}

	body, err := common.NewClient(options...).Get(ctx, &common.Request{
		URL:    url,
		Host:   host,
		Header: http.Header{"Accept": []string{githubMediaType}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHTTPRequest, err)
	}

	var latest domain.Release
	if err = json.Unmarshal(body, &latest); err != nil {
		return nil, fmt.Errorf("%w: decode release: %w", ErrHTTPRequest, err)
	}

	logger.InfoKV(ctx, "Latest release received", "tag", latest.TagName, "assets", len(latest.Assets))

	return &latest, nil
}
