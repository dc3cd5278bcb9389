package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	goupdate "github.com/doitdistributed/go-update"

	domain "github.com/oshokin/cul-updater/internal/domain/release"
	"github.com/oshokin/cul-updater/internal/logger"
	"github.com/oshokin/cul-updater/internal/service/common"
)

const (
	// DefaultTimeout bounds a single mirror request, body included.
	DefaultTimeout = 10 * time.Second
	// DefaultFilePrefix and DefaultFileExtension produce CUL{tag}.zip.
	DefaultFilePrefix    = "CUL"
	DefaultFileExtension = ".zip"
	// DefaultFileMode is the permission of the saved package.
	DefaultFileMode os.FileMode = 0o644
)

var (
	// ErrNoDownloadURL is returned when no asset has a download link.
	ErrNoDownloadURL = errors.New("no valid download link")
	// ErrAllMirrorsFailed is returned when every mirror failed for an asset.
	ErrAllMirrorsFailed = errors.New("all mirror links failed")
	// ErrInvalidTag is returned for tags that cannot be part of a filename.
	ErrInvalidTag = errors.New("release tag cannot be used in a filename")
)

// Options configures a Downloader.
type Options struct {
	// Prefixes is the ordered list of mirror hosts, optionally with a path.
	Prefixes []string
	// Timeout bounds each mirror request.
	Timeout time.Duration
	// OutputDir is where the package is written; "." when empty.
	OutputDir string
	// FilePrefix and FileExtension surround the tag in the output filename.
	FilePrefix    string
	FileExtension string
	// TryAllAssets moves on to the next asset after a total mirror failure.
	TryAllAssets bool
	// HTTPClient replaces http.DefaultClient.
	HTTPClient *http.Client
}

// Result describes a successful download.
type Result struct {
	// Path is the written file.
	Path string
	// URL is the mirror URL that answered.
	URL string
	// Asset is the downloaded release asset.
	Asset domain.Asset
}

// Downloader fetches release assets through the configured mirrors.
type Downloader struct {
	prefixes      []string
	outputDir     string
	filePrefix    string
	fileExtension string
	tryAllAssets  bool
	client        *common.Client
}

// New creates a Downloader. The prefix list is copied.
func New(opts *Options) *Downloader {
	d := &Downloader{
		prefixes:      slices.Clone(opts.Prefixes),
		outputDir:     opts.OutputDir,
		filePrefix:    opts.FilePrefix,
		fileExtension: opts.FileExtension,
		tryAllAssets:  opts.TryAllAssets,
	}

	if d.outputDir == "" {
		d.outputDir = "."
	}

	if d.filePrefix == "" {
		d.filePrefix = DefaultFilePrefix
	}

	if d.fileExtension == "" {
		d.fileExtension = DefaultFileExtension
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d.client = common.NewClient(common.WithCallTimeout(timeout), common.WithHTTPClient(opts.HTTPClient))

	return d
}

// BuildURLs returns one mirror URL per prefix, in prefix order.
func BuildURLs(prefixes []string, original string) []string {
	urls := make([]string, 0, len(prefixes))

	for _, prefix := range prefixes {
		urls = append(urls, "https://"+prefix+"/"+original)
	}

	return urls
}

// OutputPath returns where the package for tag is written.
func (d *Downloader) OutputPath(tag string) (string, error) {
	if tag == "" || strings.ContainsAny(tag, `/\`) || strings.Contains(tag, "..") {
		return "", fmt.Errorf("%q: %w", tag, ErrInvalidTag)
	}

	return filepath.Join(d.outputDir, d.filePrefix+tag+d.fileExtension), nil
}

// Download saves the first asset of latest with a download link through the first working mirror.
//
// Assets without a link are skipped. Unless TryAllAssets is set, only the
// first asset with a link is attempted even when all of its mirrors fail.
func (d *Downloader) Download(ctx context.Context, latest *domain.Release) (*Result, error) {
	if latest == nil {
		return nil, ErrNoDownloadURL
	}

	path, err := d.OutputPath(latest.TagName)
	if err != nil {
		return nil, err
	}

	for _, asset := range latest.Assets {
		if !asset.HasDownloadURL() {
			logger.WarnKV(ctx, "No valid download link for asset, skipping", "asset", asset.Name)
		}
	}

	candidates := latest.DownloadableAssets()
	if len(candidates) == 0 {
		logger.Error(ctx, "No valid download link found in the release")
		return nil, ErrNoDownloadURL
	}

	if !d.tryAllAssets {
		candidates = candidates[:1]
	}

	result, _, err := common.FirstSuccess(ctx, candidates,
		func(ctx context.Context, asset domain.Asset) (*Result, error) {
			return d.downloadAsset(ctx, asset, path)
		})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// downloadAsset walks the mirror URLs of one asset.
func (d *Downloader) downloadAsset(ctx context.Context, asset domain.Asset, path string) (*Result, error) {
	urls := BuildURLs(d.prefixes, asset.BrowserDownloadURL)

	result, _, err := common.FirstSuccess(ctx, urls,
		func(ctx context.Context, url string) (*Result, error) {
			if err := d.fetchTo(ctx, url, path); err != nil {
				logger.WarnKV(ctx, "Download failed, trying the next mirror", "url", url, "error", err)
				return nil, err
			}

			return &Result{Path: path, URL: url, Asset: asset}, nil
		})
	if err != nil {
		logger.ErrorKV(ctx, "All mirror links failed", "asset", asset.BrowserDownloadURL)
		return nil, fmt.Errorf("%w: %w", ErrAllMirrorsFailed, err)
	}

	logger.InfoKV(ctx, "File downloaded", "path", result.Path, "mirror", result.URL)

	return result, nil
}

// fetchTo downloads url and replaces the file at path with the body.
func (d *Downloader) fetchTo(ctx context.Context, url, path string) error {
	logger.InfoKV(ctx, "Downloading", "url", url)

	body, err := d.client.Get(ctx, &common.Request{URL: url})
	if err != nil {
		return err
	}

	return save(path, body)
}

// save writes data to path atomically, replacing any existing file.
// A placeholder created here is removed again when the write fails.
func save(path string, data []byte) error {
	placeholder := false

	// go-update moves the current target aside first, so it must exist.
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		file, createErr := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY, DefaultFileMode)
		if createErr != nil {
			return fmt.Errorf("create %s: %w", path, createErr)
		}

		placeholder = true

		if createErr = file.Close(); createErr != nil {
			_ = os.Remove(path)
			return fmt.Errorf("close %s: %w", path, createErr)
		}
	}

	//nolint:exhaustruct // No checksum or signature: the release API publishes none.
	options := goupdate.Options{
		TargetPath: path,
		TargetMode: DefaultFileMode,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if placeholder {
			_ = os.Remove(path)
		}

		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
