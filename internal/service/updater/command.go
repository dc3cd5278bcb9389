package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/oshokin/cul-updater/internal/config"
	domain "github.com/oshokin/cul-updater/internal/domain/release"
	"github.com/oshokin/cul-updater/internal/logger"
	"github.com/oshokin/cul-updater/internal/service/mirror"
	"github.com/oshokin/cul-updater/internal/service/release"
	"github.com/oshokin/cul-updater/internal/service/resolver"
	"github.com/oshokin/cul-updater/internal/version"
)

var (
	errUpdaterAlreadyRunning = errors.New("the updater is already running")
	errEmptyRelease          = errors.New("release descriptor is empty")
	errUnknownLogLevel       = errors.New("unknown log level")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Config replaces loading from ConfigPath when set; it is copied, not modified.
	Config *config.Config
	// CurrentVersion is the running launcher version; version.Short() when empty.
	CurrentVersion string
	// OutputDir overrides the configured output directory when set.
	OutputDir string
	// LogLevel overrides the configured log level when set.
	LogLevel string

	// Clock drives the marker staleness check; the wall clock when nil.
	Clock clock.Clock
	// Lookup overrides the DNS lookup chosen by the dns_mode setting.
	Lookup resolver.HostLookup
	// APIClient replaces the insecure client used for the release API.
	APIClient *http.Client
	// DownloadClient replaces http.DefaultClient for mirror downloads.
	DownloadClient *http.Client
}

// Status tags the result of an update check.
type Status string

const (
	// StatusUpToDate means the running version is the latest one.
	StatusUpToDate Status = "up_to_date"
	// StatusDownloaded means a newer package was saved.
	StatusDownloaded Status = "downloaded"
	// StatusUnknownVersion means a version string could not be parsed, so no upgrade was attempted.
	StatusUnknownVersion Status = "unknown_version"
	// StatusNoDownloadURL means the newer release had no asset with a link.
	StatusNoDownloadURL Status = "no_download_url"
	// StatusDownloadFailed means every mirror failed.
	StatusDownloadFailed Status = "download_failed"
)

// Outcome is the result of one update check.
type Outcome struct {
	// Status tells what happened.
	Status Status
	// CurrentVersion is the version the check ran with.
	CurrentVersion string
	// LatestTag is the tag of the latest release.
	LatestTag string
	// Path is the saved package, set for StatusDownloaded.
	Path string
	// Mirror is the URL the package came from, set for StatusDownloaded.
	Mirror string
}

// runner holds the components and settings for a single update check.
// It is intentionally unexported: call Run(ctx, Options) from callers.
type runner struct {
	cfg            *config.Config     // Settings, private copy.
	currentVersion string             // Running launcher version.
	resolver       *resolver.Resolver // DNS preflight.
	fetcher        *release.Fetcher   // Release API client.
	downloader     *mirror.Downloader // Mirror downloads.
	markerCreated  bool               // Whether cleanup must remove the marker.
}

// Run executes one update check and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) (*Outcome, error) {
	// Set context with logger name and run ID for tracking.
	ctx = logger.WithName(ctx, "cul-updater")
	ctx = logger.WithKV(ctx, "run_id", uuid.NewString())

	up, err := newRunner(ctx, opts)
	if err != nil {
		logger.ErrorKV(ctx, "Updater could not start", "error", err)
		return nil, err
	}

	defer up.cleanup(ctx)

	outcome, err := up.Run(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Update check failed", "error", err)
		return outcome, err
	}

	logger.InfoKV(ctx, "Update check completed", "status", outcome.Status)

	return outcome, nil
}

// newRunner loads settings, takes the marker and wires the components.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	if opts == nil {
		opts = new(Options)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	if IsUpdaterRunningNow(ctx, cfg.OutputDir, clk) {
		return nil, errUpdaterAlreadyRunning
	}

	if err = createMarker(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("create update marker: %w", err)
	}

	currentVersion := strings.TrimSpace(opts.CurrentVersion)
	if currentVersion == "" {
		currentVersion = version.Short()
	}

	return &runner{
		cfg:            cfg,
		currentVersion: currentVersion,
		resolver: resolver.New(&resolver.Options{
			Servers:      cfg.DNSServers,
			Port:         cfg.APIPort,
			Path:         cfg.ReleasePath(),
			ProbeTimeout: cfg.ProbeTimeout,
			Lookup:       chooseLookup(cfg, opts.Lookup),
		}),
		fetcher: release.NewFetcher(
			release.WithTimeout(cfg.APITimeout),
			release.WithHTTPClient(opts.APIClient),
		),
		downloader: mirror.New(&mirror.Options{
			Prefixes:      cfg.MirrorPrefixes,
			Timeout:       cfg.DownloadTimeout,
			OutputDir:     cfg.OutputDir,
			FilePrefix:    cfg.FilePrefix,
			FileExtension: cfg.FileExtension,
			TryAllAssets:  cfg.TryAllAssets,
			HTTPClient:    opts.DownloadClient,
		}),
		markerCreated: true,
	}, nil
}

// loadConfig returns a private, validated copy of the settings.
func loadConfig(opts *Options) (*config.Config, error) {
	var cfg *config.Config

	if opts.Config != nil {
		cfg = opts.Config.Clone()
		if err := config.Validate(cfg); err != nil {
			return nil, fmt.Errorf("validate settings: %w", err)
		}
	} else {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}

		cfg = loaded
	}

	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	if opts.LogLevel != "" {
		if _, ok := logger.ParseLogLevel(opts.LogLevel); !ok {
			return nil, fmt.Errorf("%q: %w", opts.LogLevel, errUnknownLogLevel)
		}

		cfg.LogLevel = opts.LogLevel
	}

	return cfg, nil
}

// chooseLookup maps dns_mode to a lookup unless the caller provided one.
//
//nolint:ireturn // The resolver accepts any HostLookup.
func chooseLookup(cfg *config.Config, override resolver.HostLookup) resolver.HostLookup {
	if override != nil {
		return override
	}

	if cfg.DNSMode == config.DNSModeDirect {
		return resolver.DirectLookup{Timeout: cfg.ProbeTimeout}
	}

	return resolver.SystemLookup{}
}

// Run executes the workflow for this runner instance:
// 1) Resolve and probe the release API host.
// 2) Fetch the latest release.
// 3) Compare versions.
// 4) Download the package through the mirrors if needed.
func (u *runner) Run(ctx context.Context) (*Outcome, error) {
	outcome := &Outcome{CurrentVersion: u.currentVersion}

	target, err := u.resolver.Resolve(ctx, u.cfg.APIHost)
	if err != nil {
		return nil, fmt.Errorf("resolve release api: %w", err)
	}

	latest, err := u.fetcher.FetchLatest(ctx, target.URL, target.Host)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}

	if latest == nil {
		return nil, errEmptyRelease
	}

	outcome.LatestTag = latest.TagName

	switch decide(ctx, u.currentVersion, latest.TagName) {
	case domain.DecisionUnknown:
		outcome.Status = StatusUnknownVersion
		return outcome, nil
	case domain.DecisionCurrent:
		logger.InfoKV(ctx, "Current version is already the latest, no upgrade needed",
			"current", u.currentVersion, "latest", latest.TagName)

		outcome.Status = StatusUpToDate

		return outcome, nil
	case domain.DecisionUpgrade:
	}

	logger.InfoKV(ctx, "Current version needs an upgrade", "current", u.currentVersion, "latest", latest.TagName)

	return u.download(ctx, latest, outcome)
}

// download fetches the package and fills the outcome.
func (u *runner) download(ctx context.Context, latest *domain.Release, outcome *Outcome) (*Outcome, error) {
	result, err := u.downloader.Download(ctx, latest)

	switch {
	case err == nil:
		outcome.Status = StatusDownloaded
		outcome.Path = result.Path
		outcome.Mirror = result.URL

		return outcome, nil
	case errors.Is(err, mirror.ErrNoDownloadURL):
		outcome.Status = StatusNoDownloadURL
		return outcome, nil
	case errors.Is(err, mirror.ErrInvalidTag):
		return nil, fmt.Errorf("download package: %w", err)
	default:
		outcome.Status = StatusDownloadFailed
		return outcome, fmt.Errorf("download package: %w", err)
	}
}

// NeedsUpgrade reports whether latest is strictly newer than current.
// Unparsable versions are logged and reported as no upgrade.
func NeedsUpgrade(ctx context.Context, current, latest string) bool {
	return decide(ctx, current, latest) == domain.DecisionUpgrade
}

// decide compares the versions and logs format errors.
func decide(ctx context.Context, current, latest string) domain.Decision {
	decision, err := domain.CompareVersions(current, latest)
	if err != nil {
		logger.ErrorKV(ctx, "Version number format is incorrect", "current", current, "latest", latest, "error", err)
		return domain.DecisionUnknown
	}

	logger.DebugKV(ctx, "Compared versions", "current", current, "latest", latest, "decision", decision.String())

	return decision
}

// cleanup removes the running marker.
func (u *runner) cleanup(ctx context.Context) {
	if u.markerCreated {
		removeMarker(u.cfg.OutputDir)
	}

	logger.Debug(ctx, "The updater has been stopped")
}
