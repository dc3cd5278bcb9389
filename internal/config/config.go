package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/cul-updater/internal/logger"
)

// Config holds the parameters of one update check.
type Config struct {
	// APIHost is the release API hostname; it is also sent as the Host header.
	APIHost string `yaml:"api_host"`
	// APIPort is the TCP port used for the connectivity probe and the API URL.
	APIPort int `yaml:"api_port"`
	// Owner is the repository owner on the release API.
	Owner string `yaml:"owner"`
	// Repo is the repository name on the release API.
	Repo string `yaml:"repo"`
	// DNSMode selects how DNSServers are used: "system" or "direct".
	DNSMode string `yaml:"dns_mode"`
	// DNSServers is the ordered list of DNS server labels tried for APIHost.
	DNSServers []string `yaml:"dns_servers"`
	// MirrorPrefixes is the ordered list of proxy hosts prepended to download URLs.
	MirrorPrefixes []string `yaml:"mirror_prefixes"`
	// ProbeTimeout bounds a single TCP connectivity probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// APITimeout bounds the release API request.
	APITimeout time.Duration `yaml:"api_timeout"`
	// DownloadTimeout bounds a single mirror request, body included.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// OutputDir is where the downloaded package is written.
	OutputDir string `yaml:"output_dir"`
	// FilePrefix and FileExtension surround the release tag in the output filename.
	FilePrefix    string `yaml:"file_prefix"`
	FileExtension string `yaml:"file_extension"`
	// TryAllAssets moves on to the next asset when every mirror failed for the current one.
	TryAllAssets bool `yaml:"try_all_assets"`
	// LogLevel is the minimum level printed to the console.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the settings file looked up when no path is given.
	DefaultConfigFilename = "cul-updater.yaml"

	// DefaultAPIHost is the GitHub REST API host.
	DefaultAPIHost = "api.github.com"
	// DefaultAPIPort is the HTTPS port.
	DefaultAPIPort = 443
	// DefaultOwner and DefaultRepo identify the launcher repository.
	DefaultOwner = "boringstudents"
	DefaultRepo  = "CHMLFRP-UI-Launcher"

	// DNSModeSystem resolves with the system resolver; server labels are only logged.
	DNSModeSystem = "system"
	// DNSModeDirect queries every listed server directly.
	DNSModeDirect = "direct"

	// DefaultProbeTimeout bounds a TCP connectivity probe.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultAPITimeout bounds the release API request.
	DefaultAPITimeout = 30 * time.Second
	// DefaultDownloadTimeout bounds a single mirror request.
	DefaultDownloadTimeout = 10 * time.Second

	// DefaultOutputDir is the current working directory.
	DefaultOutputDir = "."
	// DefaultFilePrefix and DefaultFileExtension produce CUL{tag}.zip.
	DefaultFilePrefix    = "CUL"
	DefaultFileExtension = ".zip"

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the permission for saved settings files.
	DefaultFilePermissions = 0o600
)

// DefaultDNSServers returns the DNS server labels tried for the API host.
func DefaultDNSServers() []string {
	return []string{
		"1.1.1.1",         // Cloudflare
		"8.8.8.8",         // Google
		"114.114.114.114", // 114DNS
		"223.5.5.5",       // AliDNS
		"9.9.9.9",         // Quad9
	}
}

// DefaultMirrorPrefixes returns the proxy hosts tried for release downloads.
func DefaultMirrorPrefixes() []string {
	return []string{
		"gh.llkk.cc",
		"ghproxy.net",
		"gitproxy.click",
		"github.tbedu.top",
		"github.moeyy.xyz",
	}
}

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidPort is returned for ports outside 1..65535.
	errInvalidPort = errors.New("api port must be between 1 and 65535")
	// errUnknownDNSMode is returned for modes other than system and direct.
	errUnknownDNSMode = errors.New("unknown dns mode")
	// errInvalidDNSServer is returned when direct mode gets a label that is not an IP.
	errInvalidDNSServer = errors.New("dns server must be an IP address in direct mode")
	// errInvalidMirrorPrefix is returned for empty prefixes or prefixes with a scheme.
	errInvalidMirrorPrefix = errors.New("mirror prefix must be a bare host with optional path")
	// errInvalidFilePart is returned when the filename prefix or extension contains a path separator.
	errInvalidFilePart = errors.New("filename prefix and extension must not contain path separators")
	// errUnknownLogLevel is returned for unparsable log levels.
	errUnknownLogLevel = errors.New("unknown log level")
)

// Default returns the settings the updater uses without a settings file.
func Default() *Config {
	cfg := new(Config)

	// Validate only fills defaults on an empty config, it cannot fail here.
	_ = Validate(cfg)

	return cfg
}

// Load reads settings from path and validates them.
// A missing file at the default location yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && filepath.Clean(path) == DefaultConfigFilename {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = validateSchema(contents); err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills unset fields with defaults and checks the rest.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	applyDefaults(settings)

	if settings.APIPort < 1 || settings.APIPort > 65535 {
		return fmt.Errorf("%d: %w", settings.APIPort, errInvalidPort)
	}

	switch settings.DNSMode {
	case DNSModeSystem:
	case DNSModeDirect:
		for _, server := range settings.DNSServers {
			if net.ParseIP(server) == nil {
				return fmt.Errorf("%q: %w", server, errInvalidDNSServer)
			}
		}
	default:
		return fmt.Errorf("%q: %w", settings.DNSMode, errUnknownDNSMode)
	}

	for _, prefix := range settings.MirrorPrefixes {
		if strings.TrimSpace(prefix) == "" || strings.Contains(prefix, "://") {
			return fmt.Errorf("%q: %w", prefix, errInvalidMirrorPrefix)
		}
	}

	if strings.ContainsAny(settings.FilePrefix+settings.FileExtension, `/\`) {
		return errInvalidFilePart
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%q: %w", settings.LogLevel, errUnknownLogLevel)
	}

	return nil
}

// ReleasePath returns the API path of the latest release of the configured repository.
func (c *Config) ReleasePath() string {
	return fmt.Sprintf("/repos/%s/%s/releases/latest", c.Owner, c.Repo)
}

// Clone returns a deep copy so components cannot change the caller's lists.
func (c *Config) Clone() *Config {
	cloned := *c
	cloned.DNSServers = slices.Clone(c.DNSServers)
	cloned.MirrorPrefixes = slices.Clone(c.MirrorPrefixes)

	return &cloned
}

// applyDefaults sets every zero-valued field to its default.
//
//nolint:cyclop // A flat list of defaults reads better than a table here.
func applyDefaults(settings *Config) {
	if settings.APIHost == "" {
		settings.APIHost = DefaultAPIHost
	}

	if settings.APIPort == 0 {
		settings.APIPort = DefaultAPIPort
	}

	if settings.Owner == "" {
		settings.Owner = DefaultOwner
	}

	if settings.Repo == "" {
		settings.Repo = DefaultRepo
	}

	if settings.DNSMode == "" {
		settings.DNSMode = DNSModeSystem
	}

	if len(settings.DNSServers) == 0 {
		settings.DNSServers = DefaultDNSServers()
	}

	if len(settings.MirrorPrefixes) == 0 {
		settings.MirrorPrefixes = DefaultMirrorPrefixes()
	}

	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = DefaultProbeTimeout
	}

	if settings.APITimeout <= 0 {
		settings.APITimeout = DefaultAPITimeout
	}

	if settings.DownloadTimeout <= 0 {
		settings.DownloadTimeout = DefaultDownloadTimeout
	}

	if settings.OutputDir == "" {
		settings.OutputDir = DefaultOutputDir
	}

	if settings.FilePrefix == "" {
		settings.FilePrefix = DefaultFilePrefix
	}

	if settings.FileExtension == "" {
		settings.FileExtension = DefaultFileExtension
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}
}
